package registry

import "github.com/northdeals/catalog/internal/domain"

// FieldMap names a source table's native columns for each canonical product
// attribute. An empty string means the source has no such column.
type FieldMap struct {
	NativeID      string
	Title         string
	Brand         string
	CurrentPrice  string
	OriginalPrice string
	Discount      string
	Image         string
	URL           string
	FirstSeen     string
	LastSeen      string
	Store         string
	Region        string
	Category      string
	Description   string
}

// SourceDescriptor declares one backing table: where its rows live, how its
// columns map onto the canonical record, and which canonical filters it can
// be restricted by. All federation behavior is driven by this data; adding a
// source means adding an entry, not new code paths.
type SourceDescriptor struct {
	Key   string
	Label string
	Table string

	Fields FieldMap

	// HistoryTable, when set, holds per-product price observations keyed by
	// HistoryFK back to the source's native id. Sources without one get a
	// synthesized history.
	HistoryTable string
	HistoryFK    string

	// FixedStore and FixedRegion apply when the table has no store/region
	// column but every row belongs to a single one.
	FixedStore  string
	FixedRegion string

	// ActiveColumn is a boolean liveness column. StatusColumn together with
	// InactiveStatuses expresses liveness as a status enum instead; a row is
	// active when its status is not one of InactiveStatuses.
	ActiveColumn     string
	StatusColumn     string
	InactiveStatuses []string

	// SortProxy maps a canonical sort key to the closest native column when
	// the direct field mapping is missing (e.g. tables with no last-seen
	// column sort by their created-at instead).
	SortProxy map[domain.SortKey]string

	// CleanTitles enables badge-text scrubbing for scrapes that capture deal
	// badges ("75% offLimited-time deal") in place of real product names.
	CleanTitles bool

	Capabilities []domain.FilterKind
}

// Supports reports whether the source declared the given filter capability.
func (d SourceDescriptor) Supports(kind domain.FilterKind) bool {
	for _, c := range d.Capabilities {
		if c == kind {
			return true
		}
	}
	return false
}

// StoreValue returns the store for rows of this source when it is fixed
// rather than carried per row, or "" when a store column exists.
func (d SourceDescriptor) StoreValue() string {
	if d.Fields.Store != "" {
		return ""
	}
	return d.FixedStore
}

// HasHistory reports whether a dedicated history table backs this source.
func (d SourceDescriptor) HasHistory() bool {
	return d.HistoryTable != "" && d.HistoryFK != ""
}
