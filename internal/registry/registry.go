package registry

import (
	"fmt"
	"regexp"

	"github.com/northdeals/catalog/internal/domain"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

// Registry is the static catalog of every backing source, loaded once at
// process start. It is immutable after New and safe for concurrent reads.
type Registry struct {
	sources []SourceDescriptor
	byKey   map[string]SourceDescriptor
}

// New validates the descriptor table and builds a registry. It rejects
// duplicate keys and descriptors missing mandatory column mappings.
func New(descs []SourceDescriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("registry requires at least one source")
	}

	byKey := make(map[string]SourceDescriptor, len(descs))
	for _, d := range descs {
		if err := validate(d); err != nil {
			return nil, fmt.Errorf("source %q: %w", d.Key, err)
		}
		if _, dup := byKey[d.Key]; dup {
			return nil, fmt.Errorf("duplicate source key %q", d.Key)
		}
		byKey[d.Key] = d
	}

	return &Registry{sources: append([]SourceDescriptor(nil), descs...), byKey: byKey}, nil
}

func validate(d SourceDescriptor) error {
	if !keyPattern.MatchString(d.Key) {
		return fmt.Errorf("invalid key")
	}
	if d.Table == "" {
		return fmt.Errorf("missing table name")
	}
	if d.Fields.NativeID == "" {
		return fmt.Errorf("missing native id column")
	}
	if d.Fields.Title == "" {
		return fmt.Errorf("missing title column")
	}
	if d.Fields.CurrentPrice == "" {
		return fmt.Errorf("missing current price column")
	}
	if d.Fields.FirstSeen == "" {
		return fmt.Errorf("missing first-seen column")
	}
	for _, kind := range d.Capabilities {
		if err := validateCapability(d, kind); err != nil {
			return err
		}
	}
	if d.HistoryTable != "" && d.HistoryFK == "" {
		return fmt.Errorf("history table %q declared without a foreign key column", d.HistoryTable)
	}
	return nil
}

// validateCapability checks that a declared capability is actually backed by
// a column (or fixed value). A claimed-but-unbacked capability would produce
// plans the repository cannot render.
func validateCapability(d SourceDescriptor, kind domain.FilterKind) error {
	switch kind {
	case domain.FilterKindStore:
		if d.Fields.Store == "" && d.FixedStore == "" {
			return fmt.Errorf("store capability without store column or fixed store")
		}
	case domain.FilterKindRegion:
		if d.Fields.Region == "" && d.FixedRegion == "" {
			return fmt.Errorf("region capability without region column or fixed region")
		}
	case domain.FilterKindBrand:
		if d.Fields.Brand == "" {
			return fmt.Errorf("brand capability without brand column")
		}
	case domain.FilterKindCategory:
		if d.Fields.Category == "" {
			return fmt.Errorf("category capability without category column")
		}
	case domain.FilterKindDiscount, domain.FilterKindOnSale:
		if d.Fields.Discount == "" {
			return fmt.Errorf("%s capability without discount column", kind)
		}
	case domain.FilterKindPriceDrop:
		if d.Fields.OriginalPrice == "" {
			return fmt.Errorf("price_drop capability without original price column")
		}
	case domain.FilterKindActive:
		if d.ActiveColumn == "" && d.StatusColumn == "" {
			return fmt.Errorf("active capability without active or status column")
		}
	}
	return nil
}

// List returns every registered source in declaration order.
func (r *Registry) List() []SourceDescriptor {
	return append([]SourceDescriptor(nil), r.sources...)
}

// Lookup returns the descriptor for a source key.
func (r *Registry) Lookup(key string) (SourceDescriptor, bool) {
	d, ok := r.byKey[key]
	return d, ok
}

// Supporting returns the sources that can natively express the given filter.
func (r *Registry) Supporting(kind domain.FilterKind) []SourceDescriptor {
	var out []SourceDescriptor
	for _, d := range r.sources {
		if d.Supports(kind) {
			out = append(out, d)
		}
	}
	return out
}
