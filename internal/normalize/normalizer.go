// Package normalize maps heterogeneous source rows into the canonical
// product shape. The mapping is one generic function driven by the source
// descriptor; there are no per-source code paths.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/northdeals/catalog/internal/domain"
	"github.com/northdeals/catalog/internal/registry"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Row normalizes one raw row using its source descriptor. Missing optional
// fields never drop a row; only a missing native id, or missing title and
// price together, make a row unrepresentable.
func Row(desc registry.SourceDescriptor, row map[string]any) (domain.CanonicalProduct, error) {
	nativeID, ok := stringValue(row[desc.Fields.NativeID])
	if !ok || nativeID == "" {
		return domain.CanonicalProduct{}, fmt.Errorf("row has no native id in column %q", desc.Fields.NativeID)
	}

	title, _ := stringValue(row[desc.Fields.Title])
	title = strings.TrimSpace(title)
	if desc.CleanTitles {
		title = CleanTitle(title, row)
	}

	current, hasCurrent := floatValue(row[desc.Fields.CurrentPrice])
	if title == "" && !hasCurrent {
		return domain.CanonicalProduct{}, fmt.Errorf("row %s has neither title nor price", nativeID)
	}

	p := domain.CanonicalProduct{
		ID:           registry.EncodeID(desc.Key, nativeID),
		Title:        title,
		Source:       desc.Key,
		Store:        storeFor(desc, row),
		AffiliateURL: urlFor(desc, row),
		IsActive:     activeFor(desc, row),
	}
	if hasCurrent {
		p.CurrentPrice = current
	}

	if v, ok := optionalString(row, desc.Fields.Brand); ok {
		p.Brand = &v
	}
	if v, ok := optionalString(row, desc.Fields.Image); ok {
		p.ImageURL = &v
	}
	if v, ok := optionalString(row, desc.Fields.Category); ok {
		p.Category = &v
	}
	if v, ok := regionFor(desc, row); ok {
		p.Region = &v
	}

	if orig, ok := floatValue(row[desc.Fields.OriginalPrice]); ok && orig > 0 {
		p.OriginalPrice = &orig
	}
	if d := discountFor(desc, row, p.CurrentPrice, p.OriginalPrice); d != nil {
		p.DiscountPercent = d
	}

	p.FirstSeenAt, _ = timeValue(row[desc.Fields.FirstSeen])
	if desc.Fields.LastSeen != "" {
		p.LastSeenAt, _ = timeValue(row[desc.Fields.LastSeen])
	}
	if p.LastSeenAt.IsZero() {
		p.LastSeenAt = p.FirstSeenAt
	}

	return p, nil
}

// discountFor prefers the stored discount; when absent or zero it derives
// one from the two prices, rounded to a tenth of a percent.
func discountFor(desc registry.SourceDescriptor, row map[string]any, current float64, original *float64) *float64 {
	if desc.Fields.Discount != "" {
		if d, ok := floatValue(row[desc.Fields.Discount]); ok && d > 0 {
			return &d
		}
	}
	if original != nil && *original > 0 && current > 0 && current < *original {
		d := math.Round((*original-current)/(*original)*1000) / 10
		return &d
	}
	return nil
}

func storeFor(desc registry.SourceDescriptor, row map[string]any) string {
	if desc.Fields.Store != "" {
		if v, ok := stringValue(row[desc.Fields.Store]); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if desc.FixedStore != "" {
		return desc.FixedStore
	}
	return "Unknown"
}

func regionFor(desc registry.SourceDescriptor, row map[string]any) (string, bool) {
	if desc.Fields.Region != "" {
		if v, ok := optionalString(row, desc.Fields.Region); ok {
			return v, true
		}
	}
	if desc.FixedRegion != "" {
		return desc.FixedRegion, true
	}
	return "", false
}

func urlFor(desc registry.SourceDescriptor, row map[string]any) string {
	if v, ok := optionalString(row, desc.Fields.URL); ok {
		return v
	}
	return "#"
}

func activeFor(desc registry.SourceDescriptor, row map[string]any) bool {
	if desc.ActiveColumn != "" {
		if b, ok := row[desc.ActiveColumn].(bool); ok {
			return b
		}
		return true
	}
	if desc.StatusColumn != "" {
		status, _ := stringValue(row[desc.StatusColumn])
		for _, s := range desc.InactiveStatuses {
			if status == s {
				return false
			}
		}
	}
	return true
}

func optionalString(row map[string]any, column string) (string, bool) {
	if column == "" {
		return "", false
	}
	v, ok := stringValue(row[column])
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// stringValue coerces the value types pgx hands back for text and integer
// columns. Invalid values read as absent, never as errors.
func stringValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return fmt.Sprintf("%v", x), true
	}
}

func floatValue(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func timeValue(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
