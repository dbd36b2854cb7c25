package registry

import (
	"strings"

	"github.com/northdeals/catalog/internal/domain"
)

// EncodeID builds the canonical product id for a source's native id. The
// registry is the only component allowed to construct or parse these ids.
func EncodeID(sourceKey, nativeID string) string {
	return sourceKey + "_" + nativeID
}

// ResolveID decodes a canonical id back into its originating source key and
// native id by stripping the longest matching registered key prefix. Longest
// wins because keys themselves contain underscores ("amazon_ca" must beat a
// hypothetical "amazon").
func (r *Registry) ResolveID(id string) (sourceKey, nativeID string, err error) {
	best := ""
	for key := range r.byKey {
		if len(key) <= len(best) {
			continue
		}
		if strings.HasPrefix(id, key+"_") && len(id) > len(key)+1 {
			best = key
		}
	}
	if best == "" {
		return "", "", domain.ErrUnresolvableID
	}
	return best, id[len(best)+1:], nil
}
