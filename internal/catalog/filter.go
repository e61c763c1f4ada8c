package catalog

import (
	"sort"
	"strings"

	"inferd/pkg/types"
)

// applyFilter narrows records to the filter's constraints then sorts them.
// The default order is by name ascending so the aggregate is stable across
// providers regardless of map iteration.
func applyFilter(records []types.ModelRecord, f types.ModelFilter) []types.ModelRecord {
	out := make([]types.ModelRecord, 0, len(records))
	needle := strings.ToLower(f.NameContains)
	for _, r := range records {
		if f.ProviderID != "" && r.ProviderID != f.ProviderID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Capability != "" && !r.HasCapability(f.Capability) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.ID), needle) &&
			!strings.Contains(strings.ToLower(r.DisplayName), needle) {
			continue
		}
		out = append(out, r)
	}

	less := lessFunc(f.SortBy)
	sort.SliceStable(out, func(i, j int) bool {
		if f.Descending {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func lessFunc(key types.SortKey) func(a, b types.ModelRecord) bool {
	switch key {
	case types.SortBySize:
		return func(a, b types.ModelRecord) bool { return a.SizeBytes < b.SizeBytes }
	case types.SortByLastModified:
		return func(a, b types.ModelRecord) bool { return a.LastModified.Before(b.LastModified) }
	case types.SortByProvider:
		return func(a, b types.ModelRecord) bool {
			if a.ProviderID != b.ProviderID {
				return a.ProviderID < b.ProviderID
			}
			return nameOf(a) < nameOf(b)
		}
	default:
		return func(a, b types.ModelRecord) bool { return nameOf(a) < nameOf(b) }
	}
}

func nameOf(r types.ModelRecord) string {
	if r.DisplayName != "" {
		return strings.ToLower(r.DisplayName)
	}
	return strings.ToLower(r.ID)
}
