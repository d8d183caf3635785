package engine

import (
	"sort"

	"relgraph/src/relation"
)

// Record is a plain data component: a bag of named fields. Where-filters
// read it through Field.
type Record map[string]any

// Field returns the value stored under name.
func (r Record) Field(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BundleInfo describes one component table.
type BundleInfo struct {
	Name relation.ComponentID `json:"name"`
	Rows int                  `json:"rows"`
	// Relationship is set when the bundle is a relation side.
	Relationship string `json:"relationship,omitempty"`
}
