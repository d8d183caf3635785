package engine

import (
	"relgraph/src/relation"

	"github.com/google/btree"
)

// bundleIndexDegree is the btree degree for every per-bundle index.
const bundleIndexDegree = 16

// entityItem orders entities inside a btree index.
type entityItem relation.Entity

func (a entityItem) Less(b btree.Item) bool {
	return a < b.(entityItem)
}

// Bundle is the table of one component type: one row per entity carrying
// the component, plus an ordered index over those entities.
type Bundle struct {
	Name  relation.ComponentID
	rows  map[relation.Entity]any
	index *btree.BTree
}

func newBundle(name relation.ComponentID) *Bundle {
	return &Bundle{
		Name:  name,
		rows:  make(map[relation.Entity]any),
		index: btree.New(bundleIndexDegree),
	}
}

// Len is the number of rows in the bundle.
func (b *Bundle) Len() int {
	return len(b.rows)
}

func (b *Bundle) get(e relation.Entity) (any, bool) {
	v, ok := b.rows[e]
	return v, ok
}

func (b *Bundle) put(e relation.Entity, v any) {
	if _, exists := b.rows[e]; !exists {
		b.index.ReplaceOrInsert(entityItem(e))
	}
	b.rows[e] = v
}

func (b *Bundle) remove(e relation.Entity) bool {
	if _, exists := b.rows[e]; !exists {
		return false
	}
	delete(b.rows, e)
	b.index.Delete(entityItem(e))
	return true
}

// ascend visits the bundle's entities in ascending order until fn returns
// false.
func (b *Bundle) ascend(fn func(relation.Entity) bool) {
	b.index.Ascend(func(i btree.Item) bool {
		return fn(relation.Entity(i.(entityItem)))
	})
}
