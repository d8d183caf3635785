package engine

import (
	"relgraph/src/helpers"
	"relgraph/src/relation"
)

// Dump encodes a diagnostic snapshot of the store as BSON: live entities,
// every bundle's rows in entity order, the registered relationships and the
// journal tail. It is meant for inspection, not for reloading.
func (tx *Tx) Dump() ([]byte, error) {
	var entities []interface{}
	tx.Entities(func(e relation.Entity) bool {
		entities = append(entities, int64(e))
		return true
	})

	bundles := make(map[string]interface{})
	for _, info := range tx.Bundles() {
		b := tx.store.bundles[info.Name]
		var rows []interface{}
		b.ascend(func(e relation.Entity) bool {
			v, _ := b.get(e)
			rows = append(rows, map[string]interface{}{
				"entity": int64(e),
				"value":  dumpValue(v),
			})
			return true
		})
		bundles[string(info.Name)] = rows
	}

	var relationships []interface{}
	for _, d := range tx.store.registry.Relationships() {
		relationships = append(relationships, d.String())
	}

	var journal []interface{}
	for _, entry := range tx.store.journal.Tail(0) {
		journal = append(journal, entry)
	}

	return helpers.EncodeBSON(map[string]interface{}{
		"entities":      entities,
		"bundles":       bundles,
		"relationships": relationships,
		"journal":       journal,
	})
}

// dumpValue turns a component into something BSON can hold. Relation
// sides become their target lists.
func dumpValue(v any) interface{} {
	switch c := v.(type) {
	case relation.Connectable:
		targets := make([]interface{}, 0, c.Len())
		for t := range c.Iter() {
			targets = append(targets, int64(t))
		}
		return targets
	case Record:
		return map[string]interface{}(c)
	}
	return v
}
