package integrity

import (
	"fmt"

	"relgraph/src/relation"
)

// Link connects from -> to through the named relationship, updating both
// sides. Side components are created on demand. When a single-valued side
// displaces an old target, the old target's back-reference is removed too,
// so after Link both sides agree.
func (r *Registry) Link(store relation.Store, name string, from, to relation.Entity) error {
	d, ok := r.Relationship(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRelationship, name)
	}

	fromSide, err := side(store, d, d.From, from)
	if err != nil {
		return err
	}
	toSide, err := side(store, d, d.To, to)
	if err != nil {
		return err
	}

	fromKind, _ := d.KindOf(d.From)
	toKind, _ := d.KindOf(d.To)
	if (fromKind == relation.KindSingle && fromSide.Contains(to)) ||
		(toKind == relation.KindSingle && toSide.Contains(from)) {
		return nil
	}

	if old, displaced := fromSide.Connect(to); displaced {
		detach(store, old, d.To, from)
	}
	if old, displaced := toSide.Connect(from); displaced {
		detach(store, old, d.From, to)
	}

	r.logger.Debugw("Linked entities",
		"relationship", d.Name,
		"from", from,
		"to", to)
	return nil
}

// Unlink removes one from -> to connection from both sides and reports
// whether anything was removed.
func (r *Registry) Unlink(store relation.Store, name string, from, to relation.Entity) (bool, error) {
	d, ok := r.Relationship(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRelationship, name)
	}
	removed := false
	if c, ok := existing(store, d.From, from); ok {
		removed = c.Disconnect(to) || removed
	}
	if c, ok := existing(store, d.To, to); ok {
		removed = c.Disconnect(from) || removed
	}
	return removed, nil
}

// side returns e's relation component for id, inserting an empty one of the
// declared kind when e has none yet.
func side(store relation.Store, d relation.Declaration, id relation.ComponentID, e relation.Entity) (relation.ConnectableMut, error) {
	if c, ok := store.Component(e, id); ok {
		rel, ok := c.(relation.ConnectableMut)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s holds %T", ErrNotRelation, id, e, c)
		}
		return rel, nil
	}
	kind, _ := d.KindOf(id)
	rel := kind.New()
	if err := store.Insert(e, id, rel); err != nil {
		return nil, fmt.Errorf("failed to attach %s to %s: %w", id, e, err)
	}
	return rel, nil
}

func existing(store relation.Store, id relation.ComponentID, e relation.Entity) (relation.ConnectableMut, bool) {
	c, ok := store.Component(e, id)
	if !ok {
		return nil, false
	}
	rel, ok := c.(relation.ConnectableMut)
	return rel, ok
}

// detach removes ref from old's peer component, if old still has one.
func detach(store relation.Store, old relation.Entity, peer relation.ComponentID, ref relation.Entity) {
	if c, ok := existing(store, peer, old); ok {
		c.Disconnect(ref)
	}
}
