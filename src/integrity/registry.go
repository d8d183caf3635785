// Package integrity keeps declared relationships referentially consistent.
//
// A Registry maps every relation component type to the cascading-disconnect
// procedure for its relationship. The host must call Cascade (or CascadeAll)
// for a row before it frees the row's storage; afterwards no peer component
// anywhere in the store references the deleted entity.
package integrity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"relgraph/src/relation"

	"go.uber.org/zap"
)

var (
	// ErrUnknownRelationship is returned for names that were never registered.
	ErrUnknownRelationship = errors.New("unknown relationship")
	// ErrComponentBound is returned when a component already serves as a side
	// of a different relationship.
	ErrComponentBound = errors.New("component already bound to another relationship")
	// ErrRelationshipConflict is returned when a name is re-registered with a
	// different shape.
	ErrRelationshipConflict = errors.New("relationship already registered with a different shape")
	// ErrComponentIsData is returned when a relationship side names a
	// component already declared as plain data.
	ErrComponentIsData = errors.New("component already declared as data")
	// ErrNotRelation is returned when a stored component does not implement
	// the relation capability its declaration requires.
	ErrNotRelation = errors.New("component is not a relation")
)

// cascadeFunc disconnects e from every peer of its component.
type cascadeFunc func(store relation.Store, e relation.Entity) int

type binding struct {
	decl    relation.Declaration
	cascade cascadeFunc
}

// Registry is process-scoped state owned by the host. Registration normally
// happens once at startup; lookups happen on every row deletion.
type Registry struct {
	mu            sync.RWMutex
	bindings      map[relation.ComponentID]binding
	relationships map[string]relation.Declaration
	components    map[relation.ComponentID]struct{}
	logger        *zap.SugaredLogger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		bindings:      make(map[relation.ComponentID]binding),
		relationships: make(map[string]relation.Declaration),
		components:    make(map[relation.ComponentID]struct{}),
		logger:        logger,
	}
}

// RegisterComponent declares a plain data component so that queries may
// name it in node type filters. A relationship side cannot be redeclared as
// data.
func (r *Registry) RegisterComponent(id relation.ComponentID) error {
	if !relation.IsIdent(string(id)) {
		return fmt.Errorf("invalid component name %q", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bindings[id]; ok {
		return fmt.Errorf("%w: %s is a side of %s", ErrComponentBound, id, b.decl.Name)
	}
	r.components[id] = struct{}{}
	return nil
}

// Register installs the cascading-disconnect procedures for d, one keyed by
// each side. Registering the same declaration again (or its Reverse) is a
// no-op apart from replacing the procedures.
func (r *Registry) Register(d relation.Declaration) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.relationships[d.Name]; ok && !existing.SameShape(d) {
		return fmt.Errorf("%w: %s is %s, not %s", ErrRelationshipConflict, d.Name, existing, d)
	}
	for _, side := range []relation.ComponentID{d.From, d.To} {
		b, bound := r.bindings[side]
		if bound && b.decl.Name != d.Name {
			return fmt.Errorf("%w: %s is a side of %s", ErrComponentBound, side, b.decl.Name)
		}
		if _, known := r.components[side]; known && !bound {
			return fmt.Errorf("%w: %s cannot be a side of %s", ErrComponentIsData, side, d.Name)
		}
	}

	// Keep the first orientation so lookups by name stay stable.
	if existing, ok := r.relationships[d.Name]; ok {
		d = existing
	}
	r.relationships[d.Name] = d
	r.bindings[d.From] = binding{decl: d, cascade: r.cascadeFor(d.From, d.To)}
	r.bindings[d.To] = binding{decl: d, cascade: r.cascadeFor(d.To, d.From)}
	r.components[d.From] = struct{}{}
	r.components[d.To] = struct{}{}

	r.logger.Debugw("Registered relationship",
		"relationship", d.Name,
		"from", d.From,
		"to", d.To,
		"cardinality", d.Cardinality)
	return nil
}

// cascadeFor builds the procedure that walks side's targets and removes the
// deleted entity from each target's peer component.
func (r *Registry) cascadeFor(side, peer relation.ComponentID) cascadeFunc {
	return func(store relation.Store, e relation.Entity) int {
		c, ok := store.Component(e, side)
		if !ok {
			return 0
		}
		rel, ok := c.(relation.ConnectableMut)
		if !ok {
			r.logger.Warnw("Component does not implement the relation contract",
				"component", side, "entity", e)
			return 0
		}
		removed := 0
		for _, t := range rel.Drain() {
			if t == e {
				continue
			}
			pc, ok := store.Component(t, peer)
			if !ok {
				// Peer already gone; deletion order within a batch is arbitrary.
				continue
			}
			if prel, ok := pc.(relation.ConnectableMut); ok && prel.Disconnect(e) {
				removed++
			}
		}
		return removed
	}
}

// Cascade runs the cascading-disconnect procedure for e's component id and
// returns how many back-references it removed. Components that are not a
// registered relation side are ignored.
func (r *Registry) Cascade(store relation.Store, e relation.Entity, id relation.ComponentID) int {
	r.mu.RLock()
	b, ok := r.bindings[id]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	n := b.cascade(store, e)
	if n > 0 {
		r.logger.Debugw("Cascaded disconnect",
			"entity", e,
			"component", id,
			"relationship", b.decl.Name,
			"removed", n)
	}
	return n
}

// CascadeAll is the row-deletion hook: it runs Cascade for every component
// present on the row.
func (r *Registry) CascadeAll(store relation.Store, e relation.Entity, ids []relation.ComponentID) int {
	total := 0
	for _, id := range ids {
		total += r.Cascade(store, e, id)
	}
	return total
}

// Relationship looks up a registered declaration by name.
func (r *Registry) Relationship(name string) (relation.Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.relationships[name]
	return d, ok
}

// Relationships returns every registered declaration ordered by name.
func (r *Registry) Relationships() []relation.Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]relation.Declaration, 0, len(r.relationships))
	for _, d := range r.relationships {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BindingOf returns the relationship that id is a side of.
func (r *Registry) BindingOf(id relation.ComponentID) (relation.Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[id]
	return b.decl, ok
}

// HasComponent reports whether id is a known data or relation component.
func (r *Registry) HasComponent(id relation.ComponentID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.components[id]
	return ok
}

// Components returns every known component name, sorted.
func (r *Registry) Components() []relation.ComponentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]relation.ComponentID, 0, len(r.components))
	for id := range r.components {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
