package relation

import (
	"fmt"
	"iter"
	"strconv"
)

// Entity is an opaque row identifier issued by the host store. Entities are
// only ever used as keys; component data is always reached through a Store.
type Entity uint64

// NoEntity is the zero handle. Stores never issue it.
const NoEntity Entity = 0

func (e Entity) String() string {
	return "e" + strconv.FormatUint(uint64(e), 10)
}

// ParseEntity accepts both the "e42" form produced by String and a bare number.
func ParseEntity(s string) (Entity, error) {
	if len(s) > 1 && (s[0] == 'e' || s[0] == 'E') {
		s = s[1:]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NoEntity, fmt.Errorf("invalid entity %q: %w", s, err)
	}
	return Entity(n), nil
}

// ComponentID names a component type in the host store.
type ComponentID string

// Store is the part of the host data store the relationship layer depends on.
type Store interface {
	// Component returns the component of type id attached to e.
	Component(e Entity, id ComponentID) (any, bool)
	// Insert attaches (or replaces) a component on e.
	Insert(e Entity, id ComponentID, value any) error
}

// Connectable is the read capability of a relation component.
type Connectable interface {
	// Iter yields the current targets in iteration order.
	Iter() iter.Seq[Entity]
	Len() int
	Contains(target Entity) bool
}

// ConnectableMut is the write capability of a relation component.
//
// None of the methods hold on to the component beyond the call, so they are
// safe to use while the owning row is being destroyed.
type ConnectableMut interface {
	Connectable

	// Connect binds target. Single-valued relations return the target they
	// displaced with ok set; multi-valued relations append and never dedup.
	Connect(target Entity) (displaced Entity, ok bool)
	// Disconnect removes one occurrence of target and reports whether it did.
	Disconnect(target Entity) bool
	// Drain removes and returns every target.
	Drain() []Entity
}

// Targets collects the targets of c into a fresh slice.
func Targets(c Connectable) []Entity {
	out := make([]Entity, 0, c.Len())
	for e := range c.Iter() {
		out = append(out, e)
	}
	return out
}
