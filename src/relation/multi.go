package relation

import "iter"

// inlineTargets is the number of targets a Multi stores without a heap
// allocation. Most relations in practice fan out to a handful of rows.
const inlineTargets = 4

// Multi is a relation side holding an ordered, usually small, sequence of
// targets. Disconnect swaps the removed slot with the last one, so order is
// only insertion order until the first removal.
type Multi struct {
	inline  [inlineTargets]Entity
	targets []Entity
}

// NewMulti returns an empty multi-target relation.
func NewMulti() *Multi {
	m := &Multi{}
	m.targets = m.inline[:0]
	return m
}

func (m *Multi) slice() []Entity {
	if m.targets == nil {
		m.targets = m.inline[:0]
	}
	return m.targets
}

func (m *Multi) Iter() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, e := range m.slice() {
			if !yield(e) {
				return
			}
		}
	}
}

func (m *Multi) Len() int {
	return len(m.targets)
}

func (m *Multi) Contains(target Entity) bool {
	for _, e := range m.targets {
		if e == target {
			return true
		}
	}
	return false
}

// Connect appends target. Duplicates are kept.
func (m *Multi) Connect(target Entity) (Entity, bool) {
	m.targets = append(m.slice(), target)
	return NoEntity, false
}

func (m *Multi) Disconnect(target Entity) bool {
	ts := m.slice()
	for i, e := range ts {
		if e != target {
			continue
		}
		last := len(ts) - 1
		ts[i] = ts[last]
		ts[last] = NoEntity
		m.targets = ts[:last]
		return true
	}
	return false
}

func (m *Multi) Drain() []Entity {
	if len(m.targets) == 0 {
		return nil
	}
	out := make([]Entity, len(m.targets))
	copy(out, m.targets)
	clear(m.inline[:])
	m.targets = m.inline[:0]
	return out
}
