package relation

import "iter"

// Single is a relation side that holds at most one target.
type Single struct {
	target Entity
	set    bool
}

// NewSingle returns an empty single-target relation.
func NewSingle() *Single {
	return &Single{}
}

// Get returns the held target, if any.
func (s *Single) Get() (Entity, bool) {
	return s.target, s.set
}

func (s *Single) Iter() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		if s.set {
			yield(s.target)
		}
	}
}

func (s *Single) Len() int {
	if s.set {
		return 1
	}
	return 0
}

func (s *Single) Contains(target Entity) bool {
	return s.set && s.target == target
}

// Connect always replaces the held target and hands back the old one.
func (s *Single) Connect(target Entity) (Entity, bool) {
	prev, had := s.target, s.set
	s.target, s.set = target, true
	return prev, had
}

func (s *Single) Disconnect(target Entity) bool {
	if !s.Contains(target) {
		return false
	}
	s.target, s.set = NoEntity, false
	return true
}

func (s *Single) Drain() []Entity {
	if !s.set {
		return nil
	}
	out := []Entity{s.target}
	s.target, s.set = NoEntity, false
	return out
}
