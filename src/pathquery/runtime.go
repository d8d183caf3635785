package pathquery

import (
	"errors"
	"fmt"

	"relgraph/src/relation"
)

var (
	// ErrPredicateCount is returned when the predicates passed to an entry
	// point do not line up with the query's '?' markers.
	ErrPredicateCount = errors.New("wrong number of predicates")
	// ErrNotMutable is returned by the mutable entry points for queries that
	// were not declared with 'mut'.
	ErrNotMutable = errors.New("query is not declared mut")
	// ErrReadOnlySource is returned when a mutable traversal is handed a
	// source that only grants shared access.
	ErrReadOnlySource = errors.New("source is read-only")
)

// Source is the host store as seen by a traversal. Implementations decide
// the access discipline; a traversal holds whatever access the source
// grants for its whole run and never yields.
type Source interface {
	Component(e relation.Entity, id relation.ComponentID) (any, bool)
	// Scan visits every entity carrying id in ascending entity order until
	// fn returns false.
	Scan(id relation.ComponentID, fn func(relation.Entity) bool)
	// Entities visits every live entity in ascending order until fn returns
	// false.
	Entities(fn func(relation.Entity) bool)
}

// WriteSource is a Source holding exclusive access.
type WriteSource interface {
	Source
	Writable() bool
}

type flow int

const (
	flowContinue flow = iota
	flowBreak
	flowReturn
)

// ControlFlow is what a match callback returns: keep searching, stop, or
// stop and hand back a value.
type ControlFlow[T any] struct {
	kind  flow
	value T
}

// Continue keeps the traversal going.
func Continue[T any]() ControlFlow[T] {
	return ControlFlow[T]{kind: flowContinue}
}

// Break ends the traversal without a value.
func Break[T any]() ControlFlow[T] {
	return ControlFlow[T]{kind: flowBreak}
}

// Return ends the traversal and makes v the result.
func Return[T any](v T) ControlFlow[T] {
	return ControlFlow[T]{kind: flowReturn, value: v}
}

// Result is the outcome of one traversal call. Returned is set only when the
// callback asked for Return; Matches counts callback invocations so callers
// can tell "nothing matched" from "matched but kept going".
type Result[T any] struct {
	Value    T
	Returned bool
	Matches  int
}

// Hop is the view a Predicate gets of the candidate being considered.
type Hop struct {
	// Node is the path index of the node being entered.
	Node int
	// Edge is set when the predicate is attached to the edge leading to Node.
	Edge bool
	// From is the entity matched by the previous node, NoEntity at the root.
	From relation.Entity
	// To is the candidate.
	To relation.Entity

	src Source
}

// Component reads a component of the candidate.
func (h Hop) Component(id relation.ComponentID) (any, bool) {
	return h.src.Component(h.To, id)
}

// Predicate decides a '?' filter. Predicates are passed to the entry points
// in the order their markers appear in the query.
type Predicate func(h Hop) bool

// Match is the current binding of every path node. It is only valid during
// the callback it is passed to; use Entities to keep a copy.
type Match struct {
	query *Query
	ents  []relation.Entity
	src   Source
}

// Len is the number of nodes in the path.
func (m *Match) Len() int {
	return len(m.ents)
}

// Entity returns the entity matched by node i.
func (m *Match) Entity(i int) relation.Entity {
	return m.ents[i]
}

// Get returns the entity bound to name.
func (m *Match) Get(name string) (relation.Entity, bool) {
	i, ok := m.query.bindings[name]
	if !ok {
		return relation.NoEntity, false
	}
	return m.ents[i], true
}

// Entities copies the current bindings.
func (m *Match) Entities() []relation.Entity {
	out := make([]relation.Entity, len(m.ents))
	copy(out, m.ents)
	return out
}

// Component reads a component of node i's entity.
func (m *Match) Component(i int, id relation.ComponentID) (any, bool) {
	return m.src.Component(m.ents[i], id)
}

// traversal is the per-call state threaded through the compiled steps.
type traversal struct {
	src     Source
	mutable bool
	preds   []Predicate
	match   Match
	visit   func(*Match) flow
}

func (t *traversal) hop(node int, edge bool, to relation.Entity) Hop {
	h := Hop{Node: node, Edge: edge, To: to, src: t.src}
	if node > 0 {
		h.From = t.match.ents[node-1]
	}
	return h
}

// Run walks q from root with shared access.
func Run[T any](q *Query, src Source, root relation.Entity, fn func(*Match) ControlFlow[T], preds ...Predicate) (Result[T], error) {
	return execute(q, src, false, rootOnly(root), fn, preds)
}

// RunAll walks q from every entity in the store's index for the first
// node's first type (or every entity when the first node is untyped).
func RunAll[T any](q *Query, src Source, fn func(*Match) ControlFlow[T], preds ...Predicate) (Result[T], error) {
	return execute(q, src, false, q.roots(src, false), fn, preds)
}

// RunMut walks a mut query from root with exclusive access. Candidate lists
// are copied before they are walked, so the callback may relink entities.
func RunMut[T any](q *Query, src WriteSource, root relation.Entity, fn func(*Match) ControlFlow[T], preds ...Predicate) (Result[T], error) {
	if err := q.checkMutable(src); err != nil {
		return Result[T]{}, err
	}
	return execute(q, src, true, rootOnly(root), fn, preds)
}

// RunAllMut is RunAll with exclusive access; the root set is collected up
// front so the callback may spawn or despawn entities.
func RunAllMut[T any](q *Query, src WriteSource, fn func(*Match) ControlFlow[T], preds ...Predicate) (Result[T], error) {
	if err := q.checkMutable(src); err != nil {
		return Result[T]{}, err
	}
	return execute(q, src, true, q.roots(src, true), fn, preds)
}

func (q *Query) checkMutable(src WriteSource) error {
	if !q.decl.Mutable {
		return fmt.Errorf("%w: %s", ErrNotMutable, q.FullName())
	}
	if !src.Writable() {
		return fmt.Errorf("%w: %s needs exclusive access", ErrReadOnlySource, q.FullName())
	}
	return nil
}

func rootOnly(root relation.Entity) func(func(relation.Entity) bool) {
	return func(yield func(relation.Entity) bool) {
		yield(root)
	}
}

// roots draws root candidates from the store's ordered index.
func (q *Query) roots(src Source, snapshot bool) func(func(relation.Entity) bool) {
	scan := src.Entities
	if first := q.decl.Path.Nodes[0]; len(first.Types) > 0 {
		scan = func(fn func(relation.Entity) bool) { src.Scan(first.Types[0], fn) }
	}
	if !snapshot {
		return scan
	}
	return func(yield func(relation.Entity) bool) {
		var all []relation.Entity
		scan(func(e relation.Entity) bool {
			all = append(all, e)
			return true
		})
		for _, e := range all {
			if !yield(e) {
				return
			}
		}
	}
}

func execute[T any](q *Query, src Source, mutable bool, roots func(func(relation.Entity) bool), fn func(*Match) ControlFlow[T], preds []Predicate) (Result[T], error) {
	var res Result[T]
	if len(preds) != q.predicates {
		return res, fmt.Errorf("%w: %s takes %d, got %d", ErrPredicateCount, q.FullName(), q.predicates, len(preds))
	}
	for i, p := range preds {
		if p == nil {
			return res, fmt.Errorf("%w: predicate %d of %s is nil", ErrPredicateCount, i, q.FullName())
		}
	}

	t := &traversal{
		src:     src,
		mutable: mutable,
		preds:   preds,
		match: Match{
			query: q,
			ents:  make([]relation.Entity, len(q.decl.Path.Nodes)),
			src:   src,
		},
	}
	t.visit = func(m *Match) flow {
		res.Matches++
		cf := fn(m)
		if cf.kind == flowReturn {
			res.Value, res.Returned = cf.value, true
		}
		return cf.kind
	}

	roots(func(e relation.Entity) bool {
		return q.entry(t, e) == flowContinue
	})
	return res, nil
}
