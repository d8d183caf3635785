package pathquery

import (
	"fmt"
	"sort"

	"relgraph/src/relation"

	"go.uber.org/multierr"
)

// Schema resolves the names a query mentions. *integrity.Registry
// implements it.
type Schema interface {
	Relationship(name string) (relation.Declaration, bool)
	HasComponent(id relation.ComponentID) bool
}

// step handles one stage of a traversal for entity e and reports whether
// the traversal should go on.
type step func(t *traversal, e relation.Entity) flow

// Query is a compiled path query.
type Query struct {
	set        string
	decl       *QueryDecl
	bindings   map[string]int
	predicates int
	entry      step
}

// Name is the query's name within its set.
func (q *Query) Name() string {
	return q.decl.Name
}

// FullName is "Set.name".
func (q *Query) FullName() string {
	return q.set + "." + q.decl.Name
}

// Mutable reports whether the query was declared with 'mut'.
func (q *Query) Mutable() bool {
	return q.decl.Mutable
}

// Predicates is the number of '?' markers, i.e. predicate arguments.
func (q *Query) Predicates() int {
	return q.predicates
}

// Decl exposes the checked declaration.
func (q *Query) Decl() *QueryDecl {
	return q.decl
}

// Bindings returns the named nodes in path order.
func (q *Query) Bindings() []string {
	names := make([]string, 0, len(q.bindings))
	for name := range q.bindings {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return q.bindings[names[i]] < q.bindings[names[j]] })
	return names
}

func (q *Query) String() string {
	return q.set + "." + q.decl.String()
}

// compileQuery checks decl against the schema and builds its traversal.
func compileQuery(schema Schema, set string, decl *QueryDecl) (*Query, error) {
	q := &Query{
		set:      set,
		decl:     decl,
		bindings: make(map[string]int),
	}

	var errs error
	for i := range decl.Path.Nodes {
		n := &decl.Path.Nodes[i]
		if n.Binding != "" {
			if _, dup := q.bindings[n.Binding]; dup {
				errs = multierr.Append(errs, &SyntaxError{Pos: n.Pos, Msg: fmt.Sprintf("binding %s is declared twice", n.Binding)})
			}
			q.bindings[n.Binding] = i
		}
		for _, typ := range n.Types {
			if !schema.HasComponent(typ) {
				errs = multierr.Append(errs, &SyntaxError{Pos: n.Pos, Msg: fmt.Sprintf("unknown component %s", typ)})
			}
		}
		switch n.Filter.Kind {
		case FilterExpr:
			errs = multierr.Append(errs, n.Filter.Expr.check(nodeScope(n.Types)))
		case FilterPredicate:
			q.predicates++
		}
	}

	edgeScope := fieldScope{allowed: schema.HasComponent, what: "a declared component"}
	for i := range decl.Path.Edges {
		e := &decl.Path.Edges[i]
		if e.Filter.Kind == FilterExpr {
			errs = multierr.Append(errs, e.Filter.Expr.check(edgeScope))
		}
		d, ok := schema.Relationship(e.Relationship)
		if !ok {
			errs = multierr.Append(errs, &SyntaxError{Pos: e.Pos, Msg: fmt.Sprintf("unknown relationship %s", e.Relationship)})
			continue
		}
		e.Walk = d.From
		if e.Direction == Reverse {
			e.Walk = d.To
		}
		e.Fanout, _ = d.KindOf(e.Walk)
		if e.Filter.Kind == FilterPredicate {
			q.predicates++
		}
	}

	if errs != nil {
		return nil, errs
	}
	q.entry = q.build()
	return q, nil
}

// build composes the traversal from the innermost callback outwards: the
// last node first, then one edge loop and its source node per hop.
func (q *Query) build() step {
	nodes := q.decl.Path.Nodes
	var body step = emit
	for i := len(nodes) - 1; i >= 0; i-- {
		body = q.nodeStep(i, body)
		if i > 0 {
			body = q.edgeStep(i-1, body)
		}
	}
	return body
}

func emit(t *traversal, _ relation.Entity) flow {
	return t.visit(&t.match)
}

// nodeStep binds e to node i when it carries every required component and
// passes the node's filter.
func (q *Query) nodeStep(i int, next step) step {
	n := &q.decl.Path.Nodes[i]
	return func(t *traversal, e relation.Entity) flow {
		for _, typ := range n.Types {
			if _, ok := t.src.Component(e, typ); !ok {
				return flowContinue
			}
		}
		switch n.Filter.Kind {
		case FilterPredicate:
			if !t.preds[n.Filter.Slot](t.hop(i, false, e)) {
				return flowContinue
			}
		case FilterExpr:
			row := func(id relation.ComponentID) (any, bool) { return t.src.Component(e, id) }
			if !n.Filter.Expr.eval(row) {
				return flowContinue
			}
		}
		t.match.ents[i] = e
		return next(t, e)
	}
}

// edgeStep walks edge i from node i's entity and feeds each candidate that
// passes the edge's filter to node i+1.
func (q *Query) edgeStep(i int, next step) step {
	edge := &q.decl.Path.Edges[i]
	return func(t *traversal, cur relation.Entity) flow {
		c, ok := t.src.Component(cur, edge.Walk)
		if !ok {
			return flowContinue
		}
		rel, ok := c.(relation.Connectable)
		if !ok {
			return flowContinue
		}

		visit := func(cand relation.Entity) flow {
			switch edge.Filter.Kind {
			case FilterPredicate:
				if !t.preds[edge.Filter.Slot](t.hop(i+1, true, cand)) {
					return flowContinue
				}
			case FilterExpr:
				row := func(id relation.ComponentID) (any, bool) { return t.src.Component(cand, id) }
				if !edge.Filter.Expr.eval(row) {
					return flowContinue
				}
			}
			return next(t, cand)
		}

		if s, ok := rel.(*relation.Single); ok {
			if cand, ok := s.Get(); ok {
				return visit(cand)
			}
			return flowContinue
		}
		if t.mutable {
			for _, cand := range relation.Targets(rel) {
				if f := visit(cand); f != flowContinue {
					return f
				}
			}
			return flowContinue
		}
		for cand := range rel.Iter() {
			if f := visit(cand); f != flowContinue {
				return f
			}
		}
		return flowContinue
	}
}
