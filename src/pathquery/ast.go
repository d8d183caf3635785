package pathquery

import (
	"fmt"
	"strings"

	"relgraph/src/relation"
)

// FilterKind says how a node or edge restricts its candidates.
type FilterKind int

const (
	FilterNone FilterKind = iota
	// FilterPredicate is the '?' marker: the caller supplies a Predicate.
	FilterPredicate
	// FilterExpr is a literal boolean expression evaluated inline.
	FilterExpr
)

// Filter is attached to a node or an edge.
type Filter struct {
	Kind FilterKind
	Expr Expr
	// Slot is the predicate argument index for FilterPredicate.
	Slot int
}

// Node matches one entity of the path.
type Node struct {
	Binding string
	// Types are the components a candidate must carry. A candidate missing
	// any of them is skipped, never reported as an error.
	Types  []relation.ComponentID
	Filter Filter
	Pos    Position
}

// Direction selects which side of a relationship an edge walks.
type Direction int

const (
	// Forward walks the From component towards To-side entities.
	Forward Direction = iota
	// Reverse walks the To component back towards From-side entities.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Edge is one hop between two nodes.
type Edge struct {
	Relationship string
	Direction    Direction
	Filter       Filter
	Pos          Position

	// Resolved against the schema by the compiler.
	Walk   relation.ComponentID
	Fanout relation.Kind
}

// Path alternates nodes and edges: len(Edges) == len(Nodes)-1.
type Path struct {
	Nodes []Node
	Edges []Edge
}

// QueryDecl is one "name = match <path>" clause.
type QueryDecl struct {
	Name    string
	Mutable bool
	Path    Path
	Pos     Position
}

func (n Node) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	if n.Binding != "" {
		sb.WriteString(n.Binding)
		sb.WriteString(": ")
	}
	for i, t := range n.Types {
		if i > 0 {
			sb.WriteString(" & ")
		}
		sb.WriteString(string(t))
	}
	switch n.Filter.Kind {
	case FilterPredicate:
		sb.WriteString(" ?")
	case FilterExpr:
		sb.WriteString(" where ")
		sb.WriteString(n.Filter.Expr.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (e Edge) String() string {
	pred := ""
	switch e.Filter.Kind {
	case FilterPredicate:
		pred = " ?"
	case FilterExpr:
		pred = " where " + e.Filter.Expr.String()
	}
	if e.Direction == Reverse {
		return fmt.Sprintf("<-[%s%s]-", e.Relationship, pred)
	}
	return fmt.Sprintf("-[%s%s]->", e.Relationship, pred)
}

func (p Path) String() string {
	var sb strings.Builder
	for i, n := range p.Nodes {
		if i > 0 {
			sb.WriteByte(' ')
			sb.WriteString(p.Edges[i-1].String())
			sb.WriteByte(' ')
		}
		sb.WriteString(n.String())
	}
	return sb.String()
}

func (q *QueryDecl) String() string {
	mut := ""
	if q.Mutable {
		mut = "mut "
	}
	return fmt.Sprintf("%s%s = match %s", mut, q.Name, q.Path)
}
