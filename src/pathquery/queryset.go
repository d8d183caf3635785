// Package pathquery compiles declarative path patterns over declared
// relationships into traversal functions.
//
// A query set is a list of clauses:
//
//	items     = match (o: Owner) -[Owns]-> (i: Item where Item.weight > 2)
//	mut owner = match Item <-[Owns]- (o: Owner ?)
//
// Nodes name the components a candidate must carry; edges walk one side of
// a relationship ("->" the From side, "<-" the To side). A '?' marker turns
// into a Predicate argument of the entry points Run, RunAll, RunMut and
// RunAllMut.
package pathquery

import (
	"fmt"

	"relgraph/src/relation"

	"go.uber.org/multierr"
)

// QuerySet groups compiled queries under one namespace.
type QuerySet struct {
	name    string
	queries map[string]*Query
	order   []string
}

// Compile parses src and checks every clause against schema. All problems
// in the set are reported together.
func Compile(schema Schema, name string, src string) (*QuerySet, error) {
	if !relation.IsIdent(name) {
		return nil, fmt.Errorf("invalid query set name %q", name)
	}
	decls, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("query set %s: %w", name, err)
	}

	set := &QuerySet{name: name, queries: make(map[string]*Query)}
	var errs error
	for _, decl := range decls {
		if _, dup := set.queries[decl.Name]; dup {
			errs = multierr.Append(errs, &SyntaxError{Pos: decl.Pos, Msg: fmt.Sprintf("query %s is declared twice", decl.Name)})
			continue
		}
		q, err := compileQuery(schema, name, decl)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("query %s: %w", decl.Name, err))
			continue
		}
		set.queries[decl.Name] = q
		set.order = append(set.order, decl.Name)
	}
	if errs != nil {
		return nil, fmt.Errorf("query set %s: %w", name, errs)
	}
	return set, nil
}

// MustCompile is Compile for query sets fixed at build time; it panics on
// error.
func MustCompile(schema Schema, name string, src string) *QuerySet {
	set, err := Compile(schema, name, src)
	if err != nil {
		panic(err)
	}
	return set
}

func (s *QuerySet) Name() string {
	return s.name
}

// Query returns the named query.
func (s *QuerySet) Query(name string) (*Query, bool) {
	q, ok := s.queries[name]
	return q, ok
}

// MustQuery panics when name is not part of the set.
func (s *QuerySet) MustQuery(name string) *Query {
	q, ok := s.queries[name]
	if !ok {
		panic(fmt.Sprintf("pathquery: query set %s has no query %s", s.name, name))
	}
	return q
}

// Names lists the queries in declaration order.
func (s *QuerySet) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
