package pathquery

import (
	"errors"
	"sort"
	"testing"

	"relgraph/src/integrity"
	"relgraph/src/relation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// testSource is a map-backed store good enough to drive traversals.
type testSource struct {
	rows     map[relation.Entity]map[relation.ComponentID]any
	writable bool
}

func newTestSource() *testSource {
	return &testSource{rows: make(map[relation.Entity]map[relation.ComponentID]any), writable: true}
}

func (s *testSource) Component(e relation.Entity, id relation.ComponentID) (any, bool) {
	c, ok := s.rows[e][id]
	return c, ok
}

func (s *testSource) Insert(e relation.Entity, id relation.ComponentID, v any) error {
	if s.rows[e] == nil {
		s.rows[e] = make(map[relation.ComponentID]any)
	}
	s.rows[e][id] = v
	return nil
}

func (s *testSource) sorted() []relation.Entity {
	out := make([]relation.Entity, 0, len(s.rows))
	for e := range s.rows {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *testSource) Scan(id relation.ComponentID, fn func(relation.Entity) bool) {
	for _, e := range s.sorted() {
		if _, ok := s.rows[e][id]; ok && !fn(e) {
			return
		}
	}
}

func (s *testSource) Entities(fn func(relation.Entity) bool) {
	for _, e := range s.sorted() {
		if !fn(e) {
			return
		}
	}
}

func (s *testSource) Writable() bool {
	return s.writable
}

type stats struct {
	Weight  int
	Label   string
	Fragile bool
}

type baseStats struct {
	Weight int
}

// shelfStats promotes Weight through an embedded pointer that may be nil.
type shelfStats struct {
	*baseStats
	Label string
}

const (
	o1 relation.Entity = iota + 1
	o2
	i1
	i2
	i3
	p1
	p2
	p3
)

// fixture builds two owners; o1 owns i1 and i2, o2 owns i3. i1 holds p1
// and p2, i2 holds p3.
func fixture(t *testing.T) (*integrity.Registry, *testSource) {
	t.Helper()
	reg := integrity.NewRegistry(nil)
	for _, d := range []string{
		"Owns: Owner -< Item",
		"Holds: Holder -< Part",
		"Pair: Left -- Right",
	} {
		decl, err := relation.ParseDeclaration(d)
		require.NoError(t, err)
		require.NoError(t, reg.Register(decl))
	}
	require.NoError(t, reg.RegisterComponent("Stats"))
	require.NoError(t, reg.RegisterComponent("Name"))

	src := newTestSource()
	link := func(rel string, from, to relation.Entity) {
		require.NoError(t, reg.Link(src, rel, from, to))
	}
	link("Owns", o1, i1)
	link("Owns", o1, i2)
	link("Owns", o2, i3)
	link("Holds", i1, p1)
	link("Holds", i1, p2)
	link("Holds", i2, p3)

	require.NoError(t, src.Insert(o1, "Name", map[string]any{"value": "alice"}))
	require.NoError(t, src.Insert(o2, "Name", map[string]any{"value": "bob"}))
	require.NoError(t, src.Insert(i1, "Stats", &stats{Weight: 5, Label: "lamp"}))
	require.NoError(t, src.Insert(i2, "Stats", &stats{Weight: 1, Label: "cup", Fragile: true}))
	require.NoError(t, src.Insert(i3, "Stats", stats{Weight: 9, Label: "desk"}))
	return reg, src
}

func compileOne(t *testing.T, schema Schema, src string) *Query {
	t.Helper()
	set, err := Compile(schema, "Test", src)
	require.NoError(t, err)
	names := set.Names()
	require.Len(t, names, 1)
	return set.MustQuery(names[0])
}

func collect(t *testing.T, q *Query, src Source, root relation.Entity, preds ...Predicate) [][]relation.Entity {
	t.Helper()
	var got [][]relation.Entity
	res, err := Run(q, src, root, func(m *Match) ControlFlow[struct{}] {
		got = append(got, m.Entities())
		return Continue[struct{}]()
	}, preds...)
	require.NoError(t, err)
	assert.False(t, res.Returned)
	assert.Equal(t, len(got), res.Matches)
	return got
}

func TestTokenize(t *testing.T) {
	toks, err := tokenize(`x = match (o: Owner ?) -[Owns]-> Item <-[Owns]- (where Stats.w >= -2.5 and Name.v != "a b")`)
	require.NoError(t, err)

	var kinds []tokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.kind)
	}
	assert.Equal(t, []tokenKind{
		tokIdent, tokAssign, tokIdent,
		tokLParen, tokIdent, tokColon, tokIdent, tokQuestion, tokRParen,
		tokFwdOpen, tokIdent, tokFwdClose, tokIdent,
		tokRevOpen, tokIdent, tokRevClose,
		tokLParen, tokIdent, tokIdent, tokDot, tokIdent, tokOp, tokNumber,
		tokIdent, tokIdent, tokDot, tokIdent, tokOp, tokString, tokRParen,
		tokEOF,
	}, kinds)
	assert.Equal(t, "a b", toks[len(toks)-3].text)
	assert.Equal(t, "-2.5", toks[22].text)

	_, err = tokenize(`x = match $`)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
	assert.Equal(t, 11, synErr.Pos.Col)

	_, err = tokenize(`"open`)
	assert.ErrorAs(t, err, &synErr)
}

func TestParse(t *testing.T) {
	t.Run("clauses and shapes", func(t *testing.T) {
		decls, err := Parse(`
			# inventory queries
			items = match (o: Owner) -[Owns]-> (i: Item & Stats where Stats.weight > 2)
			mut owner = match Item <-[Owns ?]- (o: Owner ?);
			any = match ()
		`)
		require.NoError(t, err)
		require.Len(t, decls, 3)

		items := decls[0]
		assert.Equal(t, "items", items.Name)
		assert.False(t, items.Mutable)
		require.Len(t, items.Path.Nodes, 2)
		assert.Equal(t, "o", items.Path.Nodes[0].Binding)
		assert.Equal(t, []relation.ComponentID{"Item", "Stats"}, items.Path.Nodes[1].Types)
		assert.Equal(t, FilterExpr, items.Path.Nodes[1].Filter.Kind)
		assert.Equal(t, Forward, items.Path.Edges[0].Direction)

		owner := decls[1]
		assert.True(t, owner.Mutable)
		assert.Equal(t, Reverse, owner.Path.Edges[0].Direction)
		assert.Equal(t, FilterPredicate, owner.Path.Edges[0].Filter.Kind)
		assert.Equal(t, 0, owner.Path.Edges[0].Filter.Slot)
		assert.Equal(t, 1, owner.Path.Nodes[1].Filter.Slot)

		assert.Empty(t, decls[2].Path.Nodes[0].Types)
	})

	t.Run("string form reparses", func(t *testing.T) {
		src := `mut q = match (a: Owner where Name.value == "x" or not Name.value == "y") -[Owns ?]-> (Item ?)`
		decls, err := Parse(src)
		require.NoError(t, err)
		again, err := Parse(decls[0].String())
		require.NoError(t, err)
		assert.Equal(t, decls[0].String(), again[0].String())
	})

	t.Run("a query may be named mut", func(t *testing.T) {
		decls, err := Parse(`mut = match Owner`)
		require.NoError(t, err)
		assert.Equal(t, "mut", decls[0].Name)
		assert.False(t, decls[0].Mutable)
	})

	t.Run("reports every bad clause", func(t *testing.T) {
		_, err := Parse(`
			a = match Owner -[Owns]- Item
			b = match
			c = match Owner
			d = Owner
		`)
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 3)
	})

	tests := []struct {
		name string
		src  string
	}{
		{"missing match", `a = (Owner)`},
		{"unclosed node", `a = match (Owner`},
		{"edge without target", `a = match Owner -[Owns]->`},
		{"mismatched edge", `a = match Owner <-[Owns]-> Item`},
		{"keyword as name", `a = match (where: Owner)`},
		{"bad operator in where", `a = match (Stats where Stats.w = 1)`},
		{"trailing garbage", `a = match Owner )`},
		{"missing field", `a = match (Stats where Stats > 1)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			var synErr *SyntaxError
			assert.ErrorAs(t, err, &synErr)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	reg, _ := fixture(t)

	tests := []struct {
		name string
		src  string
	}{
		{"unknown relationship", `a = match Owner -[Likes]-> Item`},
		{"unknown component", `a = match (Ghost)`},
		{"filter on foreign component", `a = match (Item where Stats.weight > 1)`},
		{"constant comparison", `a = match (Stats where 1 == 1)`},
		{"ordering on booleans", `a = match (Stats where Stats.fragile < true)`},
		{"duplicate binding", `a = match (x: Owner) -[Owns]-> (x: Item)`},
		{"duplicate query", "a = match Owner\na = match Item"},
		{"bad set name", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := "Set"
			if tt.src == "" {
				name = "not valid"
			}
			_, err := Compile(reg, name, tt.src)
			assert.Error(t, err)
		})
	}

	t.Run("collects all errors of a set", func(t *testing.T) {
		_, err := Compile(reg, "Set", "a = match (Ghost)\nb = match Owner -[Likes]-> Item\nc = match Owner")
		require.Error(t, err)
		assert.Len(t, multierr.Errors(errors.Unwrap(err)), 2)
		assert.Contains(t, err.Error(), "unknown component Ghost")
		assert.Contains(t, err.Error(), "unknown relationship Likes")
	})

	assert.Panics(t, func() { MustCompile(reg, "Set", "a = match (Ghost)") })
}

func TestCompileResolvesEdges(t *testing.T) {
	reg, _ := fixture(t)
	q := compileOne(t, reg, `q = match (o: Owner) -[Owns]-> (i: Item) <-[Owns]- (back: Owner)`)

	edges := q.Decl().Path.Edges
	assert.Equal(t, relation.ComponentID("Owner"), edges[0].Walk)
	assert.Equal(t, relation.KindMulti, edges[0].Fanout)
	assert.Equal(t, relation.ComponentID("Item"), edges[1].Walk)
	assert.Equal(t, relation.KindSingle, edges[1].Fanout)
	assert.Equal(t, []string{"o", "i", "back"}, q.Bindings())
	assert.Equal(t, "Test.q", q.FullName())
	assert.Equal(t, 0, q.Predicates())
}

func TestTraversalCompleteness(t *testing.T) {
	reg, src := fixture(t)
	q := compileOne(t, reg, `parts = match (o: Owner) -[Owns]-> (i: Item & Holder) -[Holds]-> (p: Part)`)

	got := collect(t, q, src, o1)
	assert.Equal(t, [][]relation.Entity{
		{o1, i1, p1},
		{o1, i1, p2},
		{o1, i2, p3},
	}, got)

	// o2's only item holds nothing.
	assert.Empty(t, collect(t, q, src, o2))
	// A root without the first node's type is a soft miss.
	assert.Empty(t, collect(t, q, src, p1))
}

func TestReverseWalk(t *testing.T) {
	reg, src := fixture(t)
	q := compileOne(t, reg, `owner = match (p: Part) <-[Holds]- (i: Item) <-[Owns]- (o: Owner)`)
	assert.Equal(t, [][]relation.Entity{{p3, i2, o1}}, collect(t, q, src, p3))
}

func TestSoftMissOnTypeFilter(t *testing.T) {
	reg, src := fixture(t)
	q := compileOne(t, reg, `holders = match Owner -[Owns]-> (i: Holder)`)
	// i3 never held anything, so it has no Holder component.
	assert.Equal(t, [][]relation.Entity{{o1, i1}, {o1, i2}}, collect(t, q, src, o1))
	assert.Empty(t, collect(t, q, src, o2))
}

func TestWhereFilter(t *testing.T) {
	reg, src := fixture(t)

	tests := []struct {
		filter string
		want   []relation.Entity
	}{
		{`Stats.weight > 2`, []relation.Entity{i1}},
		{`Stats.weight <= 5 and Stats.label != "lamp"`, []relation.Entity{i2}},
		{`Stats.label == "cup" or Stats.label == "lamp"`, []relation.Entity{i1, i2}},
		{`not (Stats.fragile == true)`, []relation.Entity{i1}},
		{`Stats.missing == 1`, nil},
		{`3 < Stats.weight`, []relation.Entity{i1}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			q := compileOne(t, reg, `q = match Owner -[Owns]-> (i: Stats where `+tt.filter+`)`)
			var got []relation.Entity
			for _, m := range collect(t, q, src, o1) {
				got = append(got, m[1])
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("map components", func(t *testing.T) {
		q := compileOne(t, reg, `q = match (o: Owner & Name where Name.value == "bob")`)
		res, err := RunAll(q, src, func(m *Match) ControlFlow[relation.Entity] {
			return Return(m.Entity(0))
		})
		require.NoError(t, err)
		assert.True(t, res.Returned)
		assert.Equal(t, o2, res.Value)
	})

	t.Run("nil embedded pointer is a miss", func(t *testing.T) {
		const bare, heavy relation.Entity = 20, 21
		require.NoError(t, reg.Link(src, "Owns", o2, bare))
		require.NoError(t, reg.Link(src, "Owns", o2, heavy))
		require.NoError(t, src.Insert(bare, "Stats", &shelfStats{Label: "lamp"}))
		require.NoError(t, src.Insert(heavy, "Stats", &shelfStats{baseStats: &baseStats{Weight: 4}, Label: "crate"}))

		q := compileOne(t, reg, `q = match Owner -[Owns]-> (i: Stats where Stats.weight > 2)`)
		var got [][]relation.Entity
		assert.NotPanics(t, func() { got = collect(t, q, src, o2) })
		assert.Equal(t, [][]relation.Entity{{o2, i3}, {o2, heavy}}, got)
	})

	t.Run("struct values work too", func(t *testing.T) {
		q := compileOne(t, reg, `q = match Owner -[Owns]-> (i: Stats where Stats.label == "desk")`)
		assert.Equal(t, [][]relation.Entity{{o2, i3}}, collect(t, q, src, o2))
	})
}

func TestEdgeWhereFilter(t *testing.T) {
	reg, src := fixture(t)

	q := compileOne(t, reg, `q = match (o: Owner) -[Owns where Stats.weight > 2]-> (i: Item)`)
	assert.Equal(t, FilterExpr, q.Decl().Path.Edges[0].Filter.Kind)
	assert.Equal(t, 0, q.Predicates())
	assert.Equal(t, [][]relation.Entity{{o1, i1}}, collect(t, q, src, o1))
	assert.Equal(t, [][]relation.Entity{{o2, i3}}, collect(t, q, src, o2))

	t.Run("reverse edges filter the source side", func(t *testing.T) {
		q := compileOne(t, reg, `q = match (i: Item) <-[Owns where Name.value == "bob"]- (o: Owner)`)
		assert.Empty(t, collect(t, q, src, i1))
		assert.Equal(t, [][]relation.Entity{{i3, o2}}, collect(t, q, src, i3))
	})

	t.Run("missing components are a miss", func(t *testing.T) {
		q := compileOne(t, reg, `q = match Owner -[Owns where Name.value == 1]-> Item`)
		assert.Empty(t, collect(t, q, src, o1))
	})

	t.Run("string form reparses", func(t *testing.T) {
		decls, err := Parse(`q = match Owner -[Owns where Stats.weight > 2 and not Stats.fragile == true]-> (Item)`)
		require.NoError(t, err)
		again, err := Parse(decls[0].String())
		require.NoError(t, err)
		assert.Equal(t, decls[0].String(), again[0].String())
	})

	t.Run("unknown component is rejected", func(t *testing.T) {
		_, err := Compile(reg, "Set", `q = match Owner -[Owns where Ghost.x == 1]-> Item`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Ghost is not a declared component")
	})
}

func TestPredicates(t *testing.T) {
	reg, src := fixture(t)
	q := compileOne(t, reg, `q = match (o: Owner ?) -[Owns ?]-> (i: Item) -[Holds]-> (p: Part ?)`)
	require.Equal(t, 3, q.Predicates())

	var hops []Hop
	owner := func(h Hop) bool {
		hops = append(hops, h)
		return true
	}
	notI2 := func(h Hop) bool {
		hops = append(hops, h)
		return h.To != i2
	}
	notP1 := func(h Hop) bool {
		return h.To != p1
	}

	got := collect(t, q, src, o1, owner, notI2, notP1)
	assert.Equal(t, [][]relation.Entity{{o1, i1, p2}}, got)

	require.Len(t, hops, 3)
	assert.Equal(t, Hop{Node: 0, To: o1, src: src}, hops[0])
	assert.Equal(t, 1, hops[1].Node)
	assert.True(t, hops[1].Edge)
	assert.Equal(t, o1, hops[1].From)
	assert.Equal(t, i1, hops[1].To)
	_, hasItem := hops[1].Component("Item")
	assert.True(t, hasItem)

	t.Run("count must match", func(t *testing.T) {
		_, err := Run(q, src, o1, func(*Match) ControlFlow[int] { return Continue[int]() }, owner)
		assert.ErrorIs(t, err, ErrPredicateCount)
		_, err = Run(q, src, o1, func(*Match) ControlFlow[int] { return Continue[int]() }, owner, nil, notP1)
		assert.ErrorIs(t, err, ErrPredicateCount)
	})
}

func TestEarlyExit(t *testing.T) {
	reg, src := fixture(t)
	q := compileOne(t, reg, `parts = match (o: Owner) -[Owns]-> (i: Item) -[Holds]-> (p: Part)`)

	t.Run("return on first candidate", func(t *testing.T) {
		calls := 0
		res, err := RunAll(q, src, func(m *Match) ControlFlow[relation.Entity] {
			calls++
			return Return(m.Entity(2))
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.True(t, res.Returned)
		assert.Equal(t, p1, res.Value)
		assert.Equal(t, 1, res.Matches)
	})

	t.Run("break stops all levels", func(t *testing.T) {
		calls := 0
		res, err := RunAll(q, src, func(m *Match) ControlFlow[string] {
			calls++
			if m.Entity(2) == p2 {
				return Break[string]()
			}
			return Continue[string]()
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.False(t, res.Returned)
		assert.Equal(t, "", res.Value)
	})

	t.Run("no match and continue to completion look alike except for Matches", func(t *testing.T) {
		none, err := Run(q, src, o2, func(*Match) ControlFlow[int] { return Continue[int]() })
		require.NoError(t, err)
		all, err := Run(q, src, o1, func(*Match) ControlFlow[int] { return Continue[int]() })
		require.NoError(t, err)
		assert.False(t, none.Returned)
		assert.False(t, all.Returned)
		assert.Equal(t, 0, none.Matches)
		assert.Equal(t, 3, all.Matches)
	})
}

func TestRunAllUsesIndexOrder(t *testing.T) {
	reg, src := fixture(t)
	q := compileOne(t, reg, `q = match (o: Owner) -[Owns]-> (i: Item)`)

	var got []relation.Entity
	res, err := RunAll(q, src, func(m *Match) ControlFlow[struct{}] {
		i, ok := m.Get("i")
		require.True(t, ok)
		got = append(got, i)
		_, ok = m.Get("nope")
		assert.False(t, ok)
		return Continue[struct{}]()
	})
	require.NoError(t, err)
	assert.Equal(t, []relation.Entity{i1, i2, i3}, got)
	assert.Equal(t, 3, res.Matches)

	untyped := compileOne(t, reg, `all = match ()`)
	res, err = RunAll(untyped, src, func(*Match) ControlFlow[struct{}] { return Continue[struct{}]() })
	require.NoError(t, err)
	assert.Equal(t, len(src.rows), res.Matches)
}

func TestMutableEntryPoints(t *testing.T) {
	reg, src := fixture(t)
	set, err := Compile(reg, "Inventory", `
		items = match (o: Owner) -[Owns]-> (i: Item)
		mut give = match (o: Owner) -[Owns]-> (i: Item)
	`)
	require.NoError(t, err)
	items := set.MustQuery("items")
	give := set.MustQuery("give")
	assert.Equal(t, []string{"items", "give"}, set.Names())
	assert.Equal(t, "Inventory", set.Name())
	assert.True(t, give.Mutable())
	assert.Panics(t, func() { set.MustQuery("missing") })

	noop := func(*Match) ControlFlow[int] { return Continue[int]() }

	_, err = RunMut(items, src, o1, noop)
	assert.ErrorIs(t, err, ErrNotMutable)

	src.writable = false
	_, err = RunAllMut(give, src, noop)
	assert.ErrorIs(t, err, ErrReadOnlySource)
	src.writable = true

	// Hand every item of o1 over to o2 while walking o1's items.
	res, err := RunMut(give, src, o1, func(m *Match) ControlFlow[int] {
		require.NoError(t, reg.Link(src, "Owns", o2, m.Entity(1)))
		return Continue[int]()
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matches)
	assert.Empty(t, collect(t, items, src, o1))
	assert.Len(t, collect(t, items, src, o2), 3)

	// Immutable entry points work for mut queries too.
	assert.Len(t, collect(t, give, src, o2), 3)
}

func TestRunAllMutSnapshotsRoots(t *testing.T) {
	reg, src := fixture(t)
	q := compileOne(t, reg, `mut q = match (o: Owner)`)

	next := relation.Entity(100)
	res, err := RunAllMut(q, src, func(m *Match) ControlFlow[int] {
		// New owners must not be visited by this run.
		require.NoError(t, reg.Link(src, "Owns", next, i3))
		next++
		return Continue[int]()
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matches)
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b any
		op   string
		want bool
	}{
		{"a", "b", "<", true},
		{"a", "a", ">=", true},
		{int64(3), 3.0, "==", true},
		{uint8(2), int64(3), "<", true},
		{"4", int64(4), "==", true},
		{true, true, "==", true},
		{true, false, "<", false},
		{[]int{1}, []int{1}, "==", true},
		{[]int{1}, []int{1}, "<", false},
		{int64(1<<53 + 1), int64(1 << 53), ">", true},
		{int64(1<<53 + 1), int64(1 << 53), "==", false},
		{^uint64(0), int64(-1), ">", true},
		{int64(-2), int64(-1), "<", true},
		{int32(-5), uint16(3), "<", true},
		{uint64(1<<63 + 1), uint64(1 << 63), "!=", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareValues(tt.a, tt.b, tt.op), "%v %s %v", tt.a, tt.op, tt.b)
	}
}
