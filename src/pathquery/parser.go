package pathquery

import (
	"fmt"

	"relgraph/src/relation"

	"go.uber.org/multierr"
)

var keywords = []string{"match", "where", "and", "or", "not", "true", "false"}

type parser struct {
	toks []token
	pos  int
	// slot numbers '?' markers left to right within one clause.
	slot int
}

// Parse turns query-set source into declarations. Every malformed clause is
// reported; the returned error combines them.
func Parse(src string) ([]*QueryDecl, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	var decls []*QueryDecl
	var errs error
	for !p.at(tokEOF) {
		if p.at(tokSemi) {
			p.pos++
			continue
		}
		decl, err := p.parseClause()
		if err != nil {
			errs = multierr.Append(errs, err)
			p.skipClause()
			continue
		}
		decls = append(decls, decl)
	}
	if errs != nil {
		return nil, errs
	}
	return decls, nil
}

func (p *parser) peek() token {
	return p.peekAt(0)
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) at(kind tokenKind) bool {
	return p.peek().kind == kind
}

func (p *parser) next() token {
	t := p.peek()
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, found %s", kind, t)
	}
	return p.next(), nil
}

func (p *parser) expectKeyword(kw string) error {
	t := p.peek()
	if !t.is(kw) {
		return p.errorf(t, "expected '%s', found %s", kw, t)
	}
	p.next()
	return nil
}

func (p *parser) ident() (token, error) {
	t, err := p.expect(tokIdent)
	if err != nil {
		return t, err
	}
	for _, kw := range keywords {
		if t.is(kw) {
			return t, p.errorf(t, "keyword '%s' cannot be used as a name", kw)
		}
	}
	return t, nil
}

// atClauseStart reports whether the upcoming tokens begin "[mut] name =".
func (p *parser) atClauseStart() bool {
	if p.peek().is("mut") && p.peekAt(1).kind == tokIdent && p.peekAt(2).kind == tokAssign {
		return true
	}
	return p.peek().kind == tokIdent && p.peekAt(1).kind == tokAssign
}

// skipClause moves past a malformed clause so later ones still get checked.
func (p *parser) skipClause() {
	p.next()
	for !p.at(tokEOF) {
		if p.at(tokSemi) {
			p.next()
			return
		}
		if p.atClauseStart() {
			return
		}
		p.next()
	}
}

func (p *parser) parseClause() (*QueryDecl, error) {
	p.slot = 0
	start := p.peek()
	decl := &QueryDecl{Pos: start.pos}

	if start.is("mut") && p.peekAt(1).kind == tokIdent {
		decl.Mutable = true
		p.next()
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	decl.Name = name.text

	if _, err := p.expect(tokAssign); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("match"); err != nil {
		return nil, err
	}

	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	decl.Path = path

	if !p.at(tokSemi) && !p.at(tokEOF) && !p.atClauseStart() {
		t := p.peek()
		return nil, p.errorf(t, "unexpected %s after path", t)
	}
	return decl, nil
}

func (p *parser) parsePath() (Path, error) {
	var path Path
	node, err := p.parseNode()
	if err != nil {
		return path, err
	}
	path.Nodes = append(path.Nodes, node)

	for p.at(tokFwdOpen) || p.at(tokRevOpen) {
		edge, err := p.parseEdge()
		if err != nil {
			return path, err
		}
		node, err := p.parseNode()
		if err != nil {
			return path, err
		}
		path.Edges = append(path.Edges, edge)
		path.Nodes = append(path.Nodes, node)
	}
	return path, nil
}

func (p *parser) parseNode() (Node, error) {
	t := p.peek()
	node := Node{Pos: t.pos}

	switch t.kind {
	case tokIdent:
		name, err := p.ident()
		if err != nil {
			return node, err
		}
		node.Types = []relation.ComponentID{relation.ComponentID(name.text)}
		return node, nil
	case tokLParen:
		p.next()
	default:
		return node, p.errorf(t, "expected a node, found %s", t)
	}

	if p.at(tokIdent) && p.peekAt(1).kind == tokColon {
		binding, err := p.ident()
		if err != nil {
			return node, err
		}
		node.Binding = binding.text
		p.next()
	}

	if p.at(tokIdent) && !p.peek().is("where") {
		for {
			typ, err := p.ident()
			if err != nil {
				return node, err
			}
			node.Types = append(node.Types, relation.ComponentID(typ.text))
			if !p.at(tokAmp) {
				break
			}
			p.next()
		}
	}

	switch {
	case p.at(tokQuestion):
		p.next()
		node.Filter = Filter{Kind: FilterPredicate, Slot: p.slot}
		p.slot++
	case p.peek().is("where"):
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return node, err
		}
		node.Filter = Filter{Kind: FilterExpr, Expr: expr}
	}

	if _, err := p.expect(tokRParen); err != nil {
		return node, err
	}
	return node, nil
}

func (p *parser) parseEdge() (Edge, error) {
	open := p.next()
	edge := Edge{Pos: open.pos, Direction: Forward}
	closer := tokFwdClose
	if open.kind == tokRevOpen {
		edge.Direction = Reverse
		closer = tokRevClose
	}

	rel, err := p.ident()
	if err != nil {
		return edge, err
	}
	edge.Relationship = rel.text

	switch {
	case p.at(tokQuestion):
		p.next()
		edge.Filter = Filter{Kind: FilterPredicate, Slot: p.slot}
		p.slot++
	case p.peek().is("where"):
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return edge, err
		}
		edge.Filter = Filter{Kind: FilterExpr, Expr: expr}
	}

	t := p.peek()
	if t.kind != closer {
		if t.kind == tokFwdClose || t.kind == tokRevClose {
			return edge, p.errorf(t, "edge opened with %s must close with %s", open.kind, closer)
		}
		return edge, p.errorf(t, "expected %s, found %s", closer, t)
	}
	p.next()
	return edge, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().is("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.peek().is("and") {
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &LogicExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (Expr, error) {
	if p.peek().is("not") {
		p.next()
		x, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &NotExpr{X: x}, nil
	}

	if p.at(tokLParen) {
		p.next()
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, err := p.expect(tokOp)
	if err != nil {
		return nil, err
	}
	if !isComparisonOperator(op.text) {
		return nil, p.errorf(op, "invalid operator: %s", op.text)
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &Comparison{Left: left, Operator: op.text, Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	t := p.peek()
	o := Operand{Pos: t.pos}
	switch {
	case t.kind == tokString:
		p.next()
		o.Value = t.text
	case t.kind == tokNumber:
		p.next()
		v, err := parseLiteral(t.text)
		if err != nil {
			return o, p.errorf(t, "invalid number %s", t.text)
		}
		o.Value = v
	case t.is("true"), t.is("false"):
		p.next()
		o.Value = t.is("true")
	case t.kind == tokIdent:
		comp, err := p.ident()
		if err != nil {
			return o, err
		}
		if _, err := p.expect(tokDot); err != nil {
			return o, err
		}
		field, err := p.expect(tokIdent)
		if err != nil {
			return o, err
		}
		o.Field = &FieldRef{Component: relation.ComponentID(comp.text), Name: field.text}
	default:
		return o, p.errorf(t, "expected a field or a literal, found %s", t)
	}
	return o, nil
}
