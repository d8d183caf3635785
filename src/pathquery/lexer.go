package pathquery

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokColon
	tokAmp
	tokQuestion
	tokAssign
	tokDot
	tokSemi
	tokOp       // == != < > <= >=
	tokFwdOpen  // -[
	tokFwdClose // ]->
	tokRevOpen  // <-[
	tokRevClose // ]-
)

var tokenNames = map[tokenKind]string{
	tokEOF:      "end of input",
	tokIdent:    "identifier",
	tokString:   "string",
	tokNumber:   "number",
	tokLParen:   "'('",
	tokRParen:   "')'",
	tokColon:    "':'",
	tokAmp:      "'&'",
	tokQuestion: "'?'",
	tokAssign:   "'='",
	tokDot:      "'.'",
	tokSemi:     "';'",
	tokOp:       "comparison operator",
	tokFwdOpen:  "'-['",
	tokFwdClose: "']->'",
	tokRevOpen:  "'<-['",
	tokRevClose: "']-'",
}

func (k tokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Position locates a token in the query source.
type Position struct {
	Offset int
	Line   int
	Col    int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

type token struct {
	kind tokenKind
	text string
	pos  Position
}

func (t token) String() string {
	if t.kind == tokEOF {
		return t.kind.String()
	}
	return fmt.Sprintf("%q", t.text)
}

// is reports whether t is the keyword kw. Keywords are case-insensitive.
func (t token) is(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

// SyntaxError is a structural problem in query source.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Msg)
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

// tokenize breaks query source into tokens while preserving quoted strings.
// Whitespace, including newlines, only separates tokens; '#' starts a
// comment running to the end of the line.
func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src, line: 1, col: 1}
	var tokens []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (lx *lexer) pos() Position {
	return Position{Offset: lx.off, Line: lx.line, Col: lx.col}
}

func (lx *lexer) advance(n int) {
	for i := 0; i < n && lx.off < len(lx.src); i++ {
		if lx.src[lx.off] == '\n' {
			lx.line++
			lx.col = 1
		} else {
			lx.col++
		}
		lx.off++
	}
}

func (lx *lexer) hasPrefix(s string) bool {
	return strings.HasPrefix(lx.src[lx.off:], s)
}

func (lx *lexer) emit(kind tokenKind, n int) token {
	t := token{kind: kind, text: lx.src[lx.off : lx.off+n], pos: lx.pos()}
	lx.advance(n)
	return t
}

func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	if lx.off >= len(lx.src) {
		return token{kind: tokEOF, pos: lx.pos()}, nil
	}

	ch := lx.src[lx.off]
	switch {
	case ch == '"' || ch == '\'':
		return lx.quoted(ch)
	case isIdentStart(ch):
		n := 1
		for lx.off+n < len(lx.src) && isIdentPart(lx.src[lx.off+n]) {
			n++
		}
		return lx.emit(tokIdent, n), nil
	case isDigit(ch), ch == '-' && lx.off+1 < len(lx.src) && isDigit(lx.src[lx.off+1]):
		return lx.number(), nil
	}

	switch {
	case lx.hasPrefix("<-["):
		return lx.emit(tokRevOpen, 3), nil
	case lx.hasPrefix("-["):
		return lx.emit(tokFwdOpen, 2), nil
	case lx.hasPrefix("]->"):
		return lx.emit(tokFwdClose, 3), nil
	case lx.hasPrefix("]-"):
		return lx.emit(tokRevClose, 2), nil
	case lx.hasPrefix("=="), lx.hasPrefix("!="), lx.hasPrefix("<="), lx.hasPrefix(">="):
		return lx.emit(tokOp, 2), nil
	}

	switch ch {
	case '<', '>':
		return lx.emit(tokOp, 1), nil
	case '(':
		return lx.emit(tokLParen, 1), nil
	case ')':
		return lx.emit(tokRParen, 1), nil
	case ':':
		return lx.emit(tokColon, 1), nil
	case '&':
		return lx.emit(tokAmp, 1), nil
	case '?':
		return lx.emit(tokQuestion, 1), nil
	case '=':
		return lx.emit(tokAssign, 1), nil
	case '.':
		return lx.emit(tokDot, 1), nil
	case ';':
		return lx.emit(tokSemi, 1), nil
	}
	return token{}, &SyntaxError{Pos: lx.pos(), Msg: fmt.Sprintf("unexpected character %q", ch)}
}

func (lx *lexer) skipSpace() {
	for lx.off < len(lx.src) {
		switch ch := lx.src[lx.off]; {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			lx.advance(1)
		case ch == '#':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance(1)
			}
		default:
			return
		}
	}
}

func (lx *lexer) quoted(quote byte) (token, error) {
	start := lx.pos()
	var sb strings.Builder
	lx.advance(1)
	for lx.off < len(lx.src) {
		ch := lx.src[lx.off]
		switch {
		case ch == quote:
			lx.advance(1)
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		case ch == '\\' && lx.off+1 < len(lx.src):
			sb.WriteByte(lx.src[lx.off+1])
			lx.advance(2)
		default:
			sb.WriteByte(ch)
			lx.advance(1)
		}
	}
	return token{}, &SyntaxError{Pos: start, Msg: "unterminated string"}
}

func (lx *lexer) number() token {
	n := 0
	if lx.src[lx.off] == '-' {
		n++
	}
	for lx.off+n < len(lx.src) && (isDigit(lx.src[lx.off+n]) || lx.src[lx.off+n] == '.') {
		n++
	}
	return lx.emit(tokNumber, n)
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
