package pathquery

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"relgraph/src/relation"
)

// FieldReader lets a component expose named fields to where-filters without
// reflection.
type FieldReader interface {
	Field(name string) (any, bool)
}

// Expr is a boolean where-filter expression attached to a node or an edge.
type Expr interface {
	String() string
	eval(row componentReader) bool
	check(scope fieldScope) error
}

// fieldScope is the set of components a filter may read.
type fieldScope struct {
	allowed func(relation.ComponentID) bool
	what    string
}

// nodeScope limits a node filter to the node's own types.
func nodeScope(types []relation.ComponentID) fieldScope {
	return fieldScope{
		allowed: func(id relation.ComponentID) bool { return slices.Contains(types, id) },
		what:    "one of the node's types",
	}
}

// componentReader fetches a component of the candidate being filtered.
type componentReader func(id relation.ComponentID) (any, bool)

// LogicExpr joins two expressions with AND or OR.
type LogicExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

// NotExpr negates an expression.
type NotExpr struct {
	X Expr
}

// FieldRef names Component.field on the candidate.
type FieldRef struct {
	Component relation.ComponentID
	Name      string
}

// Operand is either a field reference or a literal value.
type Operand struct {
	Field *FieldRef
	Value any // string, int64, float64 or bool
	Pos   Position
}

// Comparison is a single "operand op operand" condition.
type Comparison struct {
	Left     Operand
	Operator string
	Right    Operand
}

func (e *LogicExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, strings.ToLower(e.Op), e.Right)
}

func (e *NotExpr) String() string {
	return fmt.Sprintf("not %s", e.X)
}

func (o Operand) String() string {
	if o.Field != nil {
		return fmt.Sprintf("%s.%s", o.Field.Component, o.Field.Name)
	}
	if s, ok := o.Value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", o.Value)
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Operator, c.Right)
}

func (e *LogicExpr) eval(row componentReader) bool {
	if e.Op == "OR" {
		return e.Left.eval(row) || e.Right.eval(row)
	}
	return e.Left.eval(row) && e.Right.eval(row)
}

func (e *NotExpr) eval(row componentReader) bool {
	return !e.X.eval(row)
}

// eval is false whenever a referenced component or field is missing.
func (c *Comparison) eval(row componentReader) bool {
	l, ok := c.Left.resolve(row)
	if !ok {
		return false
	}
	r, ok := c.Right.resolve(row)
	if !ok {
		return false
	}
	return compareValues(l, r, c.Operator)
}

func (e *LogicExpr) check(scope fieldScope) error {
	if err := e.Left.check(scope); err != nil {
		return err
	}
	return e.Right.check(scope)
}

func (e *NotExpr) check(scope fieldScope) error {
	return e.X.check(scope)
}

func (c *Comparison) check(scope fieldScope) error {
	if c.Left.Field == nil && c.Right.Field == nil {
		return &SyntaxError{Pos: c.Left.Pos, Msg: fmt.Sprintf("comparison %s has no field reference", c)}
	}
	for _, o := range []Operand{c.Left, c.Right} {
		if o.Field != nil && !scope.allowed(o.Field.Component) {
			return &SyntaxError{Pos: o.Pos, Msg: fmt.Sprintf("%s is not %s", o.Field.Component, scope.what)}
		}
		if _, isBool := o.Value.(bool); isBool && c.Operator != "==" && c.Operator != "!=" {
			return &SyntaxError{Pos: o.Pos, Msg: fmt.Sprintf("operator %s cannot compare booleans", c.Operator)}
		}
	}
	return nil
}

func (o Operand) resolve(row componentReader) (any, bool) {
	if o.Field == nil {
		return o.Value, true
	}
	c, ok := row(o.Field.Component)
	if !ok {
		return nil, false
	}
	return fieldValue(c, o.Field.Name)
}

// fieldValue reads a named field from a component: through FieldReader, a
// plain map, or an exported struct field matched case-insensitively. A
// field promoted through a nil embedded pointer is a miss.
func fieldValue(c any, name string) (any, bool) {
	switch v := c.(type) {
	case FieldReader:
		return v.Field(name)
	case map[string]any:
		x, ok := v[name]
		return x, ok
	}

	rv := reflect.ValueOf(c)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	sf, ok := rv.Type().FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
	if !ok {
		return nil, false
	}
	f, err := rv.FieldByIndexErr(sf.Index)
	if err != nil || !f.CanInterface() {
		return nil, false
	}
	return f.Interface(), true
}

func isComparisonOperator(op string) bool {
	switch op {
	case "==", "!=", "<", ">", "<=", ">=":
		return true
	}
	return false
}

// parseLiteral turns a number token into int64 or float64.
func parseLiteral(text string) (any, error) {
	if strings.Contains(text, ".") {
		return strconv.ParseFloat(text, 64)
	}
	return strconv.ParseInt(text, 10, 64)
}

// compareValues handles type conversion and comparison. Strings compare
// lexically, booleans only for (in)equality, two integers exactly, any
// other numeric pair as float64.
func compareValues(a, b any, op string) bool {
	aStr, aIsString := a.(string)
	bStr, bIsString := b.(string)
	if aIsString && bIsString {
		return ordered(strings.Compare(aStr, bStr), op)
	}

	aBool, aIsBool := a.(bool)
	bBool, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		switch op {
		case "==":
			return aBool == bBool
		case "!=":
			return aBool != bBool
		}
		return false
	}

	if cmp, ok := compareIntegers(a, b); ok {
		return ordered(cmp, op)
	}

	aVal, aOK := toFloat(a)
	bVal, bOK := toFloat(b)
	if aOK && bOK {
		switch {
		case aVal < bVal:
			return ordered(-1, op)
		case aVal > bVal:
			return ordered(1, op)
		default:
			return ordered(0, op)
		}
	}

	// Fall back to string equality if the types are unrelated.
	switch op {
	case "==":
		return fmt.Sprint(a) == fmt.Sprint(b)
	case "!=":
		return fmt.Sprint(a) != fmt.Sprint(b)
	}
	return false
}

func ordered(cmp int, op string) bool {
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// compareIntegers compares two integer values without going through
// float64. ok is false unless both are integers.
func compareIntegers(a, b any) (cmp int, ok bool) {
	aInt, aNeg, aOK := toInteger(a)
	bInt, bNeg, bOK := toInteger(b)
	if !aOK || !bOK {
		return 0, false
	}
	switch {
	case aNeg && !bNeg:
		return -1, true
	case !aNeg && bNeg:
		return 1, true
	case aInt < bInt:
		return -1, true
	case aInt > bInt:
		return 1, true
	}
	return 0, true
}

// toInteger returns v as a uint64 bit pattern plus its sign. Negative values
// keep their two's complement form, which orders correctly among negatives.
func toInteger(v any) (n uint64, neg bool, ok bool) {
	switch x := v.(type) {
	case int:
		return uint64(x), x < 0, true
	case int8:
		return uint64(x), x < 0, true
	case int16:
		return uint64(x), x < 0, true
	case int32:
		return uint64(x), x < 0, true
	case int64:
		return uint64(x), x < 0, true
	case uint:
		return uint64(x), false, true
	case uint8:
		return uint64(x), false, true
	case uint16:
		return uint64(x), false, true
	case uint32:
		return uint64(x), false, true
	case uint64:
		return x, false, true
	}
	return 0, false, false
}
