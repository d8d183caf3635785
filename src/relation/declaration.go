package relation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Kind is the storage shape of one side of a relationship.
type Kind int

const (
	KindSingle Kind = iota
	KindMulti
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMulti:
		return "multi"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// New returns an empty relation component of this kind.
func (k Kind) New() ConnectableMut {
	if k == KindMulti {
		return NewMulti()
	}
	return NewSingle()
}

// Cardinality is the direction token of a relationship declaration.
type Cardinality string

const (
	// OneToMany: the From side holds many targets, each To side one.
	OneToMany Cardinality = "-<"

	// ManyToOne: the From side holds one target, the To side many.
	ManyToOne Cardinality = ">-"

	OneToOne   Cardinality = "--"
	ManyToMany Cardinality = ">-<"
)

var ErrBadDeclaration = errors.New("invalid relationship declaration")

// Kinds returns the storage kinds of the From and To sides.
func (c Cardinality) Kinds() (from, to Kind, ok bool) {
	switch c {
	case OneToMany:
		return KindMulti, KindSingle, true
	case ManyToOne:
		return KindSingle, KindMulti, true
	case OneToOne:
		return KindSingle, KindSingle, true
	case ManyToMany:
		return KindMulti, KindMulti, true
	}
	return KindSingle, KindSingle, false
}

// Mirror returns the token seen from the other side.
func (c Cardinality) Mirror() Cardinality {
	switch c {
	case OneToMany:
		return ManyToOne
	case ManyToOne:
		return OneToMany
	}
	return c
}

// Declaration binds two relation component types as the From and To sides
// of a named relationship. Each side is the other's peer: an entity holding
// the From component points at entities holding the To component, and
// every such target points back.
type Declaration struct {
	Name        string
	From        ComponentID
	To          ComponentID
	Cardinality Cardinality
}

// Validate reports structural problems with the declaration.
func (d Declaration) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing relationship name", ErrBadDeclaration)
	}
	if d.From == "" || d.To == "" {
		return fmt.Errorf("%w: relationship %s needs both a From and a To component", ErrBadDeclaration, d.Name)
	}
	if d.From == d.To {
		return fmt.Errorf("%w: relationship %s uses %s for both sides", ErrBadDeclaration, d.Name, d.From)
	}
	if _, _, ok := d.Cardinality.Kinds(); !ok {
		return fmt.Errorf("%w: relationship %s has unknown direction token %q", ErrBadDeclaration, d.Name, d.Cardinality)
	}
	return nil
}

// Peer returns the opposite side of id.
func (d Declaration) Peer(id ComponentID) (ComponentID, bool) {
	switch id {
	case d.From:
		return d.To, true
	case d.To:
		return d.From, true
	}
	return "", false
}

// KindOf returns the storage kind of side id.
func (d Declaration) KindOf(id ComponentID) (Kind, bool) {
	from, to, _ := d.Cardinality.Kinds()
	switch id {
	case d.From:
		return from, true
	case d.To:
		return to, true
	}
	return KindSingle, false
}

// Reverse is the structural mirror of d: same relationship, sides swapped.
// It lets code refer to a relationship from its To side without a second
// declaration.
func (d Declaration) Reverse() Declaration {
	return Declaration{
		Name:        d.Name,
		From:        d.To,
		To:          d.From,
		Cardinality: d.Cardinality.Mirror(),
	}
}

// SameShape reports whether d and o describe the same relationship, possibly
// from opposite sides.
func (d Declaration) SameShape(o Declaration) bool {
	return d == o || d == o.Reverse()
}

func (d Declaration) String() string {
	return fmt.Sprintf("%s: %s %s %s", d.Name, d.From, d.Cardinality, d.To)
}

// ParseDeclaration parses the declaration surface "Name: From <token> To",
// for example "Owns: Owner -< Item".
func ParseDeclaration(s string) (Declaration, error) {
	name, rest, found := strings.Cut(s, ":")
	if !found {
		return Declaration{}, fmt.Errorf("%w: %q is missing ':' after the relationship name", ErrBadDeclaration, s)
	}
	parts := strings.Fields(rest)
	if len(parts) != 3 {
		return Declaration{}, fmt.Errorf("%w: %q should read 'Name: From <token> To'", ErrBadDeclaration, s)
	}
	d := Declaration{
		Name:        strings.TrimSpace(name),
		From:        ComponentID(parts[0]),
		Cardinality: Cardinality(parts[1]),
		To:          ComponentID(parts[2]),
	}
	for _, ident := range []string{d.Name, string(d.From), string(d.To)} {
		if !IsIdent(ident) {
			return Declaration{}, fmt.Errorf("%w: %q is not a valid identifier", ErrBadDeclaration, ident)
		}
	}
	if err := d.Validate(); err != nil {
		return Declaration{}, err
	}
	return d, nil
}

// IsIdent reports whether s is a letter followed by letters, digits or '_'.
func IsIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
