package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingle(t *testing.T) {
	t.Run("connect displaces previous target", func(t *testing.T) {
		s := NewSingle()
		prev, ok := s.Connect(1)
		assert.False(t, ok)
		assert.Equal(t, NoEntity, prev)

		prev, ok = s.Connect(2)
		assert.True(t, ok)
		assert.Equal(t, Entity(1), prev)

		for i := Entity(3); i < 10; i++ {
			s.Connect(i)
			assert.LessOrEqual(t, s.Len(), 1)
		}
		assert.Equal(t, []Entity{9}, Targets(s))
	})

	t.Run("disconnect absent target is a no-op", func(t *testing.T) {
		s := NewSingle()
		s.Connect(7)
		assert.False(t, s.Disconnect(8))
		assert.Equal(t, []Entity{7}, Targets(s))
		assert.True(t, s.Disconnect(7))
		assert.Empty(t, Targets(s))
		assert.False(t, s.Disconnect(7))
	})

	t.Run("drain empties", func(t *testing.T) {
		s := NewSingle()
		assert.Nil(t, s.Drain())
		s.Connect(4)
		assert.Equal(t, []Entity{4}, s.Drain())
		assert.Equal(t, 0, s.Len())
	})
}

func TestMulti(t *testing.T) {
	t.Run("keeps insertion order and duplicates", func(t *testing.T) {
		m := NewMulti()
		for _, e := range []Entity{5, 3, 5, 9} {
			_, ok := m.Connect(e)
			assert.False(t, ok)
		}
		assert.Equal(t, []Entity{5, 3, 5, 9}, Targets(m))
	})

	t.Run("disconnect swaps with last", func(t *testing.T) {
		m := NewMulti()
		for _, e := range []Entity{1, 2, 3, 4} {
			m.Connect(e)
		}
		require.True(t, m.Disconnect(1))
		assert.Equal(t, []Entity{4, 2, 3}, Targets(m))
		assert.False(t, m.Contains(1))
	})

	t.Run("disconnect removes one occurrence", func(t *testing.T) {
		m := NewMulti()
		m.Connect(1)
		m.Connect(1)
		assert.True(t, m.Disconnect(1))
		assert.Equal(t, []Entity{1}, Targets(m))
	})

	t.Run("disconnect absent target leaves targets unchanged", func(t *testing.T) {
		m := NewMulti()
		m.Connect(1)
		m.Connect(2)
		assert.False(t, m.Disconnect(3))
		assert.Equal(t, []Entity{1, 2}, Targets(m))
	})

	t.Run("grows past inline capacity", func(t *testing.T) {
		m := NewMulti()
		var want []Entity
		for e := Entity(1); e <= 3*inlineTargets; e++ {
			m.Connect(e)
			want = append(want, e)
		}
		assert.Equal(t, want, Targets(m))
		assert.Equal(t, want, m.Drain())
		assert.Equal(t, 0, m.Len())
		m.Connect(42)
		assert.Equal(t, []Entity{42}, Targets(m))
	})

	t.Run("zero value is usable", func(t *testing.T) {
		var m Multi
		m.Connect(3)
		assert.True(t, m.Contains(3))
	})

	t.Run("iteration stops early", func(t *testing.T) {
		m := NewMulti()
		m.Connect(1)
		m.Connect(2)
		var seen []Entity
		for e := range m.Iter() {
			seen = append(seen, e)
			break
		}
		assert.Equal(t, []Entity{1}, seen)
	})
}

func TestParseDeclaration(t *testing.T) {
	tests := []struct {
		input   string
		want    Declaration
		wantErr bool
	}{
		{input: "Owns: Owner -< Item", want: Declaration{Name: "Owns", From: "Owner", To: "Item", Cardinality: OneToMany}},
		{input: "Parent:Child >- ParentOf", want: Declaration{Name: "Parent", From: "Child", To: "ParentOf", Cardinality: ManyToOne}},
		{input: "Pair: Left -- Right", want: Declaration{Name: "Pair", From: "Left", To: "Right", Cardinality: OneToOne}},
		{input: "Tags: Tagged >-< Tag", want: Declaration{Name: "Tags", From: "Tagged", To: "Tag", Cardinality: ManyToMany}},
		{input: "Owns Owner -< Item", wantErr: true},
		{input: "Owns: Owner => Item", wantErr: true},
		{input: "Owns: Owner -< Owner", wantErr: true},
		{input: "Owns: Owner -<", wantErr: true},
		{input: "9x: Owner -< Item", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDeclaration(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadDeclaration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeclarationSides(t *testing.T) {
	d := Declaration{Name: "Owns", From: "Owner", To: "Item", Cardinality: OneToMany}

	peer, ok := d.Peer("Owner")
	assert.True(t, ok)
	assert.Equal(t, ComponentID("Item"), peer)
	_, ok = d.Peer("Name")
	assert.False(t, ok)

	k, _ := d.KindOf("Owner")
	assert.Equal(t, KindMulti, k)
	k, _ = d.KindOf("Item")
	assert.Equal(t, KindSingle, k)

	r := d.Reverse()
	assert.Equal(t, Declaration{Name: "Owns", From: "Item", To: "Owner", Cardinality: ManyToOne}, r)
	k, _ = r.KindOf("Owner")
	assert.Equal(t, KindMulti, k)
	assert.Equal(t, d, r.Reverse())
	assert.True(t, d.SameShape(r))
}

func TestParseEntity(t *testing.T) {
	e, err := ParseEntity("e12")
	require.NoError(t, err)
	assert.Equal(t, Entity(12), e)
	assert.Equal(t, "e12", e.String())

	e, err = ParseEntity("7")
	require.NoError(t, err)
	assert.Equal(t, Entity(7), e)

	_, err = ParseEntity("bob")
	assert.Error(t, err)
}
