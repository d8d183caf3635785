package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"SPAWN", []string{"SPAWN"}},
		{"  SET e1  Name value=\"a b\" n=3 ", []string{"SET", "e1", "Name", "value=\"a b\"", "n=3"}},
		{"SET e1 Tag 'x y'", []string{"SET", "e1", "Tag", "'x y'"}},
		{"", nil},
	}
	for _, tt := range tests {
		got, err := SplitCommand(tt.line)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.line)
	}

	_, err := SplitCommand(`SET e1 Name value="open`)
	assert.Error(t, err)
}

func TestStripQuotes(t *testing.T) {
	assert.Equal(t, "a b", StripQuotes(`"a b"`))
	assert.Equal(t, "x", StripQuotes(" 'x' "))
	assert.Equal(t, `"mixed'`, StripQuotes(`"mixed'`))
	assert.Equal(t, `"`, StripQuotes(`"`))
}

func TestBSONRoundTrip(t *testing.T) {
	data, err := EncodeBSON(map[string]interface{}{"name": "alice", "count": int64(3)})
	require.NoError(t, err)

	doc, err := DecodeBSON(data)
	require.NoError(t, err)
	assert.Equal(t, "alice", doc["name"])
	assert.Equal(t, int64(3), doc["count"])

	_, err = DecodeBSON([]byte{0x01})
	assert.Error(t, err)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("components: []\n"), 0644))

	assert.True(t, FileExists(path, nil))
	assert.False(t, FileExists(dir, nil))
	assert.False(t, FileExists(filepath.Join(dir, "missing"), nil))
}

func TestGenerateUUID(t *testing.T) {
	id := GenerateUUID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, GenerateUUID())
}
