package arena_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilestrike/arena/internal/game/arena"
)

const mapJSON = `{
	"width": 4, "height": 4, "tilewidth": 32, "tileheight": 32,
	"layers": [
		{"type": "tilelayer", "name": "ground", "data": [1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1]},
		{"type": "tilelayer", "name": "collision", "data": [0,0,0,0,0,9,0,0,0,0,0,0,0,0,0,0]}
	]
}`

func TestLoadMapFromBytes(t *testing.T) {
	m, err := arena.LoadMapFromBytes("mini", []byte(mapJSON))
	require.NoError(t, err)

	assert.Equal(t, "mini", m.Name)
	assert.Equal(t, 4, m.Width)
	assert.True(t, m.Blocked(arena.TilePos{X: 1, Y: 1}))
	assert.False(t, m.Blocked(arena.TilePos{X: 2, Y: 2}))
}

func TestLoadMapFromBytes_BadJSON(t *testing.T) {
	_, err := arena.LoadMapFromBytes("broken", []byte("{nope"))
	assert.Error(t, err)
}

func TestLoadMapFromBytes_BadLayerSize(t *testing.T) {
	_, err := arena.LoadMapFromBytes("short", []byte(`{
		"width": 4, "height": 4, "tilewidth": 32, "tileheight": 32,
		"layers": [{"type": "tilelayer", "name": "ground", "data": [0,0]}]
	}`))
	assert.Error(t, err)
}

func TestLoadMapSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mini.json"), []byte(mapJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maps.yaml"), []byte(`
maps:
  - name: mini
    file: mini.json
`), 0644))

	set, err := arena.LoadMapSet(dir)
	require.NoError(t, err)

	m, ok := set.Get("mini")
	require.True(t, ok)
	assert.Equal(t, "mini", m.Name)
	assert.Equal(t, []string{"mini"}, set.Names())

	_, ok = set.Get("missing")
	assert.False(t, ok)
}

func TestLoadMapSet_MissingManifest(t *testing.T) {
	_, err := arena.LoadMapSet(t.TempDir())
	assert.Error(t, err)
}

func TestLoadMapSet_EmptyManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maps.yaml"), []byte("maps: []\n"), 0644))
	_, err := arena.LoadMapSet(dir)
	assert.Error(t, err)
}

func TestDefaultMap(t *testing.T) {
	m := arena.DefaultMap("fallback")
	assert.Equal(t, "fallback", m.Name)
	assert.Equal(t, 30, m.Width)
	assert.Equal(t, 30, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			assert.False(t, m.Blocked(arena.TilePos{X: x, Y: y}), "default map must be obstacle free")
		}
	}
}
