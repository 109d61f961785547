package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tilestrike/arena/internal/game/arena"
)

// testMap builds a validated w x h map with 32px tiles and a collision layer
// marking the given tiles.
func testMap(t *testing.T, w, h int, blocked []arena.TilePos) *arena.TileMap {
	t.Helper()
	data := make([]int, w*h)
	for _, p := range blocked {
		data[p.Y*w+p.X] = 17
	}
	m := &arena.TileMap{
		Name:       "test",
		Width:      w,
		Height:     h,
		TileWidth:  32,
		TileHeight: 32,
		Layers: []arena.Layer{
			{Type: "tilelayer", Name: "ground", Data: make([]int, w*h)},
			{Type: "tilelayer", Name: "collision", Data: data},
		},
	}
	require.NoError(t, m.Validate())
	return m
}

func TestValidate_RejectsBadDimensions(t *testing.T) {
	m := &arena.TileMap{Name: "bad", Width: 0, Height: 10, TileWidth: 32, TileHeight: 32}
	assert.Error(t, m.Validate())
}

func TestValidate_RejectsShortLayer(t *testing.T) {
	m := &arena.TileMap{
		Name: "bad", Width: 4, Height: 4, TileWidth: 32, TileHeight: 32,
		Layers: []arena.Layer{{Type: "tilelayer", Name: "ground", Data: make([]int, 3)}},
	}
	assert.Error(t, m.Validate())
}

// TestLayerIsCollision covers the two ways a layer marks impassable terrain:
// a name containing "collision" and an explicit boolean property.
func TestLayerIsCollision(t *testing.T) {
	assert.True(t, arena.Layer{Name: "Collision"}.IsCollision())
	assert.True(t, arena.Layer{Name: "wall-collision-upper"}.IsCollision())
	assert.True(t, arena.Layer{
		Name:       "walls",
		Properties: []arena.LayerProperty{{Name: "collision", Value: true}},
	}.IsCollision())
	assert.False(t, arena.Layer{Name: "ground"}.IsCollision())
	assert.False(t, arena.Layer{
		Name:       "decor",
		Properties: []arena.LayerProperty{{Name: "collision", Value: false}},
	}.IsCollision())
}

func TestBlocked(t *testing.T) {
	m := testMap(t, 10, 10, []arena.TilePos{{X: 3, Y: 4}})

	assert.True(t, m.Blocked(arena.TilePos{X: 3, Y: 4}), "collision tile must block")
	assert.False(t, m.Blocked(arena.TilePos{X: 5, Y: 5}), "clear tile must not block")
	assert.True(t, m.Blocked(arena.TilePos{X: -1, Y: 0}), "out of bounds counts as blocked")
	assert.True(t, m.Blocked(arena.TilePos{X: 10, Y: 0}), "out of bounds counts as blocked")
}

func TestAreaClear(t *testing.T) {
	m := testMap(t, 10, 10, []arena.TilePos{{X: 3, Y: 4}})

	assert.False(t, m.AreaClear(arena.TilePos{X: 4, Y: 4}), "adjacent obstacle must fail the area check")
	assert.False(t, m.AreaClear(arena.TilePos{X: 0, Y: 0}), "map edge neighbors count as blocked")
	assert.True(t, m.AreaClear(arena.TilePos{X: 7, Y: 7}))
}

func TestTileToPixel_CentersTile(t *testing.T) {
	m := testMap(t, 10, 10, nil)
	p := m.TileToPixel(arena.TilePos{X: 2, Y: 3})
	assert.Equal(t, arena.PixelPos{X: 80, Y: 112}, p)
}

// Property: PixelToTile inverts TileToPixel for every in-bounds tile.
func TestPropertyPixelTileRoundTrip(t *testing.T) {
	m := testMap(t, 40, 30, nil)
	rapid.Check(t, func(rt *rapid.T) {
		tile := arena.TilePos{
			X: rapid.IntRange(0, 39).Draw(rt, "x"),
			Y: rapid.IntRange(0, 29).Draw(rt, "y"),
		}
		assert.Equal(rt, tile, m.PixelToTile(m.TileToPixel(tile)))
	})
}

func TestValidRequiresDistance(t *testing.T) {
	m := testMap(t, 20, 20, []arena.TilePos{{X: 5, Y: 5}})
	avoid := []arena.TilePos{{X: 10, Y: 10}}

	assert.False(t, m.Valid(arena.TilePos{X: 5, Y: 5}, nil), "blocked tile is invalid")
	assert.False(t, m.Valid(arena.TilePos{X: 12, Y: 10}, avoid), "2 tiles away is under the distance floor")
	assert.True(t, m.Valid(arena.TilePos{X: 13, Y: 10}, avoid), "3 tiles away meets the distance floor")
	assert.False(t, m.Valid(arena.TilePos{X: 12, Y: 12}, avoid), "diagonal distance is Euclidean, sqrt(8) < 3")
	assert.False(t, m.Valid(arena.TilePos{X: -1, Y: 2}, nil))
}
