package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tilestrike/arena/internal/game/arena"
	"github.com/tilestrike/arena/internal/game/rng"
)

func TestPlace_CountAndSeparation(t *testing.T) {
	m := testMap(t, 30, 30, nil)
	placer := arena.NewPlacer(rng.NewSeededSource(1))

	spawns := placer.Place(m, 4, nil)
	require.Len(t, spawns, 4)

	for i, a := range spawns {
		assert.True(t, m.InBounds(a), "spawn %d out of bounds: %+v", i, a)
		assert.False(t, m.Blocked(a), "spawn %d on an obstacle: %+v", i, a)
		for j, b := range spawns[i+1:] {
			assert.GreaterOrEqual(t, a.Distance(b), 3.0,
				"spawns %d and %d closer than the distance floor", i, i+1+j)
		}
	}
}

func TestPlace_ZeroPlayers(t *testing.T) {
	m := testMap(t, 30, 30, nil)
	placer := arena.NewPlacer(rng.NewSeededSource(1))
	assert.Empty(t, placer.Place(m, 0, nil))
}

func TestPlace_AvoidsOccupied(t *testing.T) {
	m := testMap(t, 30, 30, nil)
	placer := arena.NewPlacer(rng.NewSeededSource(7))
	occupied := []arena.TilePos{{X: 15, Y: 15}}

	spawns := placer.Place(m, 3, occupied)
	require.Len(t, spawns, 3)
	for _, s := range spawns {
		assert.GreaterOrEqual(t, s.Distance(occupied[0]), 3.0,
			"spawn %+v too close to occupied tile", s)
	}
}

// TestPlace_FullyBlockedMap exercises the last tier: with every tile an
// obstacle, placement still returns exactly n positions, all of them the
// fixed fallback.
func TestPlace_FullyBlockedMap(t *testing.T) {
	var blocked []arena.TilePos
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			blocked = append(blocked, arena.TilePos{X: x, Y: y})
		}
	}
	m := testMap(t, 10, 10, blocked)
	placer := arena.NewPlacer(rng.NewSeededSource(1))

	spawns := placer.Place(m, 2, nil)
	require.Len(t, spawns, 2)
	assert.Equal(t, arena.FallbackTile, spawns[0])
	assert.Equal(t, arena.FallbackTile, spawns[1])
}

// TestPlace_TinyMap forces the random tier to bail out (no interior inside
// the margin) and the later tiers to take over.
func TestPlace_TinyMap(t *testing.T) {
	m := testMap(t, 4, 4, nil)
	placer := arena.NewPlacer(rng.NewSeededSource(1))

	spawns := placer.Place(m, 2, nil)
	require.Len(t, spawns, 2)
}

func TestPlaceOne(t *testing.T) {
	m := testMap(t, 30, 30, nil)
	placer := arena.NewPlacer(rng.NewSeededSource(3))

	pos, valid := placer.PlaceOne(m, nil)
	assert.True(t, valid)
	assert.True(t, m.InBounds(pos))
	assert.False(t, m.Blocked(pos))
}

func TestPlaceOne_ReportsInvalidFallback(t *testing.T) {
	var blocked []arena.TilePos
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			blocked = append(blocked, arena.TilePos{X: x, Y: y})
		}
	}
	m := testMap(t, 8, 8, blocked)
	placer := arena.NewPlacer(rng.NewSeededSource(1))

	pos, valid := placer.PlaceOne(m, nil)
	assert.Equal(t, arena.FallbackTile, pos)
	assert.False(t, valid, "fallback on a blocked tile must be reported invalid")
}

func TestSeededPlacementIsDeterministic(t *testing.T) {
	m := testMap(t, 30, 30, nil)
	a := arena.NewPlacer(rng.NewSeededSource(42)).Place(m, 4, nil)
	b := arena.NewPlacer(rng.NewSeededSource(42)).Place(m, 4, nil)
	assert.Equal(t, a, b)
}

// Property: on any obstacle-free map of at least 12x12, up to 6 players
// always get exactly n in-bounds spawns, and every pair not produced by the
// unconditional fallback tier is separated by the distance floor.
func TestPropertyPlacement(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w := rapid.IntRange(12, 40).Draw(rt, "w")
		h := rapid.IntRange(12, 40).Draw(rt, "h")
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		seed := rapid.Int64().Draw(rt, "seed")

		data := make([]int, w*h)
		m := &arena.TileMap{
			Name: "prop", Width: w, Height: h, TileWidth: 32, TileHeight: 32,
			Layers: []arena.Layer{{Type: "tilelayer", Name: "ground", Data: data}},
		}
		if err := m.Validate(); err != nil {
			rt.Fatalf("validate: %v", err)
		}

		spawns := arena.NewPlacer(rng.NewSeededSource(seed)).Place(m, n, nil)
		if len(spawns) != n {
			rt.Fatalf("got %d spawns, want %d", len(spawns), n)
		}
		for i, a := range spawns {
			if !m.InBounds(a) {
				rt.Fatalf("spawn %d out of bounds: %+v", i, a)
			}
			if a == arena.FallbackTile {
				continue
			}
			for j := i + 1; j < n; j++ {
				b := spawns[j]
				if b == arena.FallbackTile {
					continue
				}
				if a.Distance(b) < 3.0 {
					rt.Fatalf("spawns %d and %d too close: %+v %+v", i, j, a, b)
				}
			}
		}
	})
}
