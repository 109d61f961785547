package arena

import (
	"github.com/tilestrike/arena/internal/game/rng"
)

const (
	// maxRandomAttempts bounds the random sampling tier.
	maxRandomAttempts = 500
	// edgeMargin keeps sampled tiles away from the map border.
	edgeMargin = 2
	// minSpawnDistance is the minimum Euclidean tile distance between any
	// two spawn positions and between a spawn and an occupied tile.
	minSpawnDistance = 3.0
	// scanStep is the stride of the systematic raster scan tier.
	scanStep = 2
)

// FallbackTile is the absolute last-resort spawn position. It is applied
// unconditionally once every other tier is exhausted and may sit inside an
// obstacle or next to another player; that degradation is intentional.
var FallbackTile = TilePos{X: 1, Y: 1}

// Placer finds valid, mutually separated spawn tiles on a map.
type Placer struct {
	src rng.Source
}

// NewPlacer creates a Placer drawing random candidates from src.
//
// Precondition: src must be non-nil.
func NewPlacer(src rng.Source) *Placer {
	return &Placer{src: src}
}

// Place returns exactly n spawn positions for m, each strictly valid against
// occupied and against the positions already chosen, falling through the
// placement tiers in order: random sampling, systematic scan, predefined safe
// spots, spiral search, and finally FallbackTile.
//
// Precondition: m must be validated; n >= 0; occupied may be nil.
// Postcondition: Returns a slice of exactly n positions.
func (p *Placer) Place(m *TileMap, n int, occupied []TilePos) []TilePos {
	if n <= 0 {
		return nil
	}

	avoid := make([]TilePos, 0, len(occupied)+n)
	avoid = append(avoid, occupied...)
	chosen := make([]TilePos, 0, n)

	accept := func(pos TilePos) {
		chosen = append(chosen, pos)
		avoid = append(avoid, pos)
	}

	// Tier 1: random sampling inside the margin, requiring a clear 3x3 area.
	for attempt := 0; attempt < maxRandomAttempts && len(chosen) < n; attempt++ {
		pos, ok := p.randomCandidate(m)
		if !ok {
			break
		}
		if m.Valid(pos, avoid) && m.AreaClear(pos) {
			accept(pos)
		}
	}

	// Tier 2: systematic interior scan with the same validity and area checks.
	for y := edgeMargin; y < m.Height-edgeMargin && len(chosen) < n; y += scanStep {
		for x := edgeMargin; x < m.Width-edgeMargin && len(chosen) < n; x += scanStep {
			pos := TilePos{X: x, Y: y}
			if m.Valid(pos, avoid) && m.AreaClear(pos) {
				accept(pos)
			}
		}
	}

	// Tier 3: predefined safe spots.
	for _, pos := range safeSpots(m) {
		if len(chosen) >= n {
			break
		}
		if m.Valid(pos, avoid) {
			accept(pos)
		}
	}

	// Tier 4: expanding square spiral from the map center.
	for _, pos := range p.spiral(m, avoid, n-len(chosen)) {
		accept(pos)
	}

	// Tier 5: pad with the absolute fallback.
	for len(chosen) < n {
		accept(FallbackTile)
	}

	return chosen[:n]
}

// PlaceOne returns a single spawn position avoiding occupied, plus whether
// the position passes the strict validity check against occupied. The bool is
// false only when every tier was exhausted and FallbackTile had to be used on
// a spot that is itself invalid.
func (p *Placer) PlaceOne(m *TileMap, occupied []TilePos) (TilePos, bool) {
	pos := p.Place(m, 1, occupied)[0]
	return pos, m.Valid(pos, occupied)
}

// Valid reports strict spawn validity: pos is in bounds, not on a collision
// tile, and at least minSpawnDistance tiles from every avoid position.
func (m *TileMap) Valid(pos TilePos, avoid []TilePos) bool {
	if !m.InBounds(pos) || m.Blocked(pos) {
		return false
	}
	for _, o := range avoid {
		if pos.Distance(o) < minSpawnDistance {
			return false
		}
	}
	return true
}

// randomCandidate samples a uniform tile within the edge margin.
// Returns false when the map is too small to leave any interior.
func (p *Placer) randomCandidate(m *TileMap) (TilePos, bool) {
	w := m.Width - 2*edgeMargin
	h := m.Height - 2*edgeMargin
	if w <= 0 || h <= 0 {
		return TilePos{}, false
	}
	return TilePos{
		X: edgeMargin + p.src.Intn(w),
		Y: edgeMargin + p.src.Intn(h),
	}, true
}

// safeSpots returns the predefined candidates in their fixed probe order:
// the four margin corners, then center, then the quarter and mid points on
// each axis.
func safeSpots(m *TileMap) []TilePos {
	w, h := m.Width, m.Height
	return []TilePos{
		{X: edgeMargin, Y: edgeMargin},
		{X: w - 1 - edgeMargin, Y: edgeMargin},
		{X: edgeMargin, Y: h - 1 - edgeMargin},
		{X: w - 1 - edgeMargin, Y: h - 1 - edgeMargin},
		{X: w / 2, Y: h / 2},
		{X: w / 4, Y: h / 2},
		{X: 3 * w / 4, Y: h / 2},
		{X: w / 2, Y: h / 4},
		{X: w / 2, Y: 3 * h / 4},
	}
}

// spiral walks an expanding square spiral from the map center, rotating
// through the four cardinal directions at each radius, and collects up to
// want valid positions. The radius is bounded by max(width, height).
func (p *Placer) spiral(m *TileMap, avoid []TilePos, want int) []TilePos {
	if want <= 0 {
		return nil
	}
	center := TilePos{X: m.Width / 2, Y: m.Height / 2}
	bound := m.Width
	if m.Height > bound {
		bound = m.Height
	}

	dirs := []TilePos{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0}, {X: 0, Y: -1}}
	found := make([]TilePos, 0, want)
	local := append([]TilePos(nil), avoid...)

	for radius := 1; radius <= bound && len(found) < want; radius++ {
		for _, d := range dirs {
			pos := TilePos{X: center.X + d.X*radius, Y: center.Y + d.Y*radius}
			if m.Valid(pos, local) {
				found = append(found, pos)
				local = append(local, pos)
				if len(found) >= want {
					break
				}
			}
		}
	}
	return found
}
