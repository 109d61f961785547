// Package arena provides the tile map model, map loading, and the spawn
// placement algorithm for arena matches.
package arena

import (
	"fmt"
	"math"
	"strings"
)

// TilePos is a position in tile coordinates.
type TilePos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance returns the Euclidean distance between two tile positions.
func (t TilePos) Distance(o TilePos) float64 {
	dx := float64(t.X - o.X)
	dy := float64(t.Y - o.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// PixelPos is a position in pixel coordinates, the space PlayerState
// positions live in.
type PixelPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LayerProperty is a single named property attached to a map layer.
type LayerProperty struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Layer is one layer of a tile map. Tile layers carry a flat tile-id array
// indexed y*width+x; a non-zero, non-minus-one id marks a blocked tile.
type Layer struct {
	// Type is the layer kind, e.g. "tilelayer" or "objectgroup".
	Type string `json:"type"`
	// Name is the layer's display name.
	Name string `json:"name"`
	// Data is the flat tile-id array for tile layers.
	Data []int `json:"data"`
	// Properties holds optional layer metadata.
	Properties []LayerProperty `json:"properties"`
}

// IsCollision reports whether the layer marks impassable terrain: its name
// contains "collision" (case-insensitive), or it carries a property
// {name: "collision", value: true}.
func (l Layer) IsCollision() bool {
	if strings.Contains(strings.ToLower(l.Name), "collision") {
		return true
	}
	for _, p := range l.Properties {
		if strings.EqualFold(p.Name, "collision") {
			if v, ok := p.Value.(bool); ok && v {
				return true
			}
		}
	}
	return false
}

// TileMap is a loaded arena map.
//
// Invariant: Width, Height, TileWidth, and TileHeight are > 0; every tile
// layer's Data has exactly Width*Height entries.
type TileMap struct {
	// Name is the map identifier used in game settings (e.g. "snow").
	Name string `json:"name"`
	// Width and Height are the map dimensions in tiles.
	Width  int `json:"width"`
	Height int `json:"height"`
	// TileWidth and TileHeight are the tile dimensions in pixels.
	TileWidth  int `json:"tilewidth"`
	TileHeight int `json:"tileheight"`
	// Layers are the map layers in file order.
	Layers []Layer `json:"layers"`

	// collision caches the collision layers, resolved at validation time.
	collision []Layer
}

// Validate checks the map invariants and caches the collision layers.
//
// Postcondition: Returns nil and the map is ready for queries, or a non-nil
// error describing the first violation.
func (m *TileMap) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("map %q: dimensions must be positive, got %dx%d", m.Name, m.Width, m.Height)
	}
	if m.TileWidth <= 0 || m.TileHeight <= 0 {
		return fmt.Errorf("map %q: tile size must be positive, got %dx%d", m.Name, m.TileWidth, m.TileHeight)
	}
	m.collision = m.collision[:0]
	for _, l := range m.Layers {
		if l.Type == "tilelayer" && len(l.Data) != m.Width*m.Height {
			return fmt.Errorf("map %q: layer %q has %d tiles, want %d", m.Name, l.Name, len(l.Data), m.Width*m.Height)
		}
		if l.IsCollision() {
			m.collision = append(m.collision, l)
		}
	}
	return nil
}

// InBounds reports whether the tile position lies within the map.
func (m *TileMap) InBounds(p TilePos) bool {
	return p.X >= 0 && p.X < m.Width && p.Y >= 0 && p.Y < m.Height
}

// Blocked reports whether any collision layer has an obstacle at p.
// Out-of-bounds positions are treated as blocked.
func (m *TileMap) Blocked(p TilePos) bool {
	if !m.InBounds(p) {
		return true
	}
	idx := p.Y*m.Width + p.X
	for _, l := range m.collision {
		if idx < len(l.Data) {
			if id := l.Data[idx]; id != 0 && id != -1 {
				return true
			}
		}
	}
	return false
}

// AreaClear reports whether the 3x3 neighborhood around p is free of
// collision tiles. Neighbors outside the map count as blocked.
func (m *TileMap) AreaClear(p TilePos) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if m.Blocked(TilePos{X: p.X + dx, Y: p.Y + dy}) {
				return false
			}
		}
	}
	return true
}

// TileToPixel converts a tile position to the pixel-space center of that tile.
func (m *TileMap) TileToPixel(p TilePos) PixelPos {
	return PixelPos{
		X: float64(p.X*m.TileWidth) + float64(m.TileWidth)/2,
		Y: float64(p.Y*m.TileHeight) + float64(m.TileHeight)/2,
	}
}

// PixelToTile converts a pixel position to the tile containing it.
func (m *TileMap) PixelToTile(p PixelPos) TilePos {
	return TilePos{
		X: int(math.Floor(p.X / float64(m.TileWidth))),
		Y: int(math.Floor(p.Y / float64(m.TileHeight))),
	}
}
