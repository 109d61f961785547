package arena

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// manifestFile is the top-level YAML structure for the map manifest.
type manifestFile struct {
	Maps []manifestEntry `yaml:"maps"`
}

// manifestEntry names one map and the JSON file carrying it.
type manifestEntry struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// LoadMapFromBytes parses and validates a map from Tiled-style JSON bytes.
//
// Precondition: data must be valid JSON conforming to the map schema.
// Postcondition: Returns a validated TileMap or a non-nil error.
func LoadMapFromBytes(name string, data []byte) (*TileMap, error) {
	var m TileMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing map JSON: %w", err)
	}
	m.Name = name
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validating map: %w", err)
	}
	return &m, nil
}

// LoadMapFromFile reads and validates a single map JSON file.
//
// Precondition: path must point to a valid JSON map file.
// Postcondition: Returns a validated TileMap or a non-nil error.
func LoadMapFromFile(name, path string) (*TileMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file %s: %w", path, err)
	}
	return LoadMapFromBytes(name, data)
}

// MapSet holds the loaded maps keyed by name.
type MapSet struct {
	maps map[string]*TileMap
}

// NewMapSet creates a MapSet from the given maps.
//
// Postcondition: Returns a non-nil MapSet; later maps with duplicate names
// replace earlier ones.
func NewMapSet(maps []*TileMap) *MapSet {
	set := &MapSet{maps: make(map[string]*TileMap, len(maps))}
	for _, m := range maps {
		set.maps[m.Name] = m
	}
	return set
}

// LoadMapSet reads the maps.yaml manifest in dir and loads every map it names.
//
// Precondition: dir must contain a maps.yaml manifest.
// Postcondition: Returns a MapSet with all manifest maps loaded, or the first
// error encountered.
func LoadMapSet(dir string) (*MapSet, error) {
	data, err := os.ReadFile(filepath.Join(dir, "maps.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading map manifest: %w", err)
	}

	var manifest manifestFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing map manifest: %w", err)
	}
	if len(manifest.Maps) == 0 {
		return nil, fmt.Errorf("map manifest in %s names no maps", dir)
	}

	maps := make([]*TileMap, 0, len(manifest.Maps))
	for _, entry := range manifest.Maps {
		m, err := LoadMapFromFile(entry.Name, filepath.Join(dir, entry.File))
		if err != nil {
			return nil, fmt.Errorf("loading map %q: %w", entry.Name, err)
		}
		maps = append(maps, m)
	}
	return NewMapSet(maps), nil
}

// Get returns the map with the given name.
//
// Postcondition: Returns (map, true) if found, or (nil, false) otherwise.
func (s *MapSet) Get(name string) (*TileMap, bool) {
	m, ok := s.maps[name]
	return m, ok
}

// Names returns the names of all loaded maps.
func (s *MapSet) Names() []string {
	names := make([]string, 0, len(s.maps))
	for name := range s.maps {
		names = append(names, name)
	}
	return names
}

// DefaultMap builds an obstacle-free fallback arena used when a session's
// configured map is not in the set. 30x30 tiles of 32px with an empty
// ground layer.
//
// Postcondition: Returns a validated TileMap named name.
func DefaultMap(name string) *TileMap {
	const size = 30
	m := &TileMap{
		Name:       name,
		Width:      size,
		Height:     size,
		TileWidth:  32,
		TileHeight: 32,
		Layers: []Layer{
			{Type: "tilelayer", Name: "ground", Data: make([]int, size*size)},
		},
	}
	// Cannot fail: dimensions and layer sizes are constructed consistently.
	_ = m.Validate()
	return m
}
