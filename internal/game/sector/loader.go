package sector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlMapFile is the top-level YAML structure for a sector map file.
type yamlMapFile struct {
	Map yamlMap `yaml:"map"`
}

type yamlMap struct {
	StartID int          `yaml:"start_id"`
	Sectors []yamlSector `yaml:"sectors"`
}

type yamlSector struct {
	ID         int               `yaml:"id"`
	Name       string            `yaml:"name"`
	Warps      []int             `yaml:"warps"`
	Properties map[string]string `yaml:"properties"`
}

// LoadMapFromFile reads and validates a sector map from a single YAML file.
//
// Precondition: path must point to a valid YAML sector-map file.
// Postcondition: returns a validated *Map or a non-nil error.
func LoadMapFromFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sector: reading map file %s: %w", path, err)
	}
	return LoadMapFromBytes(data)
}

// LoadMapFromBytes parses and validates a sector map from YAML bytes.
//
// Postcondition: returns a validated *Map or a non-nil error.
func LoadMapFromBytes(data []byte) (*Map, error) {
	var file yamlMapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("sector: parsing map YAML: %w", err)
	}

	m := convertYAMLMap(file.Map)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("sector: validating map: %w", err)
	}
	return m, nil
}

func convertYAMLMap(ym yamlMap) *Map {
	m := &Map{
		StartID: ym.StartID,
		Sectors: make(map[int]*Sector, len(ym.Sectors)),
	}
	for _, ys := range ym.Sectors {
		s := &Sector{
			ID:         ys.ID,
			Name:       ys.Name,
			Warps:      append([]int(nil), ys.Warps...),
			Properties: ys.Properties,
		}
		if s.Properties == nil {
			s.Properties = make(map[string]string)
		}
		m.Sectors[s.ID] = s
	}
	return m
}
