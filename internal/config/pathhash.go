package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PathHashFile is the on-disk shape of a room's path-hash pattern table
// (spec §4.1 path-hash compression), loaded the same way the engine this
// gateway was adapted from loads its YAML data collections.
type PathHashFile struct {
	Patterns map[string]uint32 `yaml:"patterns"`
}

// LoadPathHashes reads a YAML file mapping static path patterns (e.g.
// "players.*.position.x") to stable u32 hashes, for use as a room's
// PathHashes table.
func LoadPathHashes(path string) (map[string]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read path-hash file %q: %w", path, err)
	}

	var file PathHashFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse path-hash file %q: %w", path, err)
	}

	if file.Patterns == nil {
		return map[string]uint32{}, nil
	}
	return file.Patterns, nil
}
