package catalog

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileTiers is the on-disk layout of a tier override file:
//
//	tier1: [..]
//	tier2: [..]
//	tier3: [..]
type fileTiers struct {
	Tier1 []string `yaml:"tier1"`
	Tier2 []string `yaml:"tier2"`
	Tier3 []string `yaml:"tier3"`
}

// LoadTiers reads tier lists from a YAML file. Unknown keys are rejected.
func LoadTiers(path string) (Tiers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tiers{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return ParseTiers(data)
}

// ParseTiers decodes tier lists from YAML.
func ParseTiers(data []byte) (Tiers, error) {
	var ft fileTiers
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ft); err != nil {
		return Tiers{}, fmt.Errorf("catalog: decode tiers: %w", err)
	}
	t := Tiers{ft.Tier1, ft.Tier2, ft.Tier3}
	if err := t.Validate(); err != nil {
		return Tiers{}, fmt.Errorf("catalog: %w", err)
	}
	return t, nil
}
