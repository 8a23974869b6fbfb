package grid

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// topologyFile is the on-disk shape of a topology description.
type topologyFile struct {
	Buses []BusRecord  `yaml:"buses"`
	Lines []LineRecord `yaml:"lines"`
}

// Load reads a YAML topology file and builds a validated Topology.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}

	var f topologyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing topology file %s: %w", path, err)
	}

	t, err := New(f.Buses, f.Lines)
	if err != nil {
		return nil, fmt.Errorf("topology file %s: %w", path, err)
	}
	return t, nil
}
