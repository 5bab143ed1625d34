package topology

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog resolves named locations to network definitions. The default
// catalog holds the built-in topologies; callers can swap in their own.
type Catalog map[string]*NetworkDefinition

// DefaultCatalog contains the built-in named topologies.
//
// star_ring is seven nodes with A in the center of a star plus a ring
// over the outer nodes. A is the master node and ends up with the
// maximum out-degree of six.
var DefaultCatalog = Catalog{
	"star_ring": {
		Location: "star_ring",
		Nodes: []NodeSpec{
			{Name: "A", Master: true}, {Name: "B"}, {Name: "C"},
			{Name: "D"}, {Name: "E"}, {Name: "F"}, {Name: "G"},
		},
		Channels: []ChannelSpec{
			{From: "A", To: "C", Capacity: 4500000, PushAmount: 500000},
			{From: "A", To: "D", Capacity: 5000000, PushAmount: 500000},
			{From: "A", To: "E", Capacity: 6300000, PushAmount: 700000},
			{From: "B", To: "A", Capacity: 3600000, PushAmount: 400000},
			{From: "B", To: "C", Capacity: 5049504, PushAmount: 4950495},
			{From: "A", To: "F", Capacity: 5500000, PushAmount: 500000},
			{From: "A", To: "G", Capacity: 5200000, PushAmount: 400000},
			{From: "C", To: "D", Capacity: 2100000, PushAmount: 300000},
			{From: "D", To: "E", Capacity: 4000000, PushAmount: 400000},
			{From: "E", To: "F", Capacity: 5100000, PushAmount: 500000},
			{From: "F", To: "G", Capacity: 4600000, PushAmount: 450000},
		},
	},
	"triangle": {
		Location: "triangle",
		Nodes:    []NodeSpec{{Name: "A", Master: true}, {Name: "B"}, {Name: "C"}},
		Channels: []ChannelSpec{
			{From: "A", To: "B", Capacity: 4500000, PushAmount: 500000},
			{From: "B", To: "C", Capacity: 3600000, PushAmount: 400000},
			{From: "C", To: "A", Capacity: 5049504, PushAmount: 4950495},
		},
	},
}

// Load resolves a location to a validated network definition. A
// location ending in .yaml or .yml is read as a definition file, any
// other location is looked up in the default catalog.
func Load(location string) (*NetworkDefinition, error) {
	return LoadFromCatalog(DefaultCatalog, location)
}

// LoadFromCatalog resolves a location against an explicit catalog.
func LoadFromCatalog(catalog Catalog, location string) (*NetworkDefinition, error) {
	if strings.HasSuffix(location, ".yaml") || strings.HasSuffix(location, ".yml") {
		return loadFile(location)
	}

	def, ok := catalog[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopologyNotFound, location)
	}

	cp := copyDefinition(def)
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return cp, nil
}

func loadFile(path string) (*NetworkDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTopologyNotFound, path)
		}
		return nil, fmt.Errorf("os.ReadFile() %w", err)
	}

	var def NetworkDefinition
	if err := yaml.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTopologyInvalid, err)
	}
	def.Location = path

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// copyDefinition returns a value copy so that callers can never mutate
// the catalog through a loaded definition.
func copyDefinition(def *NetworkDefinition) *NetworkDefinition {
	cp := &NetworkDefinition{Location: def.Location}
	cp.Nodes = append(cp.Nodes, def.Nodes...)
	cp.Channels = append(cp.Channels, def.Channels...)
	return cp
}
