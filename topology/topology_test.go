package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNamedTopology(t *testing.T) {
	def, err := Load("star_ring")
	require.NoError(t, err)

	assert.Equal(t, "star_ring", def.Location)
	assert.Len(t, def.Nodes, 7)
	assert.Len(t, def.Channels, 11)
	assert.Equal(t, "A", def.MasterName())
}

func TestLoadUnknownTopology(t *testing.T) {
	_, err := Load("no_such_topology")
	assert.ErrorIs(t, err, ErrTopologyNotFound)
}

func TestLoadDoesNotShareCatalogState(t *testing.T) {
	def, err := Load("triangle")
	require.NoError(t, err)

	def.Nodes[0].Name = "Z"
	def.Channels[0].Capacity = 1

	fresh, err := Load("triangle")
	require.NoError(t, err)
	assert.Equal(t, "A", fresh.Nodes[0].Name)
	assert.NotEqual(t, fresh.Channels[0].Capacity, def.Channels[0].Capacity)
}

func TestValidateRejectsDuplicateNodeNames(t *testing.T) {
	def := &NetworkDefinition{
		Nodes: []NodeSpec{{Name: "A"}, {Name: "A"}},
	}
	assert.ErrorIs(t, def.Validate(), ErrTopologyInvalid)
}

func TestValidateRejectsUnknownEndpoint(t *testing.T) {
	def := &NetworkDefinition{
		Nodes:    []NodeSpec{{Name: "A"}, {Name: "B"}},
		Channels: []ChannelSpec{{From: "A", To: "X", Capacity: 100000}},
	}
	assert.ErrorIs(t, def.Validate(), ErrTopologyInvalid)
}

func TestValidateRejectsSelfLoop(t *testing.T) {
	def := &NetworkDefinition{
		Nodes:    []NodeSpec{{Name: "A"}},
		Channels: []ChannelSpec{{From: "A", To: "A", Capacity: 100000}},
	}
	assert.ErrorIs(t, def.Validate(), ErrTopologyInvalid)
}

func TestValidateRejectsPushExceedingCapacity(t *testing.T) {
	def := &NetworkDefinition{
		Nodes:    []NodeSpec{{Name: "A"}, {Name: "B"}},
		Channels: []ChannelSpec{{From: "A", To: "B", Capacity: 100000, PushAmount: 100000}},
	}
	assert.ErrorIs(t, def.Validate(), ErrTopologyInvalid)
}

func TestLimitKeepsChannelIndices(t *testing.T) {
	def, err := Load("star_ring")
	require.NoError(t, err)

	nodes, channels := Limit(def, "C")
	require.Len(t, nodes, 3)

	// Only channels among A, B and C survive, but they keep their
	// position in the full definition.
	var indices []int
	for _, lc := range channels {
		indices = append(indices, lc.Index)
	}
	assert.Equal(t, []int{0, 3, 4}, indices)
}

func TestLimitEmptyKeepsAll(t *testing.T) {
	def, err := Load("star_ring")
	require.NoError(t, err)

	nodes, channels := Limit(def, "")
	assert.Len(t, nodes, 7)
	assert.Len(t, channels, 11)
}

func TestLoadYamlFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pair.yaml")
	data := []byte(`nodes:
  - name: A
    master: true
  - name: B
channels:
  - from: A
    to: B
    capacity: 1000000
    push_amount: 250000
`)
	require.NoError(t, os.WriteFile(file, data, os.ModePerm))

	def, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, file, def.Location)
	require.Len(t, def.Channels, 1)
	assert.Equal(t, "A", def.Channels[0].From)
	assert.EqualValues(t, 1000000, def.Channels[0].Capacity)
	assert.EqualValues(t, 250000, def.Channels[0].PushAmount)
}

func TestLoadYamlFileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrTopologyNotFound)
}

func TestLoadInvalidYamlFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("nodes: {"), os.ModePerm))

	_, err := Load(file)
	assert.ErrorIs(t, err, ErrTopologyInvalid)
}
