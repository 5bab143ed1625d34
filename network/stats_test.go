package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elementsproject/lnregtest/node"
)

func TestComputeStatsStarRing(t *testing.T) {
	f := newMockFactory()
	n := newTestNetwork(t, "star_ring", t.TempDir(), true, f)
	require.NoError(t, n.RunNoCleanup())
	defer n.Cleanup()

	graph, err := n.AssembleGraph()
	require.NoError(t, err)

	stats := ComputeStats(graph)
	assert.Equal(t, &node.NetworkStats{
		GraphDiameter:     2,
		AvgOutDegree:      22.0 / 7.0,
		MaxOutDegree:      6,
		NumNodes:          7,
		NumChannels:       11,
		TotalCapacity:     50949504,
		AvgChannelSize:    50949504.0 / 11.0,
		MinChannelSize:    2100000,
		MaxChannelSize:    6300000,
		MedianChannelSize: 5000000,
	}, stats)

	// The derived stats and the master node's own aggregate view must
	// agree, they describe the same network.
	view, err := n.NetworkView()
	require.NoError(t, err)
	assert.Equal(t, view, stats)
}

func TestComputeStatsEvenChannelCount(t *testing.T) {
	s := Snapshot{
		"A": {
			"1": {RemoteName: "B", Capacity: 100, Initiator: true},
			"2": {RemoteName: "C", Capacity: 200, Initiator: true},
		},
		"B": {"1": {RemoteName: "A", Capacity: 100}},
		"C": {"2": {RemoteName: "A", Capacity: 200}},
	}

	stats := ComputeStats(s)
	assert.EqualValues(t, 150, stats.MedianChannelSize)
	assert.EqualValues(t, 300, stats.TotalCapacity)
	assert.EqualValues(t, 2, stats.MaxOutDegree)
	assert.EqualValues(t, 2, stats.GraphDiameter)
}

func TestComputeStatsEmptySnapshot(t *testing.T) {
	stats := ComputeStats(Snapshot{})
	assert.Equal(t, &node.NetworkStats{}, stats)
}
