package network

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/elementsproject/lnregtest/node"
)

// ComputeStats derives aggregate statistics from an assembled
// snapshot. The authoritative network view is the master node's own
// report (NetworkView); this derivation exists for cross-validation
// and for node implementations that do not aggregate themselves.
// Zombie channels are only known to the underlying node software and
// are reported as zero here.
func ComputeStats(s Snapshot) *node.NetworkStats {
	stats := &node.NetworkStats{
		NumNodes:      uint32(len(s)),
		GraphDiameter: Diameter(s),
	}

	edges := UndirectedEdges(s)
	stats.NumChannels = uint32(len(edges))

	var maxDegree int
	for name := range s {
		if d := len(s[name]); d > maxDegree {
			maxDegree = d
		}
	}
	stats.MaxOutDegree = uint32(maxDegree)
	if len(s) > 0 {
		stats.AvgOutDegree = float64(2*len(edges)) / float64(len(s))
	}

	if len(edges) == 0 {
		return stats
	}

	capacities := make([]btcutil.Amount, 0, len(edges))
	for _, e := range edges {
		capacities = append(capacities, e.Capacity)
		stats.TotalCapacity += e.Capacity
	}
	sort.Slice(capacities, func(i, j int) bool { return capacities[i] < capacities[j] })

	stats.MinChannelSize = capacities[0]
	stats.MaxChannelSize = capacities[len(capacities)-1]
	stats.AvgChannelSize = float64(stats.TotalCapacity) / float64(len(capacities))

	mid := len(capacities) / 2
	if len(capacities)%2 == 1 {
		stats.MedianChannelSize = capacities[mid]
	} else {
		stats.MedianChannelSize = (capacities[mid-1] + capacities[mid]) / 2
	}

	return stats
}
