package network

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elementsproject/lnregtest/alias"
	"github.com/elementsproject/lnregtest/compare"
)

func newTestNetwork(t *testing.T, location, fixtureDir string, fromScratch bool,
	f *mockFactory, opts ...Option) *RegtestNetwork {
	t.Helper()

	opts = append(opts, WithNodeFactory(f))
	n, err := NewRegtestNetwork(location, fixtureDir, fromScratch, opts...)
	require.NoError(t, err)
	return n
}

func sortedValues(m map[string]string) []string {
	values := make([]string, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func TestProvisionTriangle(t *testing.T) {
	f := newMockFactory()
	n := newTestNetwork(t, "triangle", t.TempDir(), true, f)

	require.NoError(t, n.RunNoCleanup())
	defer n.Cleanup()

	assert.Equal(t, []string{"A", "B", "C"}, sortedValues(n.NodeMapping()))
	assert.Equal(t, []string{"1", "2", "3"}, sortedValues(n.ChannelMapping()))

	master, err := n.MasterNode()
	require.NoError(t, err)
	assert.Equal(t, "A", master.Name())

	_, err = n.Node("Z")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRunOnceStopsEverything(t *testing.T) {
	f := newMockFactory()
	n := newTestNetwork(t, "triangle", t.TempDir(), true, f)

	require.NoError(t, n.RunOnce())

	for name, mock := range f.nodes {
		assert.False(t, mock.isRunning(), "node %s still running", name)
	}
	assert.Equal(t, 1, f.tearDowns)

	_, err := n.Node("A")
	assert.ErrorIs(t, err, ErrNotRunning)

	// The mappings survive the shutdown, they describe the fixture.
	assert.Len(t, n.NodeMapping(), 3)
	assert.Len(t, n.ChannelMapping(), 3)
}

func TestRestoreMatchesProvisionedRun(t *testing.T) {
	f := newMockFactory()
	dir := t.TempDir()

	first := newTestNetwork(t, "triangle", dir, true, f)
	require.NoError(t, first.RunNoCleanup())

	nodeMapping := first.NodeMapping()
	channelMapping := first.ChannelMapping()
	before, err := first.AssembleGraph()
	require.NoError(t, err)
	first.Cleanup()

	second := newTestNetwork(t, "triangle", dir, false, f)
	require.NoError(t, second.RunNoCleanup())
	defer second.Cleanup()

	assert.Equal(t, nodeMapping, second.NodeMapping())
	assert.Equal(t, channelMapping, second.ChannelMapping())

	after, err := second.AssembleGraph()
	require.NoError(t, err)
	assert.True(t, compare.Compare(before, after, true))
}

func TestRestoreMissingFixture(t *testing.T) {
	f := newMockFactory()
	n := newTestNetwork(t, "triangle", t.TempDir(), false, f)

	err := n.RunOnce()
	assert.ErrorIs(t, err, alias.ErrFixtureNotFound)
}

func TestRestoreRejectsDifferentTopology(t *testing.T) {
	f := newMockFactory()
	dir := t.TempDir()

	first := newTestNetwork(t, "triangle", dir, true, f)
	require.NoError(t, first.RunOnce())

	second := newTestNetwork(t, "star_ring", dir, false, f)
	err := second.RunOnce()
	assert.ErrorIs(t, err, ErrFixtureMismatch)
}

func TestRestoreDetectsIdentityDrift(t *testing.T) {
	f := newMockFactory()
	dir := t.TempDir()

	first := newTestNetwork(t, "triangle", dir, true, f)
	require.NoError(t, first.RunOnce())

	drifted, err := newMockPubkey()
	require.NoError(t, err)
	f.nodes["B"].pubkey = drifted

	second := newTestNetwork(t, "triangle", dir, false, f)
	err = second.RunOnce()
	assert.ErrorIs(t, err, ErrFixtureMismatch)
}

func TestRunFromBackground(t *testing.T) {
	f := newMockFactory()
	dir := t.TempDir()

	owner := newTestNetwork(t, "triangle", dir, true, f)
	require.NoError(t, owner.RunNoCleanup())

	attached := newTestNetwork(t, "triangle", dir, false, f)
	require.NoError(t, attached.RunFromBackground())

	assert.Equal(t, owner.NodeMapping(), attached.NodeMapping())
	assert.Equal(t, owner.ChannelMapping(), attached.ChannelMapping())

	graph, err := attached.AssembleGraph()
	require.NoError(t, err)
	assert.Len(t, graph, 3)

	// Dropping the attached handle must leave the owner's network
	// untouched.
	attached.Cleanup()
	assert.True(t, f.nodes["A"].isRunning())
	assert.Equal(t, 0, f.tearDowns)

	owner.Cleanup()
	assert.False(t, f.nodes["A"].isRunning())
	assert.Equal(t, 1, f.tearDowns)
}

func TestRunFromBackgroundRequiresRunningNodes(t *testing.T) {
	f := newMockFactory()
	dir := t.TempDir()

	first := newTestNetwork(t, "triangle", dir, true, f)
	require.NoError(t, first.RunOnce())

	attached := newTestNetwork(t, "triangle", dir, false, f)
	assert.Error(t, attached.RunFromBackground())
}

func TestNodeLimitKeepsSymbolicChannelIds(t *testing.T) {
	f := newMockFactory()
	n := newTestNetwork(t, "star_ring", t.TempDir(), true, f,
		WithNodeLimit("C"))

	require.NoError(t, n.RunNoCleanup())
	defer n.Cleanup()

	assert.Equal(t, []string{"A", "B", "C"}, sortedValues(n.NodeMapping()))

	// The reduced run only opens the channels between A, B and C, but
	// their symbolic ids keep the position of the full definition.
	assert.Equal(t, []string{"1", "4", "5"}, sortedValues(n.ChannelMapping()))
}

func TestCleanupIsIdempotent(t *testing.T) {
	f := newMockFactory()
	n := newTestNetwork(t, "triangle", t.TempDir(), true, f)

	require.NoError(t, n.RunNoCleanup())
	n.Cleanup()
	n.Cleanup()

	for name, mock := range f.nodes {
		assert.False(t, mock.isRunning(), "node %s still running", name)
	}
}

func TestNetworkView(t *testing.T) {
	f := newMockFactory()
	n := newTestNetwork(t, "triangle", t.TempDir(), true, f)

	require.NoError(t, n.RunNoCleanup())
	defer n.Cleanup()

	view, err := n.NetworkView()
	require.NoError(t, err)

	expected := map[string]interface{}{
		"graph_diameter":          1,
		"avg_out_degree":          2.0,
		"max_out_degree":          2,
		"num_nodes":               3,
		"num_channels":            3,
		"total_network_capacity":  13149504,
		"avg_channel_size":        4383168.0,
		"min_channel_size":        3600000,
		"max_channel_size":        5049504,
		"median_channel_size_sat": 4500000,
		"num_zombie_chans":        0,
	}
	assert.True(t, compare.Compare(expected, view, true))
}

func TestNetworkViewNotRunning(t *testing.T) {
	f := newMockFactory()
	n := newTestNetwork(t, "triangle", t.TempDir(), true, f)

	_, err := n.NetworkView()
	assert.ErrorIs(t, err, ErrNotRunning)
}
