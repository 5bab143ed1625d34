// Package network drives a declarative topology to a running regtest
// cluster of payment channel nodes, persists the alias fixture that
// makes the randomized identifiers addressable across runs, and
// assembles the per-node channel views into one canonical graph.
package network

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/elementsproject/lnregtest/alias"
	"github.com/elementsproject/lnregtest/compare"
	"github.com/elementsproject/lnregtest/log"
	"github.com/elementsproject/lnregtest/node"
	"github.com/elementsproject/lnregtest/topology"
)

// Option configures a RegtestNetwork beyond the required parameters.
type Option func(*RegtestNetwork)

// WithNodeFactory swaps the default lnd factory for another node
// implementation.
func WithNodeFactory(f NodeFactory) Option {
	return func(n *RegtestNetwork) {
		n.factory = f
	}
}

// WithNodeLimit provisions only nodes with symbolic names up to and
// including limit, mirroring a reduced run of the same topology.
func WithNodeLimit(limit string) Option {
	return func(n *RegtestNetwork) {
		n.nodeLimit = limit
	}
}

// WithTolerateUnmapped makes graph assembly skip channels unknown to
// the alias mapping instead of failing.
func WithTolerateUnmapped() Option {
	return func(n *RegtestNetwork) {
		n.tolerateUnmapped = true
	}
}

// RegtestNetwork is the orchestrator over one topology-defined cluster.
// It owns the node lifecycle; all mutating operations run on the
// single orchestrating goroutine, while the query surface (mappings,
// graph assembly, stats) may be used concurrently once the network is
// running.
type RegtestNetwork struct {
	def         *topology.NetworkDefinition
	fixtureDir  string
	fromScratch bool
	nodeLimit   string

	factory          NodeFactory
	tolerateUnmapped bool

	mu       sync.Mutex
	aliases  *alias.Mapping
	nodes    map[string]node.LightningNode
	states   map[string]node.State
	order    []string
	channels []topology.LimitedChannel
	running  bool
	attached bool
}

// NewRegtestNetwork loads the topology at location and prepares an
// orchestrator writing its fixture to fixtureDir. An empty fixtureDir
// uses a throwaway temp directory. With fromScratch unset, the run
// restores the network persisted in fixtureDir instead of creating a
// new one.
func NewRegtestNetwork(location, fixtureDir string, fromScratch bool, opts ...Option) (*RegtestNetwork, error) {
	def, err := topology.Load(location)
	if err != nil {
		return nil, err
	}

	if fixtureDir == "" {
		fixtureDir, err = os.MkdirTemp("", "lnregtest-")
		if err != nil {
			return nil, fmt.Errorf("os.MkdirTemp() %w", err)
		}
	}

	n := &RegtestNetwork{
		def:         def,
		fixtureDir:  fixtureDir,
		fromScratch: fromScratch,
		aliases:     alias.NewMapping(),
		nodes:       map[string]node.LightningNode{},
		states:      map[string]node.State{},
	}

	for _, opt := range opts {
		opt(n)
	}

	if n.factory == nil {
		n.factory = NewLndNodeFactory(filepath.Join(fixtureDir, "network"))
	}

	nodeSpecs, channels := topology.Limit(def, n.nodeLimit)
	for _, spec := range nodeSpecs {
		n.order = append(n.order, spec.Name)
		n.states[spec.Name] = node.Stopped
	}
	n.channels = channels

	return n, nil
}

// RunOnce provisions (or restores) the network, persists the fixture
// and stops everything again. It is the cheapest way to create or
// refresh a fixture directory.
func (n *RegtestNetwork) RunOnce() error {
	err := n.run()
	if err != nil {
		n.Cleanup()
		return err
	}
	return n.stopAll()
}

// RunNoCleanup provisions (or restores) the network, persists the
// fixture and leaves the nodes running. The caller pairs it with
// Cleanup, typically in a defer.
func (n *RegtestNetwork) RunNoCleanup() error {
	err := n.run()
	if err != nil {
		n.Cleanup()
		return err
	}
	return nil
}

// RunFromBackground attaches to a network that a separate process
// provisioned and left running on the same fixture directory. It only
// reads the fixture and re-validates identities, it never provisions.
func (n *RegtestNetwork) RunFromBackground() error {
	err := n.attach()
	if err != nil {
		n.Cleanup()
		return err
	}
	return nil
}

func (n *RegtestNetwork) run() error {
	if n.fromScratch {
		return n.provision()
	}
	return n.restore()
}

// Cleanup tears down whatever exists. Safe to call at any state and
// more than once; it never leaves a node process orphaned.
func (n *RegtestNetwork) Cleanup() {
	err := n.stopAll()
	if err != nil {
		log.Errorf("cleanup: %v", err)
	}
}

func (n *RegtestNetwork) stopAll() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var firstErr error
	for i := len(n.order) - 1; i >= 0; i-- {
		name := n.order[i]
		ln, ok := n.nodes[name]
		if !ok {
			continue
		}
		// An attached network is owned by another process; only drop
		// the handles, never stop the nodes.
		if !n.attached {
			if err := ln.Stop(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", name, err)
			}
			n.states[name] = node.Stopped
		}
		delete(n.nodes, name)
	}

	if !n.attached {
		if err := n.factory.TearDown(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("TearDown() %w", err)
		}
	}

	n.running = false
	n.attached = false
	return firstErr
}

// NodeMapping returns a copy of the generated identity to symbolic
// name mapping.
func (n *RegtestNetwork) NodeMapping() map[string]string {
	return n.aliases.NodeMapping()
}

// ChannelMapping returns a copy of the generated channel id to
// symbolic id mapping.
func (n *RegtestNetwork) ChannelMapping() map[string]string {
	return n.aliases.ChannelMapping()
}

// Node returns the capability interface of a running node by its
// symbolic name.
func (n *RegtestNetwork) Node(name string) (node.LightningNode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ln, ok := n.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotRunning, name)
	}
	return ln, nil
}

// MasterNode returns the designated master node, or the topologically
// first node if the definition flags none.
func (n *RegtestNetwork) MasterNode() (node.LightningNode, error) {
	return n.Node(n.def.MasterName())
}

// NetworkView returns the master node's aggregate view of the channel
// graph. Recomputed by the node on every call, never cached.
func (n *RegtestNetwork) NetworkView() (*node.NetworkStats, error) {
	master, err := n.MasterNode()
	if err != nil {
		return nil, err
	}
	return master.GetNetworkInfo()
}

// PrintNetworkInfo logs the master node's aggregate network view.
func (n *RegtestNetwork) PrintNetworkInfo() {
	view, err := n.NetworkView()
	if err != nil {
		log.Errorf("NetworkView() %v", err)
		return
	}
	log.Infof("network view of master node %s:\n%s", n.def.MasterName(), compare.FormatDict(view))
}

// PrintMappings logs the node and channel mappings of the current run.
func (n *RegtestNetwork) PrintMappings() {
	log.Infof("node mappings:\n%s", compare.FormatDict(n.NodeMapping()))
	log.Infof("channel mappings:\n%s", compare.FormatDict(n.ChannelMapping()))
}
