package network

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/elementsproject/lnregtest/alias"
	"github.com/elementsproject/lnregtest/node"
)

// NodeFactory creates the external node collaborators of a network.
// The default factory runs real bitcoind/lnd processes; tests swap in
// an in-memory implementation.
type NodeFactory interface {
	// SetUp brings up the base collaborators (the settlement layer
	// daemon). With fresh set, any previous state is discarded.
	SetUp(fresh bool) error

	// NewNode creates a brand new node under the given symbolic name.
	NewNode(name string) (node.LightningNode, error)

	// RestoreNode rebuilds a node from persisted fixture state so it
	// can be started again with the same identity.
	RestoreNode(state alias.NodeState) (node.LightningNode, error)

	// AttachNode connects to an already running node without taking a
	// process handle.
	AttachNode(state alias.NodeState) (node.LightningNode, error)

	// NodeState extracts the reconnection metadata to persist for a
	// node created by this factory.
	NodeState(n node.LightningNode) (alias.NodeState, error)

	// TearDown stops the base collaborators.
	TearDown() error
}

// LndNodeFactory provisions lnd nodes on a shared bitcoind regtest
// daemon, all below one network directory.
type LndNodeFactory struct {
	NetworkDir string

	bitcoin *node.BitcoinNode
}

func NewLndNodeFactory(networkDir string) *LndNodeFactory {
	return &LndNodeFactory{NetworkDir: networkDir}
}

func (f *LndNodeFactory) bitcoinDir() string {
	return filepath.Join(f.NetworkDir, "bitcoind")
}

func (f *LndNodeFactory) SetUp(fresh bool) error {
	var bitcoin *node.BitcoinNode
	var err error
	if fresh {
		if err := os.RemoveAll(f.NetworkDir); err != nil {
			return fmt.Errorf("os.RemoveAll() %w", err)
		}
		bitcoin, err = node.NewBitcoinNode(f.bitcoinDir(), 1)
	} else {
		bitcoin, err = node.RestoreBitcoinNode(f.bitcoinDir(), 1)
	}
	if err != nil {
		return fmt.Errorf("bitcoin node: %w", err)
	}

	err = bitcoin.Run(true)
	if err != nil {
		return fmt.Errorf("bitcoin.Run() %w", err)
	}
	f.bitcoin = bitcoin
	return nil
}

func (f *LndNodeFactory) NewNode(name string) (node.LightningNode, error) {
	return node.NewLndNode(f.NetworkDir, f.bitcoin, name)
}

func (f *LndNodeFactory) RestoreNode(state alias.NodeState) (node.LightningNode, error) {
	return node.RestoreLndNode(state.Name, state.DataDir, f.bitcoin)
}

func (f *LndNodeFactory) AttachNode(state alias.NodeState) (node.LightningNode, error) {
	return node.AttachLndNode(state.Name, state.RPCAddress, state.TLSCertPath, state.MacaroonPath)
}

func (f *LndNodeFactory) NodeState(n node.LightningNode) (alias.NodeState, error) {
	lnd, ok := n.(*node.LndNode)
	if !ok {
		return alias.NodeState{}, fmt.Errorf("not an lnd node: %s", n.Name())
	}

	return alias.NodeState{
		Name:         lnd.Name(),
		Pubkey:       lnd.Identity(),
		P2PAddress:   lnd.Address(),
		RPCAddress:   lnd.RpcAddress,
		TLSCertPath:  lnd.TlsCertPath,
		MacaroonPath: lnd.MacaroonPath,
		DataDir:      lnd.DataDir,
	}, nil
}

func (f *LndNodeFactory) TearDown() error {
	if f.bitcoin != nil {
		err := f.bitcoin.Stop()
		f.bitcoin = nil
		return err
	}
	return nil
}
