package network

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/elementsproject/lnregtest/alias"
	"github.com/elementsproject/lnregtest/node"
)

// mockCommitFee is the fee the funder's balance drops by on every
// channel open, matching what lnd reserves for the commitment
// transaction on regtest.
const mockCommitFee = btcutil.Amount(9050)

// mockChain is the shared state behind a set of mock nodes, standing in
// for the settlement layer and the gossip network.
type mockChain struct {
	mu     sync.Mutex
	nodes  map[string]*mockNode
	nextID uint64
}

func newMockChain() *mockChain {
	return &mockChain{
		nodes:  map[string]*mockNode{},
		nextID: 124244814004224,
	}
}

func (c *mockChain) register(n *mockNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[n.pubkey] = n
}

func (c *mockChain) lookup(pubkey string) (*mockNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[pubkey]
	return n, ok
}

func (c *mockChain) newChanID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

// snapshot builds a pubkey-keyed view of every channel the chain knows
// about, the raw material for a mock node's aggregate network view.
func (c *mockChain) snapshot() Snapshot {
	c.mu.Lock()
	nodes := make([]*mockNode, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	s := Snapshot{}
	for _, n := range nodes {
		n.mu.Lock()
		entry := map[string]ChannelView{}
		for _, ch := range n.channels {
			entry[strconv.FormatUint(ch.ChanID, 10)] = ChannelView{
				RemoteName:    ch.PeerPubkey,
				Capacity:      ch.Capacity,
				LocalBalance:  ch.LocalBalance,
				RemoteBalance: ch.RemoteBalance,
				NumUpdates:    ch.NumUpdates,
				Initiator:     ch.Initiator,
			}
		}
		s[n.pubkey] = entry
		n.mu.Unlock()
	}
	return s
}

// mockNode is an in-memory LightningNode. Channels opened through it
// turn active immediately and mirror onto the peer's listing.
type mockNode struct {
	chain  *mockChain
	name   string
	pubkey string
	port   int

	mu       sync.Mutex
	running  bool
	balance  btcutil.Amount
	channels []*node.ChannelInfo
}

func newMockPubkey() (string, error) {
	buf := make([]byte, 33)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	buf[0] = 0x02
	return hex.EncodeToString(buf), nil
}

func (m *mockNode) Name() string     { return m.name }
func (m *mockNode) Identity() string { return m.pubkey }

func (m *mockNode) Address() string {
	return fmt.Sprintf("%s@localhost:%d", m.pubkey, m.port)
}

func (m *mockNode) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return nil
}

func (m *mockNode) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

func (m *mockNode) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockNode) IsSynced() (bool, error) {
	return m.isRunning(), nil
}

func (m *mockNode) FundWallet(amount btcutil.Amount, mineBlock bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return "", fmt.Errorf("node %s not running", m.name)
	}
	m.balance += amount
	return "bcrt1qmockaddress", nil
}

func (m *mockNode) OpenChannel(peerAddr string, capacity, pushAmount btcutil.Amount) (string, error) {
	peerPubkey, _, _, err := node.SplitLnAddr(peerAddr)
	if err != nil {
		return "", err
	}
	peer, ok := m.chain.lookup(peerPubkey)
	if !ok {
		return "", fmt.Errorf("unknown peer %s", peerPubkey)
	}
	if !m.isRunning() || !peer.isRunning() {
		return "", fmt.Errorf("both endpoints must run to open a channel")
	}

	m.mu.Lock()
	if m.balance < capacity {
		m.mu.Unlock()
		return "", fmt.Errorf("node %s: insufficient funds for capacity %s", m.name, capacity)
	}
	m.balance -= capacity
	m.mu.Unlock()

	id := m.chain.newChanID()

	m.mu.Lock()
	m.channels = append(m.channels, &node.ChannelInfo{
		PeerPubkey:    peer.pubkey,
		ChanID:        id,
		Capacity:      capacity,
		LocalBalance:  capacity - pushAmount - mockCommitFee,
		RemoteBalance: pushAmount,
		Initiator:     true,
		Active:        true,
	})
	m.mu.Unlock()

	peer.mu.Lock()
	peer.channels = append(peer.channels, &node.ChannelInfo{
		PeerPubkey:    m.pubkey,
		ChanID:        id,
		Capacity:      capacity,
		LocalBalance:  pushAmount,
		RemoteBalance: capacity - pushAmount - mockCommitFee,
		Initiator:     false,
		Active:        true,
	})
	peer.mu.Unlock()

	return fmt.Sprintf("%064x", id), nil
}

func (m *mockNode) ListChannels() ([]*node.ChannelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, fmt.Errorf("node %s not running", m.name)
	}
	channels := make([]*node.ChannelInfo, 0, len(m.channels))
	for _, ch := range m.channels {
		cp := *ch
		channels = append(channels, &cp)
	}
	return channels, nil
}

func (m *mockNode) GetNetworkInfo() (*node.NetworkStats, error) {
	if !m.isRunning() {
		return nil, fmt.Errorf("node %s not running", m.name)
	}
	return ComputeStats(m.chain.snapshot()), nil
}

// mockFactory hands out mock nodes and keeps them across stop cycles,
// so that restore runs find the nodes a previous run created.
type mockFactory struct {
	chain *mockChain

	mu        sync.Mutex
	nodes     map[string]*mockNode
	nextPort  int
	setUps    []bool
	tearDowns int
}

func newMockFactory() *mockFactory {
	return &mockFactory{
		chain:    newMockChain(),
		nodes:    map[string]*mockNode{},
		nextPort: 9735,
	}
}

func (f *mockFactory) SetUp(fresh bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setUps = append(f.setUps, fresh)
	return nil
}

func (f *mockFactory) NewNode(name string) (node.LightningNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.nodes[name]; exists {
		return nil, fmt.Errorf("node %s already exists", name)
	}

	pubkey, err := newMockPubkey()
	if err != nil {
		return nil, err
	}
	n := &mockNode{
		chain:  f.chain,
		name:   name,
		pubkey: pubkey,
		port:   f.nextPort,
	}
	f.nextPort++
	f.nodes[name] = n
	f.chain.register(n)
	return n, nil
}

func (f *mockFactory) RestoreNode(state alias.NodeState) (node.LightningNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[state.Name]
	if !ok {
		return nil, fmt.Errorf("no persisted node %s", state.Name)
	}
	return n, nil
}

func (f *mockFactory) AttachNode(state alias.NodeState) (node.LightningNode, error) {
	f.mu.Lock()
	n, ok := f.nodes[state.Name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no persisted node %s", state.Name)
	}
	if !n.isRunning() {
		return nil, fmt.Errorf("node %s is not running", state.Name)
	}
	return n, nil
}

func (f *mockFactory) NodeState(ln node.LightningNode) (alias.NodeState, error) {
	m, ok := ln.(*mockNode)
	if !ok {
		return alias.NodeState{}, fmt.Errorf("not a mock node: %s", ln.Name())
	}
	return alias.NodeState{
		Name:       m.name,
		Pubkey:     m.pubkey,
		P2PAddress: m.Address(),
		RPCAddress: fmt.Sprintf("localhost:%d", m.port+1000),
		DataDir:    "/mock/" + m.name,
	}, nil
}

func (f *mockFactory) TearDown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tearDowns++
	return nil
}
