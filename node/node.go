// Package node holds the external collaborators of a regtest network:
// the settlement layer daemon (bitcoind) and the payment channel nodes
// (lnd), each modeled as a process plus an rpc surface. The
// orchestration layer only ever talks to payment nodes through the
// LightningNode capability interface.
package node

import (
	"github.com/btcsuite/btcd/btcutil"
)

// State is the lifecycle state of a payment node.
type State string

const (
	// Stopped means no process is running for the node.
	Stopped State = "Stopped"

	// Starting means the process is up but the node has not caught up
	// with the settlement layer chain tip yet.
	Starting State = "Starting"

	// Synced means the node reports the settlement layer chain tip.
	Synced State = "Synced"

	// Ready means the node wallet holds at least one confirmed output
	// and can open channels.
	Ready State = "Ready"
)

// ChannelInfo is one entry of a node's own channel listing. Balances
// are the reporting node's local view; the same physical channel is
// reported asymmetrically by both endpoints.
type ChannelInfo struct {
	PeerPubkey    string
	ChanID        uint64
	Capacity      btcutil.Amount
	LocalBalance  btcutil.Amount
	RemoteBalance btcutil.Amount
	NumUpdates    uint64
	Initiator     bool
	Active        bool
}

// NetworkStats is a node's aggregate view of the channel graph, as
// returned by the lnd getnetworkinfo call. The json tags match the
// wire names so that fixtures can be written against them directly.
type NetworkStats struct {
	GraphDiameter     uint32         `json:"graph_diameter"`
	AvgOutDegree      float64        `json:"avg_out_degree"`
	MaxOutDegree      uint32         `json:"max_out_degree"`
	NumNodes          uint32         `json:"num_nodes"`
	NumChannels       uint32         `json:"num_channels"`
	TotalCapacity     btcutil.Amount `json:"total_network_capacity"`
	AvgChannelSize    float64        `json:"avg_channel_size"`
	MinChannelSize    btcutil.Amount `json:"min_channel_size"`
	MaxChannelSize    btcutil.Amount `json:"max_channel_size"`
	MedianChannelSize btcutil.Amount `json:"median_channel_size_sat"`
	NumZombieChans    uint64         `json:"num_zombie_chans"`
}

// LightningNode is the capability set the orchestration layer relies
// on. Every method maps to a single query or mutation on the external
// node process. Mutating calls (Start, Stop, FundWallet, OpenChannel)
// are serialized by the lifecycle manager; the query surface may be
// used concurrently.
type LightningNode interface {
	// Name returns the symbolic name the node was provisioned under.
	Name() string
	// Identity returns the generated public key of the node.
	Identity() string
	// Address returns the connection string in pubkey@host:port form.
	Address() string

	Start() error
	Stop() error

	// IsSynced reports whether the node sees the settlement layer
	// chain tip.
	IsSynced() (bool, error)

	// FundWallet sends the amount to a fresh wallet address and, with
	// mineBlock set, confirms it. Returns the funded address.
	FundWallet(amount btcutil.Amount, mineBlock bool) (string, error)

	// OpenChannel opens a channel to the peer address with the given
	// capacity, pushing pushAmount to the remote side. Returns the
	// funding transaction id of the pending channel; the caller polls
	// ListChannels until the channel turns active.
	OpenChannel(peerAddr string, capacity, pushAmount btcutil.Amount) (string, error)

	ListChannels() ([]*ChannelInfo, error)
	GetNetworkInfo() (*NetworkStats, error)
}
