package topology

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

var (
	// ErrTopologyNotFound is returned when a location can not be resolved
	// to a network definition.
	ErrTopologyNotFound = errors.New("topology not found")

	// ErrTopologyInvalid is returned when a network definition is
	// internally inconsistent.
	ErrTopologyInvalid = errors.New("topology invalid")
)

// NodeSpec describes a single node of a network definition. The name is
// the symbolic, human readable handle ("A", "B", ...) that all mappings
// and assertions refer to.
type NodeSpec struct {
	Name   string `yaml:"name"`
	Master bool   `yaml:"master,omitempty"`
}

// ChannelSpec describes a channel between two nodes of a network
// definition. From is the initiator, it opens the channel and pushes
// PushAmount to To at open time.
type ChannelSpec struct {
	From       string         `yaml:"from"`
	To         string         `yaml:"to"`
	Capacity   btcutil.Amount `yaml:"capacity"`
	PushAmount btcutil.Amount `yaml:"push_amount,omitempty"`
}

// NetworkDefinition is the declarative description of a network to
// provision. Definitions are immutable once loaded; the channel slice
// order is meaningful, it determines the order channels are opened in
// and the symbolic channel ids.
type NetworkDefinition struct {
	Location string        `yaml:"-"`
	Nodes    []NodeSpec    `yaml:"nodes"`
	Channels []ChannelSpec `yaml:"channels"`
}

// Validate checks a definition for internal consistency.
func (d *NetworkDefinition) Validate() error {
	names := map[string]bool{}
	for _, n := range d.Nodes {
		if n.Name == "" {
			return fmt.Errorf("%w: node with empty name", ErrTopologyInvalid)
		}
		if names[n.Name] {
			return fmt.Errorf("%w: duplicate node name %s", ErrTopologyInvalid, n.Name)
		}
		names[n.Name] = true
	}

	for i, c := range d.Channels {
		if !names[c.From] {
			return fmt.Errorf("%w: channel %d references unknown node %s", ErrTopologyInvalid, i+1, c.From)
		}
		if !names[c.To] {
			return fmt.Errorf("%w: channel %d references unknown node %s", ErrTopologyInvalid, i+1, c.To)
		}
		if c.From == c.To {
			return fmt.Errorf("%w: channel %d is a self-loop on %s", ErrTopologyInvalid, i+1, c.From)
		}
		if c.Capacity <= 0 {
			return fmt.Errorf("%w: channel %d has non-positive capacity", ErrTopologyInvalid, i+1)
		}
		if c.PushAmount < 0 || c.PushAmount >= c.Capacity {
			return fmt.Errorf("%w: channel %d pushes %d of %d capacity", ErrTopologyInvalid, i+1, c.PushAmount, c.Capacity)
		}
	}
	return nil
}

// MasterName returns the name of the designated master node, or the
// first node if no master flag is set.
func (d *NetworkDefinition) MasterName() string {
	for _, n := range d.Nodes {
		if n.Master {
			return n.Name
		}
	}
	if len(d.Nodes) > 0 {
		return d.Nodes[0].Name
	}
	return ""
}

// HasNode reports whether the definition contains a node spec with the
// given name.
func (d *NetworkDefinition) HasNode(name string) bool {
	for _, n := range d.Nodes {
		if n.Name == name {
			return true
		}
	}
	return false
}

// LimitedChannel pairs a channel spec with its position in the full
// definition. The position is what symbolic channel ids are derived
// from, so a limited run assigns the same ids as a full run.
type LimitedChannel struct {
	Index int
	Spec  ChannelSpec
}

// Limit returns the node specs with names lexically less than or equal
// to maxName and the channels between them, each tagged with its index
// in the full definition. An empty maxName keeps everything.
func Limit(d *NetworkDefinition, maxName string) ([]NodeSpec, []LimitedChannel) {
	kept := map[string]bool{}
	var nodes []NodeSpec
	for _, n := range d.Nodes {
		if maxName != "" && n.Name > maxName {
			continue
		}
		kept[n.Name] = true
		nodes = append(nodes, n)
	}

	var channels []LimitedChannel
	for i, c := range d.Channels {
		if kept[c.From] && kept[c.To] {
			channels = append(channels, LimitedChannel{Index: i, Spec: c})
		}
	}
	return nodes, channels
}
