package network

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/elementsproject/lnregtest/log"
	"github.com/elementsproject/lnregtest/node"
)

// ChannelView is one node's local view of one of its channels, keyed
// by symbolic names only.
type ChannelView struct {
	RemoteName    string         `json:"remote_name"`
	Capacity      btcutil.Amount `json:"capacity"`
	LocalBalance  btcutil.Amount `json:"local_balance"`
	RemoteBalance btcutil.Amount `json:"remote_balance"`
	NumUpdates    uint64         `json:"num_updates"`
	Initiator     bool           `json:"initiator"`
}

// Snapshot is the assembled graph: node alias to channel alias to that
// node's view of the channel. Both endpoints of a channel appear under
// the same channel alias with their own, asymmetric balances; this is
// a per-perspective adjacency map, not a deduplicated edge list.
type Snapshot map[string]map[string]ChannelView

// AssembleGraph queries every running node's own channel listing and
// merges the partial views into one symbolic-name-keyed snapshot. All
// nodes must answer before merging starts; there is no partial
// snapshot. A channel unknown to the alias mapping fails assembly
// unless the network tolerates unmapped channels.
func (n *RegtestNetwork) AssembleGraph() (Snapshot, error) {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil, ErrNotRunning
	}
	queried := make(map[string]node.LightningNode, len(n.nodes))
	for name, ln := range n.nodes {
		queried[name] = ln
	}
	n.mu.Unlock()

	listings := make(map[string][]*node.ChannelInfo, len(queried))
	var mu sync.Mutex
	var g errgroup.Group
	for name, ln := range queried {
		name, ln := name, ln
		g.Go(func() error {
			channels, err := ln.ListChannels()
			if err != nil {
				return fmt.Errorf("node %s: ListChannels() %w", name, err)
			}
			mu.Lock()
			listings[name] = channels
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := Snapshot{}
	for _, name := range n.order {
		entry := map[string]ChannelView{}
		for _, ch := range listings[name] {
			symbolic, ok := n.aliases.ChannelAlias(ch.ChanID)
			if !ok {
				if n.tolerateUnmapped {
					log.Debugf("node %s reports unmapped channel %d, skipping", name, ch.ChanID)
					continue
				}
				return nil, fmt.Errorf("%w: node %s reports channel %d", ErrUnmappedChannel, name, ch.ChanID)
			}

			remote, ok := n.aliases.NodeName(ch.PeerPubkey)
			if !ok {
				if n.tolerateUnmapped {
					log.Debugf("node %s reports channel %s with unmapped peer %s, skipping",
						name, symbolic, ch.PeerPubkey)
					continue
				}
				return nil, fmt.Errorf("%w: node %s reports channel %s with unknown peer %s",
					ErrUnmappedChannel, name, symbolic, ch.PeerPubkey)
			}

			entry[symbolic] = ChannelView{
				RemoteName:    remote,
				Capacity:      ch.Capacity,
				LocalBalance:  ch.LocalBalance,
				RemoteBalance: ch.RemoteBalance,
				NumUpdates:    ch.NumUpdates,
				Initiator:     ch.Initiator,
			}
		}
		snapshot[name] = entry
	}

	return snapshot, nil
}

// Edge is one alias-deduplicated undirected channel of a snapshot.
type Edge struct {
	Channel  string
	Nodes    [2]string
	Capacity btcutil.Amount
}

// UndirectedEdges collapses the per-perspective snapshot into a
// deduplicated undirected edge list, for algorithms that need one.
func UndirectedEdges(s Snapshot) []Edge {
	seen := map[string]bool{}
	var edges []Edge
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for symbolic, view := range s[name] {
			if seen[symbolic] {
				continue
			}
			seen[symbolic] = true
			edges = append(edges, Edge{
				Channel:  symbolic,
				Nodes:    [2]string{name, view.RemoteName},
				Capacity: view.Capacity,
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].Channel < edges[j].Channel })
	return edges
}

// Diameter computes the longest shortest path over the undirected
// projection of a snapshot. Unreachable pairs are ignored; an empty
// graph has diameter 0.
func Diameter(s Snapshot) uint32 {
	adjacency := map[string][]string{}
	for _, e := range UndirectedEdges(s) {
		adjacency[e.Nodes[0]] = append(adjacency[e.Nodes[0]], e.Nodes[1])
		adjacency[e.Nodes[1]] = append(adjacency[e.Nodes[1]], e.Nodes[0])
	}

	var diameter uint32
	for start := range s {
		dist := map[string]uint32{start: 0}
		queue := []string{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range adjacency[cur] {
				if _, visited := dist[next]; visited {
					continue
				}
				dist[next] = dist[cur] + 1
				queue = append(queue, next)
			}
		}
		for _, d := range dist {
			if d > diameter {
				diameter = d
			}
		}
	}
	return diameter
}
