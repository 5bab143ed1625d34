package network

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/elementsproject/lnregtest/alias"
	"github.com/elementsproject/lnregtest/log"
	"github.com/elementsproject/lnregtest/node"
	"github.com/elementsproject/lnregtest/topology"
)

// fundingReserve is added on top of the summed channel capacities a
// node initiates, to cover funding transaction fees.
const fundingReserve = btcutil.Amount(1_000_000)

// provision drives a fresh topology to a running, funded, fully
// channeled network and persists the fixture.
func (n *RegtestNetwork) provision() error {
	// The open store holds an exclusive lock on the fixture directory
	// for the whole provisioning phase. It is released once the
	// fixture is persisted, so that other processes can attach to the
	// running network.
	store, err := alias.OpenStore(n.fixtureDir, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := n.factory.SetUp(true); err != nil {
		return fmt.Errorf("SetUp() %w", err)
	}

	if err := n.startNodes(false); err != nil {
		return err
	}

	if err := n.fundNodes(); err != nil {
		return err
	}

	if err := n.openChannels(); err != nil {
		return err
	}

	n.running = true
	return n.persistFixture(store)
}

// restore restarts a previously persisted network from its fixture,
// skipping topology-driven creation entirely.
func (n *RegtestNetwork) restore() error {
	store, err := alias.OpenStore(n.fixtureDir, true)
	if err != nil {
		return err
	}
	defer store.Close()

	mapping, nodeStates, location, err := store.Restore()
	if err != nil {
		return err
	}
	if location != n.def.Location {
		return fmt.Errorf("%w: fixture holds %q, requested %q", ErrFixtureMismatch, location, n.def.Location)
	}

	if err := n.factory.SetUp(false); err != nil {
		return fmt.Errorf("SetUp() %w", err)
	}

	for _, name := range n.order {
		state, ok := nodeStates[name]
		if !ok {
			return fmt.Errorf("%w: node %s missing from fixture", ErrFixtureMismatch, name)
		}
		ln, err := n.factory.RestoreNode(state)
		if err != nil {
			return fmt.Errorf("RestoreNode(%s) %w", name, err)
		}
		n.nodes[name] = ln
	}

	if err := n.startNodes(true); err != nil {
		return err
	}

	if err := n.verifyIdentities(mapping, nodeStates); err != nil {
		return err
	}

	n.aliases = mapping
	for _, name := range n.order {
		n.states[name] = node.Ready
	}

	n.running = true
	return n.persistFixture(store)
}

// attach connects to an already running network via its fixture. It
// never starts processes and never mutates node state.
func (n *RegtestNetwork) attach() error {
	store, err := alias.OpenStore(n.fixtureDir, true)
	if err != nil {
		return err
	}
	defer store.Close()

	mapping, nodeStates, location, err := store.Restore()
	if err != nil {
		return err
	}
	if location != n.def.Location {
		return fmt.Errorf("%w: fixture holds %q, requested %q", ErrFixtureMismatch, location, n.def.Location)
	}

	for _, name := range n.order {
		state, ok := nodeStates[name]
		if !ok {
			return fmt.Errorf("%w: node %s missing from fixture", ErrFixtureMismatch, name)
		}
		ln, err := n.factory.AttachNode(state)
		if err != nil {
			return fmt.Errorf("AttachNode(%s) %w", name, err)
		}
		n.nodes[name] = ln
	}

	if err := n.verifyIdentities(mapping, nodeStates); err != nil {
		return err
	}

	n.aliases = mapping
	for _, name := range n.order {
		n.states[name] = node.Ready
	}

	n.running = true
	n.attached = true
	return nil
}

// startNodes creates (unless the node handles exist already) and
// starts all nodes concurrently, then waits for each to sync with the
// settlement layer chain tip. Node aliases are registered afterwards
// in definition order, so the mapping never depends on startup timing.
func (n *RegtestNetwork) startNodes(restored bool) error {
	if !restored {
		for _, spec := range n.order {
			ln, err := n.factory.NewNode(spec)
			if err != nil {
				return fmt.Errorf("NewNode(%s) %w", spec, err)
			}
			n.nodes[spec] = ln
		}
	}

	var g errgroup.Group
	for _, name := range n.order {
		name := name
		ln := n.nodes[name]
		g.Go(func() error {
			n.setState(name, node.Starting)
			log.Debugf("starting node %s", name)
			if err := ln.Start(); err != nil {
				return fmt.Errorf("node %s: Start() %w", name, err)
			}

			err := node.WaitForWithErr(ln.IsSynced, node.TIMEOUT)
			if err != nil {
				return fmt.Errorf("%w: node %s: %v", ErrNodeSyncTimeout, name, err)
			}
			n.setState(name, node.Synced)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !restored {
		for _, name := range n.order {
			if err := n.aliases.RegisterNode(name, n.nodes[name].Identity()); err != nil {
				return err
			}
		}
	}
	return nil
}

// fundNodes gives every node that initiates channels enough confirmed
// on-chain funds to open them, moving it from Synced to Ready.
func (n *RegtestNetwork) fundNodes() error {
	for _, name := range n.order {
		amount := fundingReserve
		for _, lc := range n.channels {
			if lc.Spec.From == name {
				amount += 2 * lc.Spec.Capacity
			}
		}

		log.Debugf("funding node %s with %s", name, amount)
		_, err := n.nodes[name].FundWallet(amount, true)
		if err != nil {
			return fmt.Errorf("node %s: FundWallet() %w", name, err)
		}
		n.setState(name, node.Ready)
	}
	return nil
}

// openChannels opens every channel of the (limited) definition in
// declaration order and binds the generated channel ids to their
// symbolic ids. Opens are strictly sequential: later opens may spend
// change of earlier ones and the id assignment order must be
// deterministic.
func (n *RegtestNetwork) openChannels() error {
	for _, lc := range n.channels {
		if err := n.openChannel(lc); err != nil {
			return err
		}
	}
	return nil
}

func (n *RegtestNetwork) openChannel(lc topology.LimitedChannel) error {
	from, to := n.nodes[lc.Spec.From], n.nodes[lc.Spec.To]
	if s := n.getState(lc.Spec.From); s != node.Ready {
		return fmt.Errorf("node %s not ready to open channel: %s", lc.Spec.From, s)
	}
	if s := n.getState(lc.Spec.To); s != node.Ready {
		return fmt.Errorf("node %s not ready to accept channel: %s", lc.Spec.To, s)
	}

	log.Debugf("opening channel %d: %s -> %s, capacity %s, push %s",
		lc.Index+1, lc.Spec.From, lc.Spec.To, lc.Spec.Capacity, lc.Spec.PushAmount)

	pending, err := from.OpenChannel(to.Address(), lc.Spec.Capacity, lc.Spec.PushAmount)
	if err != nil {
		return fmt.Errorf("channel %s -> %s: OpenChannel() %w", lc.Spec.From, lc.Spec.To, err)
	}

	// The generated channel id only exists once the open confirmed and
	// the channel shows up active in the initiator's own listing.
	var chanID uint64
	err = node.WaitForWithErr(func() (bool, error) {
		channels, err := from.ListChannels()
		if err != nil {
			return false, fmt.Errorf("ListChannels() %w", err)
		}
		for _, ch := range channels {
			if ch.PeerPubkey != to.Identity() || !ch.Active {
				continue
			}
			if _, mapped := n.aliases.ChannelAlias(ch.ChanID); mapped {
				continue
			}
			chanID = ch.ChanID
			return true, nil
		}
		return false, nil
	}, node.TIMEOUT)
	if err != nil {
		return fmt.Errorf("%w: channel %s -> %s (funding %s): %v",
			ErrChannelOpenTimeout, lc.Spec.From, lc.Spec.To, pending, err)
	}

	symbolic, err := n.aliases.RegisterChannel(lc.Index, chanID)
	if err != nil {
		return err
	}
	log.Debugf("channel %s: %s -> %s got id %d", symbolic, lc.Spec.From, lc.Spec.To, chanID)
	return nil
}

// verifyIdentities cross-checks the live identity of every node
// against the persisted mapping. A single drift fails the run.
func (n *RegtestNetwork) verifyIdentities(mapping *alias.Mapping, nodeStates map[string]alias.NodeState) error {
	for _, name := range n.order {
		live := n.nodes[name].Identity()
		if state := nodeStates[name]; state.Pubkey != live {
			return fmt.Errorf("%w: node %s has identity %s, fixture says %s",
				ErrFixtureMismatch, name, live, state.Pubkey)
		}
		if mapped, ok := mapping.NodeName(live); !ok || mapped != name {
			return fmt.Errorf("%w: identity %s not mapped to node %s", ErrFixtureMismatch, live, name)
		}
	}
	return nil
}

func (n *RegtestNetwork) persistFixture(store *alias.Store) error {
	nodeStates := map[string]alias.NodeState{}
	for _, name := range n.order {
		state, err := n.factory.NodeState(n.nodes[name])
		if err != nil {
			return fmt.Errorf("NodeState(%s) %w", name, err)
		}
		nodeStates[name] = state
	}

	err := store.Persist(n.aliases, nodeStates, n.def.Location)
	if err != nil {
		return fmt.Errorf("Persist() %w", err)
	}
	return nil
}

func (n *RegtestNetwork) setState(name string, s node.State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states[name] = s
}

func (n *RegtestNetwork) getState(name string) node.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.states[name]
}

// Definition exposes the loaded (immutable) network definition.
func (n *RegtestNetwork) Definition() *topology.NetworkDefinition {
	return n.def
}
