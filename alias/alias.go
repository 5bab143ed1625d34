// Package alias maintains the stable, human readable names for the
// randomly generated node and channel identifiers of a provisioned
// network, and persists them so a network can be restored later.
//
// Names are never derived from the generated values. They are assigned
// in the order nodes and channels appear in the network definition,
// which keeps them identical across from-scratch and restored runs.
package alias

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

var (
	// ErrAliasConflict is returned when a name or id would be bound to
	// a second, different value.
	ErrAliasConflict = errors.New("alias conflict")
)

// Mapping holds the bidirectional translations between generated
// identifiers and symbolic names. Read accessors are safe for
// concurrent use; registration is driven by the single provisioning
// routine.
type Mapping struct {
	mu sync.RWMutex

	nodeByPubkey map[string]string
	pubkeyByNode map[string]string
	aliasByChan  map[uint64]string
	chanByAlias  map[string]uint64
}

func NewMapping() *Mapping {
	return &Mapping{
		nodeByPubkey: map[string]string{},
		pubkeyByNode: map[string]string{},
		aliasByChan:  map[uint64]string{},
		chanByAlias:  map[string]uint64{},
	}
}

// RegisterNode binds a generated node identity to a symbolic name.
func (m *Mapping) RegisterNode(name, pubkey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.pubkeyByNode[name]; ok && prev != pubkey {
		return fmt.Errorf("%w: node %s already bound", ErrAliasConflict, name)
	}
	if prev, ok := m.nodeByPubkey[pubkey]; ok && prev != name {
		return fmt.Errorf("%w: pubkey %s already bound to %s", ErrAliasConflict, pubkey, prev)
	}
	m.nodeByPubkey[pubkey] = name
	m.pubkeyByNode[name] = pubkey
	return nil
}

// RegisterChannel binds a generated channel id to the symbolic id of
// the channel spec at the given position in the full definition.
// Symbolic ids are one-based, so a limited run assigns the same ids as
// a full run would.
func (m *Mapping) RegisterChannel(index int, chanID uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbolic := strconv.Itoa(index + 1)
	if prev, ok := m.chanByAlias[symbolic]; ok && prev != chanID {
		return "", fmt.Errorf("%w: channel %s already bound", ErrAliasConflict, symbolic)
	}
	if prev, ok := m.aliasByChan[chanID]; ok && prev != symbolic {
		return "", fmt.Errorf("%w: channel id %d already bound to %s", ErrAliasConflict, chanID, prev)
	}
	m.aliasByChan[chanID] = symbolic
	m.chanByAlias[symbolic] = chanID
	return symbolic, nil
}

// NodeName translates a generated node identity to its symbolic name.
func (m *Mapping) NodeName(pubkey string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.nodeByPubkey[pubkey]
	return name, ok
}

// NodePubkey translates a symbolic name to the generated identity.
func (m *Mapping) NodePubkey(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pubkey, ok := m.pubkeyByNode[name]
	return pubkey, ok
}

// ChannelAlias translates a generated channel id to its symbolic id.
func (m *Mapping) ChannelAlias(chanID uint64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbolic, ok := m.aliasByChan[chanID]
	return symbolic, ok
}

// ChannelID translates a symbolic channel id back to the generated id.
func (m *Mapping) ChannelID(symbolic string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.chanByAlias[symbolic]
	return id, ok
}

// NodeMapping returns a copy of the identity to name mapping.
func (m *Mapping) NodeMapping() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := make(map[string]string, len(m.nodeByPubkey))
	for k, v := range m.nodeByPubkey {
		cp[k] = v
	}
	return cp
}

// ChannelMapping returns a copy of the channel id to symbolic id
// mapping, with the generated ids rendered in decimal.
func (m *Mapping) ChannelMapping() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := make(map[string]string, len(m.aliasByChan))
	for k, v := range m.aliasByChan {
		cp[strconv.FormatUint(k, 10)] = v
	}
	return cp
}

// Equal reports order-insensitive content equality of two mappings.
func (m *Mapping) Equal(other *Mapping) bool {
	if other == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	if len(m.nodeByPubkey) != len(other.nodeByPubkey) ||
		len(m.aliasByChan) != len(other.aliasByChan) {
		return false
	}
	for k, v := range m.nodeByPubkey {
		if other.nodeByPubkey[k] != v {
			return false
		}
	}
	for k, v := range m.aliasByChan {
		if other.aliasByChan[k] != v {
			return false
		}
	}
	return true
}
