package network

import "errors"

var (
	// ErrNodeSyncTimeout is returned when a node does not catch up
	// with the settlement layer chain tip within the poll bound.
	ErrNodeSyncTimeout = errors.New("node sync timeout")

	// ErrChannelOpenTimeout is returned when an opened channel does
	// not turn active within the poll bound. Fatal for the run, there
	// is no partial-network success.
	ErrChannelOpenTimeout = errors.New("channel open timeout")

	// ErrFixtureMismatch is returned when the persisted alias mapping
	// does not match the live identities of the reachable nodes. This
	// guards against silently testing on a stale or foreign network.
	ErrFixtureMismatch = errors.New("fixture does not match running network")

	// ErrUnmappedChannel is returned by graph assembly when a node
	// reports a channel unknown to the alias mapping, indicating
	// topology drift.
	ErrUnmappedChannel = errors.New("channel not in alias mapping")

	// ErrNotRunning is returned for queries on a network that has not
	// been provisioned or attached yet.
	ErrNotRunning = errors.New("network not running")
)
