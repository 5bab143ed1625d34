package alias

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrFixtureNotFound is returned when the fixture directory holds
	// no persisted network.
	ErrFixtureNotFound = errors.New("fixture not found")

	// ErrFixtureCorrupt is returned when the persisted data can not be
	// read back.
	ErrFixtureCorrupt = errors.New("fixture corrupt")

	// ErrFixtureLocked is returned when another run holds the fixture
	// directory.
	ErrFixtureLocked = errors.New("fixture locked by another process")
)

var (
	META_BUCKET       = []byte("meta")
	NODE_ALIAS_BUCKET = []byte("node-aliases")
	CHAN_ALIAS_BUCKET = []byte("channel-aliases")
	NODES_BUCKET      = []byte("nodes")
)

const (
	fixtureFileName = "fixture.db"
	formatVersion   = "1"
)

// NodeState is the per-node reconnection metadata persisted alongside
// the alias mapping. It is what a later process needs to re-attach to
// a running node without re-deriving anything from the topology.
type NodeState struct {
	Name         string `json:"name"`
	Pubkey       string `json:"pubkey"`
	P2PAddress   string `json:"p2p_address"`
	RPCAddress   string `json:"rpc_address"`
	TLSCertPath  string `json:"tls_cert_path"`
	MacaroonPath string `json:"macaroon_path"`
	DataDir      string `json:"data_dir"`
}

// Store persists alias mappings and node state in a bbolt file inside
// the fixture directory. The open database file carries an exclusive
// lock, so holding a Store open for the duration of a run keeps other
// orchestrations off the same directory.
type Store struct {
	db  *bbolt.DB
	dir string
}

// OpenStore opens the fixture database in dir, creating it when
// mustExist is false. A directory without a fixture database yields
// ErrFixtureNotFound when mustExist is set.
func OpenStore(dir string, mustExist bool) (*Store, error) {
	file := filepath.Join(dir, fixtureFileName)
	if _, err := os.Stat(file); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("os.Stat() %w", err)
		}
		if mustExist {
			return nil, fmt.Errorf("%w: %s", ErrFixtureNotFound, dir)
		}
		if err := os.MkdirAll(dir, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("os.MkdirAll() %w", err)
		}
	}

	db, err := bbolt.Open(file, os.ModePerm, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrFixtureLocked, dir)
		}
		return nil, fmt.Errorf("bbolt.Open() %w", err)
	}

	return &Store{db: db, dir: dir}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Persist writes the mapping, the per-node state and the topology
// location, replacing whatever the store held before.
func (s *Store) Persist(m *Mapping, nodes map[string]NodeState, location string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{META_BUCKET, NODE_ALIAS_BUCKET, CHAN_ALIAS_BUCKET, NODES_BUCKET} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		meta := tx.Bucket(META_BUCKET)
		if err := meta.Put([]byte("version"), []byte(formatVersion)); err != nil {
			return err
		}
		if err := meta.Put([]byte("location"), []byte(location)); err != nil {
			return err
		}

		nodeAliases := tx.Bucket(NODE_ALIAS_BUCKET)
		for pubkey, name := range m.NodeMapping() {
			if err := nodeAliases.Put([]byte(pubkey), []byte(name)); err != nil {
				return err
			}
		}

		chanAliases := tx.Bucket(CHAN_ALIAS_BUCKET)
		for chanID, symbolic := range m.ChannelMapping() {
			if err := chanAliases.Put([]byte(chanID), []byte(symbolic)); err != nil {
				return err
			}
		}

		nodeBucket := tx.Bucket(NODES_BUCKET)
		for name, state := range nodes {
			stateBytes, err := json.Marshal(state)
			if err != nil {
				return err
			}
			if err := nodeBucket.Put([]byte(name), stateBytes); err != nil {
				return err
			}
		}
		return nil
	})
}

// Restore reads back the mapping, the node state and the topology
// location of the persisted network.
func (s *Store) Restore() (*Mapping, map[string]NodeState, string, error) {
	m := NewMapping()
	nodes := map[string]NodeState{}
	var location string

	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(META_BUCKET)
		if meta == nil {
			return fmt.Errorf("%w: missing meta bucket", ErrFixtureCorrupt)
		}
		if v := string(meta.Get([]byte("version"))); v != formatVersion {
			return fmt.Errorf("%w: unsupported format version %q", ErrFixtureCorrupt, v)
		}
		location = string(meta.Get([]byte("location")))

		nodeAliases := tx.Bucket(NODE_ALIAS_BUCKET)
		chanAliases := tx.Bucket(CHAN_ALIAS_BUCKET)
		nodeBucket := tx.Bucket(NODES_BUCKET)
		if nodeAliases == nil || chanAliases == nil || nodeBucket == nil {
			return fmt.Errorf("%w: missing bucket", ErrFixtureCorrupt)
		}

		err := nodeAliases.ForEach(func(k, v []byte) error {
			return m.RegisterNode(string(v), string(k))
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFixtureCorrupt, err)
		}

		err = chanAliases.ForEach(func(k, v []byte) error {
			chanID, err := strconv.ParseUint(string(k), 10, 64)
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(string(v))
			if err != nil {
				return err
			}
			_, err = m.RegisterChannel(index-1, chanID)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFixtureCorrupt, err)
		}

		return nodeBucket.ForEach(func(k, v []byte) error {
			var state NodeState
			if err := json.Unmarshal(v, &state); err != nil {
				return fmt.Errorf("%w: node %s: %v", ErrFixtureCorrupt, k, err)
			}
			nodes[string(k)] = state
			return nil
		})
	})
	if err != nil {
		return nil, nil, "", err
	}

	return m, nodes, location, nil
}
