package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/dreamware/vindex/internal/index"
	"github.com/dreamware/vindex/internal/routing"
	"github.com/dreamware/vindex/internal/vlog"
)

var log = vlog.Component("cluster")

var bucketState = []byte("cluster_state")
var keyLatest = []byte("latest")

// Store persists the last-applied State to a local bbolt file so a
// restarted node can rehydrate before rejoining the raft group, rather than
// starting from an empty State and waiting for a full snapshot.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (creating if needed) the bbolt file at path and ensures
// the state bucket exists.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("cluster: open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cluster: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt file.
func (s *Store) Close() error { return s.db.Close() }

// Save persists st, overwriting whatever was previously stored.
func (s *Store) Save(st State) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobState(st)); err != nil {
		return fmt.Errorf("cluster: encode state: %w", err)
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put(keyLatest, buf.Bytes())
	}); err != nil {
		return err
	}
	log.Debug().Uint64("version", st.Version).Msg("persisted cluster state")
	return nil
}

// Load returns the last-saved State, or a fresh State() if none was ever saved.
func (s *Store) Load() (State, error) {
	var st State
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketState).Get(keyLatest)
		if v == nil {
			return nil
		}
		var g gobStateT
		if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&g); err != nil {
			return fmt.Errorf("cluster: decode state: %w", err)
		}
		st = g.toState()
		found = true
		return nil
	})
	if err != nil {
		return State{}, err
	}
	if !found {
		return New(), nil
	}
	return st, nil
}

// gobStateT is the on-disk representation of State: gob cannot reach
// unexported fields (aliasIndex) through a value of State itself, so the
// store round-trips through this exported mirror and rebuilds the alias
// index on load. uuid.UUID is a plain [16]byte array and gob-encodes as is.
type gobStateT struct {
	Version  uint64
	MasterID uuid.UUID
	Nodes    map[uuid.UUID]Node
	Indices  map[uuid.UUID]index.Metadata
	Routing  routing.Table
	Blocks   map[string]NoMasterBlockLevel
}

func gobState(st State) gobStateT {
	return gobStateT{
		Version:  st.Version,
		MasterID: st.MasterID,
		Nodes:    st.Nodes,
		Indices:  st.Indices,
		Routing:  st.Routing,
		Blocks:   st.Blocks,
	}
}

func (g gobStateT) toState() State {
	st := New()
	st.Version = g.Version
	st.MasterID = g.MasterID
	for id, n := range g.Nodes {
		st.Nodes[id] = n
	}
	for id, m := range g.Indices {
		st.Indices[id] = m
	}
	st.Routing = g.Routing
	st.Blocks = g.Blocks
	st.reindexAliases()
	return st
}
