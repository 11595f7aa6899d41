package storage

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// BoltStore is a single go.etcd.io/bbolt bucket holding one node's local
// metadata — currently just its persisted NodeID (see loadOrCreateNodeID in
// cmd/vindexd). It exposes only Get/Put/Close: that's everything a
// process-identity bookkeeping store needs, and everything cmd/vindexd
// calls. internal/cluster keeps its own, separate bbolt-backed Store for
// replicated cluster state.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// OpenBoltStore opens path (creating it if needed) and ensures bucket exists.
func OpenBoltStore(path string, bucket string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	b := []byte(bucket)
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create bucket %s: %w", bucket, err)
	}
	return &BoltStore{db: db, bucket: b}, nil
}

func (s *BoltStore) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltStore) Put(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error { return s.db.Close() }
