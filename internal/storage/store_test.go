package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStorePutThenGetRoundTrips(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "meta.db"), "meta")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("node_id", []byte("abc-123")))

	got, err := s.Get("node_id")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc-123"), got)
}

func TestBoltStoreGetMissingKeyReturnsErrKeyNotFound(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "meta.db"), "meta")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestBoltStorePutOverwritesExistingValue(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "meta.db"), "meta")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("node_id", []byte("first")))
	require.NoError(t, s.Put("node_id", []byte("second")))

	got, err := s.Get("node_id")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "meta.db")

	s, err := OpenBoltStore(dbPath, "meta")
	require.NoError(t, err)
	require.NoError(t, s.Put("node_id", []byte("persisted")))
	require.NoError(t, s.Close())

	reopened, err := OpenBoltStore(dbPath, "meta")
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("node_id")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestOpenBoltStoreCreatesBucketOnFirstOpen(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "meta.db"), "meta")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("anything")
	assert.ErrorIs(t, err, ErrKeyNotFound, "a freshly created bucket should report missing keys, not fail to find the bucket itself")
}
