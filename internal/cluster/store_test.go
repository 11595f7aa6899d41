package cluster

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vindex/internal/index"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	nodeID := uuid.New()
	st := New().WithNode(Node{ID: nodeID, Addr: "127.0.0.1:9000"}).WithMaster(nodeID)

	require.NoError(t, store.Save(st))

	loaded, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, st.Version, loaded.Version)
	assert.Equal(t, nodeID, loaded.MasterID)
	require.Contains(t, loaded.Nodes, nodeID)
	assert.Equal(t, "127.0.0.1:9000", loaded.Nodes[nodeID].Addr)
}

func TestStoreLoadEmptyReturnsFreshState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), loaded.Version)
	assert.Empty(t, loaded.Nodes)
}

func TestStoreLoadRebuildsAliasIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	idxMeta := index.New("logs", 1, 0, index.Mapping{})
	idxMeta = idxMeta.WithAlias("current")
	st := New().PutIndex(idxMeta)
	require.NoError(t, store.Save(st))

	loaded, err := store.Load()
	require.NoError(t, err)

	byAlias, ok := loaded.IndexByName("current")
	require.True(t, ok)
	assert.Equal(t, idxMeta.UUID, byAlias.UUID)
}
