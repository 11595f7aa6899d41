package main

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vindex/internal/storage"
	"github.com/dreamware/vindex/internal/vconfig"
)

func TestWhitespaceAnalyzerSplitsOnSpacesTabsNewlines(t *testing.T) {
	got := whitespaceAnalyzer("the quick\tbrown\nfox")
	assert.Equal(t, []string{"the", "quick", "brown", "fox"}, got)
}

func TestWhitespaceAnalyzerEmptyInput(t *testing.T) {
	assert.Empty(t, whitespaceAnalyzer(""))
}

func TestWhitespaceAnalyzerTrimsNoSurroundingEmptyTokens(t *testing.T) {
	got := whitespaceAnalyzer("  lone  ")
	assert.Equal(t, []string{"lone"}, got)
}

func TestLoadOrCreateNodeIDUsesConfiguredValue(t *testing.T) {
	meta, err := storage.OpenBoltStore(filepath.Join(t.TempDir(), "meta.db"), "meta")
	require.NoError(t, err)
	defer meta.Close()

	want := uuid.New()
	got, err := loadOrCreateNodeID(meta, want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadOrCreateNodeIDGeneratesAndPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "meta.db")
	meta, err := storage.OpenBoltStore(dbPath, "meta")
	require.NoError(t, err)

	id, err := loadOrCreateNodeID(meta, "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.NoError(t, meta.Close())

	reopened, err := storage.OpenBoltStore(dbPath, "meta")
	require.NoError(t, err)
	defer reopened.Close()

	again, err := loadOrCreateNodeID(reopened, "")
	require.NoError(t, err)
	assert.Equal(t, id, again, "a second call with no configured id must reuse the persisted one")
}

func TestNewNodeBuildsCoordinatingOnlyNodeWithoutRaft(t *testing.T) {
	cfg := vconfig.Settings{
		NodeID:                 uuid.New().String(),
		DataDir:                t.TempDir(),
		BindAddr:               "127.0.0.1:0",
		OperatorAddr:           "127.0.0.1:0",
		Roles:                  []string{vconfig.RoleCoordinating},
		BreakerTotalLimitBytes: 1 << 20,
	}

	n, err := NewNode(cfg)
	require.NoError(t, err)
	assert.Nil(t, n.raftNode)
	assert.NotNil(t, n.query)
	assert.NotNil(t, n.replication)

	require.NoError(t, n.shutdown())
}
