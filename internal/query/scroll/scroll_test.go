package scroll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerOpenGetAdvanceClear(t *testing.T) {
	m := NewManager(time.Minute)

	ctx, err := m.Open(map[string][]byte{"idx/0": []byte("cursor-a")})
	require.NoError(t, err)
	assert.NotEmpty(t, ctx.ID)

	got, ok := m.Get(ctx.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("cursor-a"), got.ShardCursors["idx/0"])

	m.Advance(ctx.ID, map[string][]byte{"idx/0": []byte("cursor-b")})
	got, ok = m.Get(ctx.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("cursor-b"), got.ShardCursors["idx/0"])

	m.Clear(ctx.ID)
	_, ok = m.Get(ctx.ID)
	assert.False(t, ok)
}

func TestManagerGetUnknownID(t *testing.T) {
	m := NewManager(time.Minute)
	_, ok := m.Get("does-not-exist")
	assert.False(t, ok)
}

func TestManagerReapOnceEvictsExpiredContexts(t *testing.T) {
	m := NewManager(time.Millisecond)
	ctx, err := m.Open(nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.reapOnce()

	_, ok := m.Get(ctx.ID)
	assert.False(t, ok)
}

func TestManagerReapOnceKeepsFreshContexts(t *testing.T) {
	m := NewManager(time.Minute)
	ctx, err := m.Open(nil)
	require.NoError(t, err)

	m.reapOnce()

	_, ok := m.Get(ctx.ID)
	assert.True(t, ok)
}

func TestNewScrollIDIsUnique(t *testing.T) {
	a, err := newScrollID()
	require.NoError(t, err)
	b, err := newScrollID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}
