package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGet(t *testing.T) {
	c, err := NewWeightedLRU(1024, 16)
	require.NoError(t, err)

	c.Add("a", []byte("hello"))
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestAddEvictsOldestUnderByteBudget(t *testing.T) {
	c, err := NewWeightedLRU(10, 16)
	require.NoError(t, err)

	c.Add("a", make([]byte, 4))
	c.Add("b", make([]byte, 4))
	c.Add("c", make([]byte, 4)) // total would be 12 > budget 10, must evict "a"

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted to stay within budget")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestAddOverwriteDoesNotDoubleCountWeight(t *testing.T) {
	c, err := NewWeightedLRU(10, 16)
	require.NoError(t, err)

	c.Add("a", make([]byte, 4))
	c.Add("a", make([]byte, 4)) // re-add same key must not trip eviction on itself
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	c, err := NewWeightedLRU(1024, 16)
	require.NoError(t, err)

	c.Add("a", []byte("hello"))
	c.Remove("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
