package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New("logs", 3, 1, Mapping{Fields: map[string]FieldType{"message": FieldText}})

	assert.Equal(t, "logs", m.Name)
	assert.Equal(t, int64(1), m.Version)
	assert.Equal(t, 3, m.NumPrimaries)
	assert.Equal(t, 1, m.Settings.NumReplicas)
	require.NotEqual(t, m.UUID.String(), "")
}

func TestWithReplicasBumpsVersionAndCopies(t *testing.T) {
	m := New("logs", 1, 1, Mapping{})
	m2 := m.WithReplicas(2)

	assert.Equal(t, 1, m.Settings.NumReplicas, "original untouched")
	assert.Equal(t, 2, m2.Settings.NumReplicas)
	assert.Equal(t, m.Version+1, m2.Version)
}

func TestWithAliasIsIdempotent(t *testing.T) {
	m := New("logs", 1, 1, Mapping{})
	m = m.WithAlias("current")
	require.Equal(t, []string{"current"}, m.Aliases)
	v := m.Version

	m2 := m.WithAlias("current")
	assert.Equal(t, m.Aliases, m2.Aliases)
	assert.Equal(t, v, m2.Version, "adding a duplicate alias must not bump version")

	m3 := m.WithAlias("archive")
	assert.Equal(t, []string{"current", "archive"}, m3.Aliases)
	assert.Equal(t, v+1, m3.Version)
}

func TestString(t *testing.T) {
	m := New("logs", 2, 1, Mapping{})
	s := m.String()
	assert.Contains(t, s, "logs")
	assert.Contains(t, s, "primaries=2")
}
