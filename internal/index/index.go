// Package index holds the metadata describing one logical index: its
// mapping, settings, aliases, and immutable shard count.
package index

import (
	"fmt"

	"github.com/google/uuid"
)

// Settings are the mutable, per-index tunables. NumPrimaries is fixed at
// creation; NumReplicas may be changed later and drives the allocation
// engine's target replica count per shard.
type Settings struct {
	NumPrimaries int
	NumReplicas  int
}

// Mapping is a minimal field-type map; the analyzer that tokenizes text
// fields is injected at the engine layer per spec, not described here.
type Mapping struct {
	Fields map[string]FieldType
}

// FieldType names how the engine should index a field's values.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldKeyword FieldType = "keyword"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBool    FieldType = "bool"
)

// Metadata is the immutable-identity, mutable-settings description of an
// index held inside cluster.State.
type Metadata struct {
	Name    string
	UUID    uuid.UUID
	Version int64

	NumPrimaries int // fixed for the life of the index
	Settings     Settings
	Mapping      Mapping
	Aliases      []string
}

// New creates Metadata for a brand-new index with a freshly generated UUID.
func New(name string, numPrimaries, numReplicas int, mapping Mapping) Metadata {
	return Metadata{
		Name:         name,
		UUID:         uuid.New(),
		Version:      1,
		NumPrimaries: numPrimaries,
		Settings:     Settings{NumPrimaries: numPrimaries, NumReplicas: numReplicas},
		Mapping:      mapping,
	}
}

// WithReplicas returns a copy of m with NumReplicas updated and Version
// bumped, following the copy-on-write convention cluster.State uses for all
// nested values.
func (m Metadata) WithReplicas(n int) Metadata {
	m.Settings.NumReplicas = n
	m.Version++
	return m
}

// WithAlias returns a copy of m with alias appended if not already present.
func (m Metadata) WithAlias(alias string) Metadata {
	for _, a := range m.Aliases {
		if a == alias {
			return m
		}
	}
	next := make([]string, len(m.Aliases), len(m.Aliases)+1)
	copy(next, m.Aliases)
	m.Aliases = append(next, alias)
	m.Version++
	return m
}

func (m Metadata) String() string {
	return fmt.Sprintf("index{name=%s uuid=%s primaries=%d replicas=%d}",
		m.Name, m.UUID, m.NumPrimaries, m.Settings.NumReplicas)
}
