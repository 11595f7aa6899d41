package cluster

import (
	"github.com/google/uuid"

	"github.com/dreamware/vindex/internal/index"
	"github.com/dreamware/vindex/internal/routing"
)

// Block names gate specific operation classes while active.
const (
	BlockNoMaster = "no_master"
)

// NoMasterBlockLevel controls which operations BlockNoMaster forbids.
type NoMasterBlockLevel string

const (
	NoMasterBlockWrite NoMasterBlockLevel = "write"
	NoMasterBlockAll   NoMasterBlockLevel = "all"
)

// State is the full, versioned, immutable cluster state. The only way to
// obtain a new one is through one of the With*/Put*/Remove* methods below,
// each of which returns a new value with Version = old.Version + 1.
type State struct {
	Version uint64
	MasterID uuid.UUID // zero value if no master currently elected

	Nodes map[uuid.UUID]Node

	Indices map[uuid.UUID]index.Metadata
	// aliasIndex speeds up name/alias -> uuid lookups; rebuilt on every
	// mutation rather than maintained incrementally, since index metadata
	// changes are rare relative to document writes.
	aliasIndex map[string]uuid.UUID

	Routing routing.Table

	Blocks map[string]NoMasterBlockLevel
}

// New returns an empty State at version 0, the bootstrap value every node
// starts from before the first raft Apply.
func New() State {
	return State{
		Nodes:      map[uuid.UUID]Node{},
		Indices:    map[uuid.UUID]index.Metadata{},
		aliasIndex: map[string]uuid.UUID{},
		Routing:    routing.NewTable(),
		Blocks:     map[string]NoMasterBlockLevel{},
	}
}

func (s State) clone() State {
	next := State{
		Version:  s.Version,
		MasterID: s.MasterID,
		Nodes:    make(map[uuid.UUID]Node, len(s.Nodes)),
		Indices:  make(map[uuid.UUID]index.Metadata, len(s.Indices)),
		Routing:  s.Routing,
		Blocks:   make(map[string]NoMasterBlockLevel, len(s.Blocks)),
	}
	for id, n := range s.Nodes {
		next.Nodes[id] = n.clone()
	}
	for id, m := range s.Indices {
		next.Indices[id] = m
	}
	for k, v := range s.Blocks {
		next.Blocks[k] = v
	}
	next.reindexAliases()
	return next
}

// RebuildAliasIndex recomputes the name/alias lookup index. Callers that
// construct a State by decoding one outside the With*/Put* methods (gob
// restore from a raft snapshot, most notably) must call this once before
// using IndexByName, since gob silently skips unexported fields.
func (s *State) RebuildAliasIndex() {
	s.reindexAliases()
}

func (s *State) reindexAliases() {
	s.aliasIndex = make(map[string]uuid.UUID, len(s.Indices))
	for id, m := range s.Indices {
		s.aliasIndex[m.Name] = id
		for _, a := range m.Aliases {
			s.aliasIndex[a] = id
		}
	}
}

// WithNode returns a new State with node upserted by ID.
func (s State) WithNode(n Node) State {
	next := s.clone()
	next.Nodes[n.ID] = n
	next.Version++
	return next
}

// WithoutNode returns a new State with the node and all its routed shard
// copies removed, and the master cleared if it was the removed node.
func (s State) WithoutNode(id uuid.UUID) State {
	next := s.clone()
	delete(next.Nodes, id)
	next.Routing = next.Routing.WithoutNode(id)
	if next.MasterID == id {
		next.MasterID = uuid.Nil
	}
	next.Version++
	return next
}

// WithMaster returns a new State recording id as the current leader, and
// clears BlockNoMaster.
func (s State) WithMaster(id uuid.UUID) State {
	next := s.clone()
	next.MasterID = id
	delete(next.Blocks, BlockNoMaster)
	next.Version++
	return next
}

// WithNoMasterBlock returns a new State with BlockNoMaster active at level.
func (s State) WithNoMasterBlock(level NoMasterBlockLevel) State {
	next := s.clone()
	next.Blocks[BlockNoMaster] = level
	next.Version++
	return next
}

// PutIndex returns a new State with the index metadata upserted.
func (s State) PutIndex(m index.Metadata) State {
	next := s.clone()
	next.Indices[m.UUID] = m
	next.aliasIndex[m.Name] = m.UUID
	for _, a := range m.Aliases {
		next.aliasIndex[a] = m.UUID
	}
	next.Version++
	return next
}

// RemoveIndex returns a new State with the index's metadata and aliases
// dropped. Its shard copies are left in the routing table.
func (s State) RemoveIndex(id uuid.UUID) State {
	next := s.clone()
	delete(next.Indices, id)
	next.reindexAliases()
	next.Version++
	return next
}

// IndexByName resolves a name or alias to its Metadata.
func (s State) IndexByName(name string) (index.Metadata, bool) {
	id, ok := s.aliasIndex[name]
	if !ok {
		return index.Metadata{}, false
	}
	m, ok := s.Indices[id]
	return m, ok
}

// WithRouting returns a new State with the routing table replaced wholesale
// (used by the allocation engine after computing a full rebalance plan).
func (s State) WithRouting(t routing.Table) State {
	next := s.clone()
	next.Routing = t
	next.Version++
	return next
}

// Blocked reports whether op is currently forbidden by an active block.
// op is "read" or "write".
func (s State) Blocked(op string) (string, bool) {
	level, ok := s.Blocks[BlockNoMaster]
	if !ok {
		return "", false
	}
	if level == NoMasterBlockAll {
		return BlockNoMaster, true
	}
	if level == NoMasterBlockWrite && op == "write" {
		return BlockNoMaster, true
	}
	return "", false
}

// MasterEligibleNodes returns every node with the master-eligible role,
// the raft voter set.
func (s State) MasterEligibleNodes() []Node {
	var out []Node
	for _, n := range s.Nodes {
		if n.MasterEligible() {
			out = append(out, n)
		}
	}
	return out
}
