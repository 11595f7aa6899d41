// Package routing tracks which node holds which copy of which shard, and in
// what state. cluster.State holds a Table in its Routing field; the allocation engine
// mutates it through proposed cluster-state updates, never in place.
package routing

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"
)

// ShardID identifies one shard of one index.
type ShardID struct {
	Index uuid.UUID
	Shard int
}

func (s ShardID) String() string { return fmt.Sprintf("%s/%d", s.Index, s.Shard) }

// CopyState is the lifecycle state of one shard copy on one node.
type CopyState int

const (
	Unassigned CopyState = iota
	Initializing
	Started
	Relocating
)

func (s CopyState) String() string {
	switch s {
	case Unassigned:
		return "UNASSIGNED"
	case Initializing:
		return "INITIALIZING"
	case Started:
		return "STARTED"
	case Relocating:
		return "RELOCATING"
	default:
		return "UNKNOWN"
	}
}

// ShardCopy is one replica (primary or not) of a shard, pinned to a node.
type ShardCopy struct {
	ShardID     ShardID
	NodeID      uuid.UUID
	Primary     bool
	State       CopyState
	// RelocatingTo is set when State == Relocating.
	RelocatingTo uuid.UUID
}

// Table is an immutable snapshot of every shard copy in the cluster, keyed
// by ShardID with each shard's copies stored as a slice (primary first by
// convention, not by invariant).
type Table struct {
	copies map[ShardID][]ShardCopy
}

// NewTable returns an empty routing table.
func NewTable() Table {
	return Table{copies: map[ShardID][]ShardCopy{}}
}

// GobEncode/GobDecode let Table cross the raft log and the bbolt cluster
// state store despite its backing map being unexported.
func (t Table) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t.copies); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Table) GobDecode(data []byte) error {
	var copies map[ShardID][]ShardCopy
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&copies); err != nil {
		return err
	}
	t.copies = copies
	return nil
}

// Copies returns the shard copies for id, or nil if none are routed yet.
func (t Table) Copies(id ShardID) []ShardCopy {
	return t.copies[id]
}

// Primary returns the started primary copy for id, if any.
func (t Table) Primary(id ShardID) (ShardCopy, bool) {
	for _, c := range t.copies[id] {
		if c.Primary && c.State == Started {
			return c, true
		}
	}
	return ShardCopy{}, false
}

// Started returns every started copy (primary and replica) for id.
func (t Table) Started(id ShardID) []ShardCopy {
	var out []ShardCopy
	for _, c := range t.copies[id] {
		if c.State == Started {
			out = append(out, c)
		}
	}
	return out
}

// WithCopy returns a new Table with copy upserted (matched by ShardID+NodeID),
// preserving copy-on-write semantics for cluster.State.
func (t Table) WithCopy(copy ShardCopy) Table {
	next := t.clone()
	list := next.copies[copy.ShardID]
	replaced := false
	for i, c := range list {
		if c.NodeID == copy.NodeID {
			list[i] = copy
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, copy)
	}
	next.copies[copy.ShardID] = list
	return next
}

// WithoutNode returns a new Table with every copy owned by nodeID removed,
// used when a node is declared failed/removed.
func (t Table) WithoutNode(nodeID uuid.UUID) Table {
	next := NewTable()
	for id, list := range t.copies {
		var kept []ShardCopy
		for _, c := range list {
			if c.NodeID != nodeID {
				kept = append(kept, c)
			}
		}
		if kept != nil {
			next.copies[id] = kept
		}
	}
	return next
}

// ShardIDs returns every distinct shard id currently tracked, order unspecified.
func (t Table) ShardIDs() []ShardID {
	out := make([]ShardID, 0, len(t.copies))
	for id := range t.copies {
		out = append(out, id)
	}
	return out
}

func (t Table) clone() Table {
	next := NewTable()
	for id, list := range t.copies {
		cp := make([]ShardCopy, len(list))
		copy(cp, list)
		next.copies[id] = cp
	}
	return next
}
