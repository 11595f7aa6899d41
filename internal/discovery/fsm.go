// Package discovery wraps hashicorp/raft to provide the cluster's
// consensus layer: the raft leader is the cluster "master", and every
// accepted mutation to cluster.State is replicated through the raft log
// before it becomes visible, giving the publish/commit/ack guarantees the
// design asks for without a bespoke gossip protocol.
package discovery

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/vlog"
)

var log = vlog.Component("discovery")

// Mutator derives the next cluster.State from the current one. Proposals
// run through raft.Apply so every master-eligible node computes the same
// next state from the same prior state, in the same log order.
type Mutator func(cluster.State) (cluster.State, error)

// command is the gob-encoded payload carried inside each raft.Log entry.
// Rather than encode arbitrary closures (impossible) or a generic diff
// format, each command names an operation and carries just the operands;
// fsm.Apply re-derives the resulting State by calling the matching
// cluster.State method, keeping the FSM itself free of business logic.
type command struct {
	Op      string
	Payload []byte
}

// FSM adapts cluster.State to raft.FSM. It holds the latest applied state
// behind a mutex (not atomic.Pointer, because Apply and Snapshot both need
// a consistent read-then-write) and passes every new version to the onApply
// callback, so the node-level wiring can react to it without the FSM
// importing that package.
type FSM struct {
	mu    sync.RWMutex
	state cluster.State

	onApply func(cluster.State)
}

// NewFSM returns an FSM seeded with the last state recovered from local
// storage (or cluster.New() on first start).
func NewFSM(initial cluster.State, onApply func(cluster.State)) *FSM {
	return &FSM{state: initial, onApply: onApply}
}

// Current returns a snapshot of the FSM's currently applied state.
func (f *FSM) Current() cluster.State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Apply is invoked by raft, in log order, once a command entry commits to a
// quorum. It decodes the command, applies the corresponding cluster.State
// transition, and returns the new Version (or an error) as the raft.Apply
// future's result.
func (f *FSM) Apply(l *raft.Log) interface{} {
	var cmd command
	if err := gob.NewDecoder(bytes.NewReader(l.Data)).Decode(&cmd); err != nil {
		return fmt.Errorf("discovery: decode command: %w", err)
	}

	f.mu.Lock()
	next, err := applyCommand(f.state, cmd)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = next
	f.mu.Unlock()

	if f.onApply != nil {
		f.onApply(next)
	}
	return next.Version
}

// Snapshot returns a point-in-time copy for raft's own log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &fsmSnapshot{state: f.state}, nil
}

// Restore replaces the FSM's state wholesale from a raft snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var st cluster.State
	if err := gob.NewDecoder(rc).Decode(&st); err != nil {
		return fmt.Errorf("discovery: restore snapshot: %w", err)
	}
	st.RebuildAliasIndex()
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
	if f.onApply != nil {
		f.onApply(st)
	}
	return nil
}

type fsmSnapshot struct {
	state cluster.State
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
			return err
		}
		if _, err := sink.Write(buf.Bytes()); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
