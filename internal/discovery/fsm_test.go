package discovery

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vindex/internal/cluster"
)

func encodeRaftLog(t *testing.T, op string, payload any) *raft.Log {
	t.Helper()
	data, err := encodeCommand(op, payload)
	require.NoError(t, err)
	return &raft.Log{Data: data}
}

func TestFSMApplyUpdatesStateAndNotifies(t *testing.T) {
	var notified cluster.State
	notifyCount := 0
	fsm := NewFSM(cluster.New(), func(st cluster.State) {
		notified = st
		notifyCount++
	})

	nodeID := uuid.New()
	result := fsm.Apply(encodeRaftLog(t, opAddNode, cluster.Node{ID: nodeID, Addr: "a"}))

	version, ok := result.(uint64)
	require.True(t, ok, "Apply must return the new version")
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, 1, notifyCount)
	assert.Contains(t, notified.Nodes, nodeID)
	assert.Contains(t, fsm.Current().Nodes, nodeID)
}

func TestFSMApplyBadCommandReturnsError(t *testing.T) {
	fsm := NewFSM(cluster.New(), nil)
	result := fsm.Apply(&raft.Log{Data: []byte("not a gob command")})
	_, isErr := result.(error)
	assert.True(t, isErr)
}

func TestFSMSnapshotAndRestore(t *testing.T) {
	nodeID := uuid.New()
	fsm := NewFSM(cluster.New(), nil)
	fsm.Apply(encodeRaftLog(t, opAddNode, cluster.Node{ID: nodeID, Addr: "a"}))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	sink := &fakeSnapshotSink{}
	require.NoError(t, snap.Persist(sink))

	restored := NewFSM(cluster.New(), nil)
	require.NoError(t, restored.Restore(&fakeReadCloser{Reader: bytes.NewReader(sink.buf.Bytes())}))

	assert.Contains(t, restored.Current().Nodes, nodeID)
}

type fakeSnapshotSink struct {
	buf    bytes.Buffer
	closed bool
}

func (s *fakeSnapshotSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *fakeSnapshotSink) Close() error                { s.closed = true; return nil }
func (s *fakeSnapshotSink) ID() string                  { return "test-snapshot" }
func (s *fakeSnapshotSink) Cancel() error               { return nil }

type fakeReadCloser struct {
	*bytes.Reader
}

func (f *fakeReadCloser) Close() error { return nil }

func TestGobRegistersClusterStateCorrectly(t *testing.T) {
	st := cluster.New().WithNode(cluster.Node{ID: uuid.New()})
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(st))

	var decoded cluster.State
	require.NoError(t, gob.NewDecoder(&buf).Decode(&decoded))
	decoded.RebuildAliasIndex()
	assert.Equal(t, st.Version, decoded.Version)
}
