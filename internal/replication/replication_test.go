package replication

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/document"
	"github.com/dreamware/vindex/internal/routing"
)

type fakeEngine struct {
	docs   map[string]document.Doc
	failOn string
}

func newFakeEngine() *fakeEngine { return &fakeEngine{docs: map[string]document.Doc{}} }

func (f *fakeEngine) Write(ctx context.Context, req document.WriteRequest) (document.Doc, error) {
	if f.failOn != "" && req.ID == f.failOn {
		return document.Doc{}, errors.New("simulated write failure")
	}
	doc := document.Doc{ID: req.ID, Source: req.Source, Deleted: req.Delete, Version: 1}
	f.docs[req.ID] = doc
	return doc, nil
}

func (f *fakeEngine) Get(id string) (document.Doc, bool) {
	d, ok := f.docs[id]
	return d, ok && !d.Deleted
}

func singleCopyState(shardID routing.ShardID, nodeID uuid.UUID) cluster.State {
	return cluster.New().
		WithNode(cluster.Node{ID: nodeID, Addr: "127.0.0.1:1"}).
		WithRouting(routing.NewTable().WithCopy(routing.ShardCopy{ShardID: shardID, NodeID: nodeID, Primary: true, State: routing.Started}))
}

func TestWriteConsistencyOneReturnsImmediately(t *testing.T) {
	idx := uuid.New()
	shardID := routing.ShardID{Index: idx, Shard: 0}
	nodeID := uuid.New()
	eng := newFakeEngine()

	state := singleCopyState(shardID, nodeID)
	c := New(func() cluster.State { return state }, map[routing.ShardID]LocalEngine{shardID: eng}, nil)

	doc, err := c.Write(context.Background(), shardID, document.WriteRequest{ID: "1", Source: []byte("x")}, One)
	require.NoError(t, err)
	assert.Equal(t, "1", doc.ID)
}

// With consistency One, a write needs only the primary's ack; the other
// started copy still goes through the replica fan-out and the write succeeds.
func TestWriteConsistencyOneSucceedsWithStartedReplica(t *testing.T) {
	idx := uuid.New()
	shardID := routing.ShardID{Index: idx, Shard: 0}
	primaryNode, replicaNode := uuid.New(), uuid.New()
	primaryEng := newFakeEngine()

	table := routing.NewTable().
		WithCopy(routing.ShardCopy{ShardID: shardID, NodeID: primaryNode, Primary: true, State: routing.Started}).
		WithCopy(routing.ShardCopy{ShardID: shardID, NodeID: replicaNode, Primary: false, State: routing.Started})
	state := cluster.New().
		WithNode(cluster.Node{ID: primaryNode, Addr: "127.0.0.1:1"}).
		WithNode(cluster.Node{ID: replicaNode, Addr: "127.0.0.1:2"}).
		WithRouting(table)

	c := New(func() cluster.State { return state }, map[routing.ShardID]LocalEngine{shardID: primaryEng}, nil)

	doc, err := c.Write(context.Background(), shardID, document.WriteRequest{ID: "1", Source: []byte("x")}, One)
	require.NoError(t, err)
	assert.Equal(t, "1", doc.ID)
}

func TestGetPrefersLocalCopy(t *testing.T) {
	idx := uuid.New()
	shardID := routing.ShardID{Index: idx, Shard: 0}
	nodeID := uuid.New()
	eng := newFakeEngine()
	eng.docs["1"] = document.Doc{ID: "1", Source: []byte("local")}

	state := singleCopyState(shardID, nodeID)
	c := New(func() cluster.State { return state }, map[routing.ShardID]LocalEngine{shardID: eng}, nil)

	doc, err := c.Get(context.Background(), shardID, "1")
	require.NoError(t, err)
	assert.Equal(t, "local", string(doc.Source))
}

func TestGetReturnsUnavailableWhenNoStartedCopies(t *testing.T) {
	idx := uuid.New()
	shardID := routing.ShardID{Index: idx, Shard: 0}
	state := cluster.New()
	c := New(func() cluster.State { return state }, map[routing.ShardID]LocalEngine{}, nil)

	_, err := c.Get(context.Background(), shardID, "1")
	require.Error(t, err)
}

func TestWriteReturnsUnavailableWhenNoPrimary(t *testing.T) {
	idx := uuid.New()
	shardID := routing.ShardID{Index: idx, Shard: 0}
	state := cluster.New()
	c := New(func() cluster.State { return state }, map[routing.ShardID]LocalEngine{}, nil)

	_, err := c.Write(context.Background(), shardID, document.WriteRequest{ID: "1"}, One)
	require.Error(t, err)
}
