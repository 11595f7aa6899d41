package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vindex/internal/document"
	"github.com/dreamware/vindex/internal/translog"
	"github.com/dreamware/vindex/internal/vterrors"
)

func whitespaceAnalyzer(text string) []string {
	return strings.Fields(text)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	wal, err := translog.Open(t.TempDir(), "test-shard", 0)
	require.NoError(t, err)
	t.Cleanup(func() { wal.Close() })

	e, err := New(Options{ShardLabel: "test-shard", Durability: DurabilityRequest, Analyzer: whitespaceAnalyzer}, wal, 1)
	require.NoError(t, err)
	return e
}

func TestWriteThenGet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	doc, err := e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("hello world"), IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, int64(0), doc.SeqNo)

	got, ok := e.Get("1")
	require.True(t, ok)
	assert.Equal(t, "hello world", string(got.Source))
}

func TestWriteVersionIncrementsOnUpdate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("v1"), IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)

	doc, err := e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("v2"), IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
}

func TestWriteVersionConflict(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("v1"), IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)

	_, err = e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("v2"), IfSeqNo: 999, IfPrimaryTerm: 1})
	require.Error(t, err)
	var vc *vterrors.VersionConflict
	require.ErrorAs(t, err, &vc)
}

func TestDeleteMarksDocNotFound(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("v1"), IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)

	_, err = e.Write(ctx, document.WriteRequest{ID: "1", Delete: true, IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)

	_, ok := e.Get("1")
	assert.False(t, ok)
}

func TestFlushMovesBufferToSegment(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("hello world"), IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)

	require.NoError(t, e.Flush(ctx))
	assert.Empty(t, e.buffer)
	require.Len(t, e.segments, 1)

	doc, ok := e.Get("1")
	require.True(t, ok)
	assert.Equal(t, "hello world", string(doc.Source))
}

func TestApplyReplaysWithoutVersionCheck(t *testing.T) {
	e := newTestEngine(t)

	e.Apply(translog.Op{SeqNo: 5, PrimaryTerm: 1, Doc: document.Doc{ID: "x", Source: []byte("z"), Version: 3, SeqNo: 5}})

	doc, ok := e.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(3), doc.Version)
	assert.Equal(t, int64(6), e.nextSeqNo, "nextSeqNo must advance past replayed seqno")
}

func TestMergePolicyPlan(t *testing.T) {
	policy := MergePolicy{FloorDocs: 10, MaxMergeAt: 2}

	small1 := &Segment{docs: make(map[string]document.Doc, 5)}
	small2 := &Segment{docs: make(map[string]document.Doc, 5)}
	for i := 0; i < 5; i++ {
		small1.docs[string(rune('a'+i))] = document.Doc{}
		small2.docs[string(rune('A'+i))] = document.Doc{}
	}

	plan := policy.Plan([]*Segment{small1, small2})
	require.Len(t, plan, 2)
}

func TestMergeCombinesSegmentsKeepingNewest(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("first"), IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)
	require.NoError(t, e.Flush(ctx))

	_, err = e.Write(ctx, document.WriteRequest{ID: "1", Source: []byte("second"), IfSeqNo: -1, IfPrimaryTerm: -1})
	require.NoError(t, err)
	require.NoError(t, e.Flush(ctx))

	require.Len(t, e.segments, 2)
	require.NoError(t, e.Merge(ctx, MergePolicy{FloorDocs: 0, MaxMergeAt: 2}))
	require.Len(t, e.segments, 1)

	doc, ok := e.Get("1")
	require.True(t, ok)
	assert.Equal(t, "second", string(doc.Source), "merge must keep the higher-seqno copy")
}
