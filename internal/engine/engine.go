// Package engine implements the per-shard inverted-index engine: the write
// path (id-locked version resolution, seqno assignment, translog append,
// in-memory buffer), the read path (get/search), and the size-tiered merge
// policy that turns flushed buffers into immutable segments.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dreamware/vindex/internal/document"
	"github.com/dreamware/vindex/internal/translog"
	"github.com/dreamware/vindex/internal/vlog"
	"github.com/dreamware/vindex/internal/vmetrics"
	"github.com/dreamware/vindex/internal/vterrors"
)

var log = vlog.Component("engine")

// lockStripes is the fixed size of the per-id write-lock array. Keys hash
// (FNV-1a, the same hash family the teacher uses for shard routing) into
// one of these stripes so concurrent writes to different ids don't
// serialize, while writes to the same id always do.
const lockStripes = 256

// Durability selects when a write is acknowledged to the caller.
type Durability int

const (
	// DurabilityRequest fsyncs the translog before acknowledging.
	DurabilityRequest Durability = iota
	// DurabilityAsync acknowledges immediately; a ticker goroutine fsyncs.
	DurabilityAsync
)

// Analyzer tokenizes text field values into terms; injected per the
// design's non-goal of owning analyzer internals.
type Analyzer func(text string) []string

// Options configures one shard Engine.
type Options struct {
	ShardLabel string // used only for metrics/log tags, e.g. "idx-uuid/3"
	Durability Durability
	Analyzer   Analyzer
}

// versionEntry is the cached current version/seqno for one document id,
// avoiding a full postings scan to resolve optimistic-concurrency checks
// and to assign the next version on every write.
type versionEntry struct {
	version     int64
	seqNo       int64
	primaryTerm int64
	deleted     bool
}

// Engine is one shard's write and read path.
type Engine struct {
	opts Options

	locks [lockStripes]sync.Mutex

	mu       sync.RWMutex
	buffer   map[string]document.Doc // unflushed writes, newest per id
	segments []*Segment

	versions *lru.Cache[string, versionEntry]

	wal *translog.Translog

	currentPrimaryTerm int64
	nextSeqNo          int64
}

// New constructs an Engine backed by wal, replaying no history itself —
// callers recover a shard by replaying the translog into a fresh Engine
// via Apply before serving traffic.
func New(opts Options, wal *translog.Translog, primaryTerm int64) (*Engine, error) {
	versions, err := lru.New[string, versionEntry](65536)
	if err != nil {
		return nil, fmt.Errorf("engine: create version cache: %w", err)
	}
	return &Engine{
		opts:               opts,
		buffer:             map[string]document.Doc{},
		versions:           versions,
		wal:                wal,
		currentPrimaryTerm: primaryTerm,
	}, nil
}

func stripeFor(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32()) % lockStripes
}

// Write indexes, updates, or deletes a single document, assigning the next
// SeqNo under the id's striped lock, resolving optimistic-concurrency
// checks against the version cache, appending to the translog, and only
// then making the write visible in the in-memory buffer.
func (e *Engine) Write(ctx context.Context, req document.WriteRequest) (document.Doc, error) {
	stripe := stripeFor(req.ID)
	e.locks[stripe].Lock()
	defer e.locks[stripe].Unlock()

	current, hasCurrent := e.versions.Get(req.ID)

	if req.HasVersionCheck() {
		if !hasCurrent && req.IfSeqNo != -1 {
			return document.Doc{}, &vterrors.VersionConflict{DocID: req.ID, Expected: req.IfSeqNo, Actual: -1}
		}
		if hasCurrent && (current.seqNo != req.IfSeqNo || current.primaryTerm != req.IfPrimaryTerm) {
			return document.Doc{}, &vterrors.VersionConflict{DocID: req.ID, Expected: req.IfSeqNo, Actual: current.seqNo}
		}
	}

	nextVersion := int64(1)
	if hasCurrent {
		nextVersion = current.version + 1
	}

	e.mu.Lock()
	seqNo := e.nextSeqNo
	e.nextSeqNo++
	e.mu.Unlock()

	doc := document.Doc{
		ID:          req.ID,
		Source:      req.Source,
		Routing:     req.Routing,
		Version:     nextVersion,
		SeqNo:       seqNo,
		PrimaryTerm: e.currentPrimaryTerm,
		Deleted:     req.Delete,
	}

	op := translog.Op{SeqNo: seqNo, PrimaryTerm: e.currentPrimaryTerm, Doc: doc}
	if err := e.wal.Append(op, e.opts.Durability == DurabilityRequest); err != nil {
		return document.Doc{}, &vterrors.ShardFailure{Cause: err}
	}

	e.mu.Lock()
	e.buffer[req.ID] = doc
	e.mu.Unlock()

	e.versions.Add(req.ID, versionEntry{version: nextVersion, seqNo: seqNo, primaryTerm: e.currentPrimaryTerm, deleted: req.Delete})

	op2 := "index"
	if req.Delete {
		op2 = "delete"
	}
	vmetrics.EngineOpsTotal.WithLabelValues(op2).Inc()

	return doc, nil
}

// Get returns the current value for id, checking the in-memory buffer
// first (most recent writes) then searching segments newest-first.
func (e *Engine) Get(id string) (document.Doc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if doc, ok := e.buffer[id]; ok {
		return doc, !doc.Deleted
	}
	for i := len(e.segments) - 1; i >= 0; i-- {
		if doc, ok := e.segments[i].get(id); ok {
			return doc, !doc.Deleted
		}
	}
	return document.Doc{}, false
}

// Apply replays a translog op during recovery without re-running version
// resolution (the op already carries its resolved seqno/version).
func (e *Engine) Apply(op translog.Op) {
	e.mu.Lock()
	e.buffer[op.Doc.ID] = op.Doc
	if op.SeqNo >= e.nextSeqNo {
		e.nextSeqNo = op.SeqNo + 1
	}
	e.mu.Unlock()
	e.versions.Add(op.Doc.ID, versionEntry{
		version: op.Doc.Version, seqNo: op.SeqNo, primaryTerm: op.PrimaryTerm, deleted: op.Doc.Deleted,
	})
}

// Flush builds a new immutable Segment from the current buffer, clears the
// buffer, and rolls the translog to a new generation. Safe to call
// concurrently with Write (buffer swap happens under mu).
func (e *Engine) Flush(ctx context.Context) error {
	timer := vmetrics.NewTimer()
	defer timer.ObserveSeconds(vmetrics.EngineFlushDuration)

	e.mu.Lock()
	if len(e.buffer) == 0 {
		e.mu.Unlock()
		return nil
	}
	docs := e.buffer
	e.buffer = map[string]document.Doc{}
	e.mu.Unlock()

	seg := buildSegment(docs, e.opts.Analyzer)

	e.mu.Lock()
	e.segments = append(e.segments, seg)
	e.mu.Unlock()

	if err := e.wal.Roll(); err != nil {
		return &vterrors.ShardFailure{Cause: fmt.Errorf("roll translog: %w", err)}
	}
	log.Debug().Str("shard", e.opts.ShardLabel).Int("docs", len(docs)).Msg("flushed segment")
	return nil
}

// Refresh makes recently flushed segments visible to search without
// forcing an fsync; in this engine segments are visible as soon as Flush
// appends them, so Refresh is a no-op kept for interface parity with the
// documented refresh operation (e.g. future near-real-time buffering).
func (e *Engine) Refresh(ctx context.Context) error { return nil }

// StartAsyncDurability runs a ticker that fsyncs the translog periodically,
// used when Options.Durability == DurabilityAsync. Blocks until ctx is done.
func (e *Engine) StartAsyncDurability(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.wal.Sync(); err != nil {
				log.Error().Err(err).Str("shard", e.opts.ShardLabel).Msg("async translog sync failed")
			}
		}
	}
}

// MergePolicy decides which segments should be merged together, using a
// size-tiered strategy: group segments of similar doc count and merge a
// group once it has enough members.
type MergePolicy struct {
	FloorDocs   int // minimum size tier
	MaxMergeAt  int // max segments merged in one pass
}

// Plan returns the segments Engine.Merge should combine, or nil if no
// merge is currently warranted.
func (p MergePolicy) Plan(segments []*Segment) []*Segment {
	tiers := map[int][]*Segment{}
	for _, s := range segments {
		tier := tierOf(s.docCount(), p.FloorDocs)
		tiers[tier] = append(tiers[tier], s)
	}
	for _, group := range tiers {
		if len(group) >= p.MaxMergeAt {
			return group[:p.MaxMergeAt]
		}
	}
	return nil
}

func tierOf(docCount, floor int) int {
	if floor < 1 {
		floor = 1
	}
	tier := 0
	for size := floor; size < docCount; size *= 2 {
		tier++
	}
	return tier
}

// Merge combines the given segments into one new segment, refcounting the
// originals so in-flight readers can finish before the old segments'
// resources are released.
func (e *Engine) Merge(ctx context.Context, policy MergePolicy) error {
	e.mu.RLock()
	plan := policy.Plan(e.segments)
	e.mu.RUnlock()
	if plan == nil {
		return nil
	}

	merged := mergeSegments(plan)

	e.mu.Lock()
	remaining := e.segments[:0:0]
	planSet := map[*Segment]bool{}
	for _, s := range plan {
		planSet[s] = true
	}
	for _, s := range e.segments {
		if !planSet[s] {
			remaining = append(remaining, s)
		}
	}
	e.segments = append(remaining, merged)
	e.mu.Unlock()

	for _, s := range plan {
		s.release()
	}
	return nil
}
