// Package query implements the scatter/gather search coordinator: a
// two-phase query/fetch across a target index's shard copies, per-shard
// timeout handling, global top-K merge, and a query cache keyed by reader
// version and request fingerprint.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/vindex/internal/cache"
	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/index"
	"github.com/dreamware/vindex/internal/routing"
	"github.com/dreamware/vindex/internal/transport"
	"github.com/dreamware/vindex/internal/transport/vindexpb"
	"github.com/dreamware/vindex/internal/vlog"
	"github.com/dreamware/vindex/internal/vmetrics"
	"github.com/dreamware/vindex/internal/vterrors"
)

var log = vlog.Component("query")

// Request is a coordinator-facing search request against one index.
type Request struct {
	Index     string
	Query     json.RawMessage
	Size      int
	Timeout   time.Duration
	ReaderVersion uint64 // bumped on every flush/merge; part of the cache key
}

// Hit is one globally-ranked result after the merge phase.
type Hit struct {
	DocID  string
	Score  float64
	Source []byte
}

// Response is the coordinator's final merged result.
type Response struct {
	Hits          []Hit
	TotalHits     int64
	TimedOut      bool
	ShardFailures vterrors.ShardFailures
}

// LocalSearcher is the subset of engine.Engine the coordinator calls
// directly for shard copies hosted on this node.
type LocalSearcher interface {
	SearchShard(ctx context.Context, req vindexpb.SearchShardRequest) (vindexpb.SearchShardResponse, error)
	FetchShard(ctx context.Context, req vindexpb.FetchShardRequest) (vindexpb.FetchShardResponse, error)
}

// Coordinator runs two-phase search across a cluster.State snapshot.
type Coordinator struct {
	state  func() cluster.State
	local  map[routing.ShardID]LocalSearcher
	client *transport.Client
	cache  *cache.WeightedLRU
}

// New constructs a Coordinator. cacheBudgetBytes bounds the query result
// cache; pass 0 to disable caching.
func New(state func() cluster.State, local map[routing.ShardID]LocalSearcher, client *transport.Client, cacheBudgetBytes int64) (*Coordinator, error) {
	c := &Coordinator{state: state, local: local, client: client}
	if cacheBudgetBytes > 0 {
		wl, err := cache.NewWeightedLRU(cacheBudgetBytes, 10000)
		if err != nil {
			return nil, err
		}
		c.cache = wl
	}
	return c, nil
}

// Search runs the query phase across every started shard copy of req.Index
// (one per shard: the first started copy in routing order, with no
// round-robin and no preference), merges to a global top-K,
// then runs the fetch phase only for the hit shards that survived.
// Deterministic requests (no randomized scoring function, which this
// engine doesn't implement) with a matching (ReaderVersion, fingerprint)
// are served from cache without touching any shard.
func (c *Coordinator) Search(ctx context.Context, req Request) (*Response, error) {
	state := c.state()
	meta, ok := state.IndexByName(req.Index)
	if !ok {
		return nil, &vterrors.ValidationError{Field: "index", Reason: "unknown index " + req.Index}
	}

	cacheKey := c.fingerprint(req)
	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			vmetrics.QueryCacheHits.Inc()
			var resp Response
			if err := json.Unmarshal(cached, &resp); err == nil {
				return &resp, nil
			}
		}
		vmetrics.QueryCacheMisses.Inc()
	}

	queryTimer := vmetrics.NewTimer()
	shardHits, failures, timedOut := c.queryPhase(ctx, state, meta, req)
	queryTimer.ObserveSeconds(vmetrics.QueryPhaseLatency.WithLabelValues("query"))

	merged := mergeTopK(shardHits, req.Size)

	fetchTimer := vmetrics.NewTimer()
	hits := c.fetchPhase(ctx, state, meta, merged)
	fetchTimer.ObserveSeconds(vmetrics.QueryPhaseLatency.WithLabelValues("fetch"))

	resp := &Response{
		Hits:          hits,
		TotalHits:     int64(len(shardHits)),
		TimedOut:      timedOut,
		ShardFailures: failures,
	}

	if c.cache != nil && failures.Empty() && !timedOut {
		if encoded, err := json.Marshal(resp); err == nil {
			c.cache.Add(cacheKey, encoded)
		}
	}
	return resp, nil
}

// fingerprint derives the query cache key from the index name, request
// body, and size, combined with the reader version so a cached entry can
// never outlive the segment generation it was computed against.
func (c *Coordinator) fingerprint(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Index))
	h.Write(req.Query)
	h.Write([]byte{byte(req.Size), byte(req.Size >> 8)})
	version := req.ReaderVersion
	for i := 0; i < 8; i++ {
		h.Write([]byte{byte(version)})
		version >>= 8
	}
	return hex.EncodeToString(h.Sum(nil))
}

type shardHitSet struct {
	shard routing.ShardID
	hits  []vindexpb.ShardHit
}

func (c *Coordinator) queryPhase(ctx context.Context, state cluster.State, meta index.Metadata, req Request) ([]shardHitSet, vterrors.ShardFailures, bool) {
	qctx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		qctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	results := make([]shardHitSet, meta.NumPrimaries)
	var failures vterrors.ShardFailures
	timedOut := false

	g, gctx := errgroup.WithContext(qctx)
	for shard := 0; shard < meta.NumPrimaries; shard++ {
		shard := shard
		g.Go(func() error {
			id := routing.ShardID{Index: meta.UUID, Shard: shard}
			hits, err := c.searchOneShard(gctx, state, id, req)
			if err != nil {
				failures.Add(shard, err)
				return nil // a shard failure degrades the response, doesn't abort the whole search
			}
			results[shard] = shardHitSet{shard: id, hits: hits}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		timedOut = true
	}
	if qctx.Err() != nil {
		timedOut = true
	}
	return results, failures, timedOut
}

func (c *Coordinator) searchOneShard(ctx context.Context, state cluster.State, id routing.ShardID, req Request) ([]vindexpb.ShardHit, error) {
	copies := state.Routing.Started(id)
	if len(copies) == 0 {
		return nil, &vterrors.UnavailableShardsError{Shard: id.Shard, Required: 1, Available: 0}
	}
	target := copies[0] // always the first started copy; no round-robin or preference

	if local, ok := c.local[id]; ok {
		resp, err := local.SearchShard(ctx, vindexpb.SearchShardRequest{
			IndexUUID: id.Index.String(), Shard: id.Shard, QueryJSON: req.Query, Size: req.Size,
		})
		if err != nil {
			return nil, err
		}
		return resp.ShardHits, nil
	}

	node, ok := state.Nodes[target.NodeID]
	if !ok {
		return nil, &vterrors.UnavailableShardsError{Shard: id.Shard, Required: 1, Available: 0}
	}
	payload, err := transport.EncodePayload(vindexpb.SearchShardRequest{
		IndexUUID: id.Index.String(), Shard: id.Shard, QueryJSON: req.Query, Size: req.Size,
	})
	if err != nil {
		return nil, err
	}
	respBytes, err := c.client.Invoke(ctx, node.Addr, vindexpb.KindSearchShard, payload, false)
	if err != nil {
		return nil, err
	}
	var resp vindexpb.SearchShardResponse
	if err := transport.DecodePayload(respBytes, &resp); err != nil {
		return nil, err
	}
	return resp.ShardHits, nil
}

func mergeTopK(shardResults []shardHitSet, size int) []shardHitSet {
	// Global top-K by score, preserving which shard each hit came from so
	// the fetch phase only contacts shards with surviving hits.
	type scored struct {
		shard routing.ShardID
		hit   vindexpb.ShardHit
	}
	var all []scored
	for _, sr := range shardResults {
		for _, h := range sr.hits {
			all = append(all, scored{shard: sr.shard, hit: h})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].hit.Score > all[j].hit.Score })
	if size > 0 && len(all) > size {
		all = all[:size]
	}

	byShardIdx := map[routing.ShardID]int{}
	var out []shardHitSet
	for _, s := range all {
		idx, ok := byShardIdx[s.shard]
		if !ok {
			idx = len(out)
			byShardIdx[s.shard] = idx
			out = append(out, shardHitSet{shard: s.shard})
		}
		out[idx].hits = append(out[idx].hits, s.hit)
	}
	return out
}

func (c *Coordinator) fetchPhase(ctx context.Context, state cluster.State, meta index.Metadata, survivors []shardHitSet) []Hit {
	var all []Hit
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, sv := range survivors {
		sv := sv
		g.Go(func() error {
			ids := make([]string, len(sv.hits))
			for i, h := range sv.hits {
				ids[i] = h.DocID
			}
			sources := c.fetchOneShard(gctx, state, sv.shard, ids)
			mu.Lock()
			for _, h := range sv.hits {
				all = append(all, Hit{DocID: h.DocID, Score: h.Score, Source: sources[h.DocID]})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	return all
}

func (c *Coordinator) fetchOneShard(ctx context.Context, state cluster.State, id routing.ShardID, ids []string) map[string][]byte {
	if local, ok := c.local[id]; ok {
		resp, err := local.FetchShard(ctx, vindexpb.FetchShardRequest{IndexUUID: id.Index.String(), Shard: id.Shard, DocIDs: ids})
		if err != nil {
			return nil
		}
		return resp.Sources
	}
	copies := state.Routing.Started(id)
	if len(copies) == 0 {
		return nil
	}
	node, ok := state.Nodes[copies[0].NodeID]
	if !ok {
		return nil
	}
	payload, err := transport.EncodePayload(vindexpb.FetchShardRequest{IndexUUID: id.Index.String(), Shard: id.Shard, DocIDs: ids})
	if err != nil {
		return nil
	}
	respBytes, err := c.client.Invoke(ctx, node.Addr, vindexpb.KindFetchShard, payload, false)
	if err != nil {
		return nil
	}
	var resp vindexpb.FetchShardResponse
	if err := transport.DecodePayload(respBytes, &resp); err != nil {
		return nil
	}
	return resp.Sources
}
