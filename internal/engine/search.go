package engine

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/dreamware/vindex/internal/transport/vindexpb"
)

// shardQuery is the minimal query DSL this engine understands: a bag of
// terms to match, scored by summed term frequency (a toy BM25 stand-in).
// Richer query types (range, bool, phrase) are not supported.
type shardQuery struct {
	Terms []string `json:"terms"`
}

// SearchShard runs a term-frequency-scored match against this shard's
// segments and in-memory buffer, implementing query.LocalSearcher for
// shard copies hosted on this node.
func (e *Engine) SearchShard(ctx context.Context, req vindexpb.SearchShardRequest) (vindexpb.SearchShardResponse, error) {
	var q shardQuery
	if len(req.QueryJSON) > 0 {
		if err := json.Unmarshal(req.QueryJSON, &q); err != nil {
			return vindexpb.SearchShardResponse{}, err
		}
	}

	e.mu.RLock()
	segments := make([]*Segment, len(e.segments))
	copy(segments, e.segments)
	for _, s := range segments {
		s.acquire()
	}
	buffer := e.buffer
	e.mu.RUnlock()
	defer func() {
		for _, s := range segments {
			s.release()
		}
	}()

	scores := map[string]float64{}
	for _, term := range q.Terms {
		for _, seg := range segments {
			for _, p := range seg.Postings(term) {
				scores[p.docID] += float64(p.freq)
			}
		}
	}
	// The in-memory buffer (docs written since the last flush) isn't
	// analyzed into postings yet; fall back to a substring scan so very
	// recent writes remain searchable before the next flush.
	for id, doc := range buffer {
		if doc.Deleted {
			continue
		}
		for _, term := range q.Terms {
			if containsTerm(string(doc.Source), term) {
				scores[id]++
			}
		}
	}

	hits := make([]vindexpb.ShardHit, 0, len(scores))
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		hits = append(hits, vindexpb.ShardHit{DocID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if req.Size > 0 && len(hits) > req.Size {
		hits = hits[:req.Size]
	}

	return vindexpb.SearchShardResponse{ShardHits: hits, TotalHits: int64(len(scores))}, nil
}

// FetchShard returns the raw source bytes for the requested doc ids,
// implementing query.LocalSearcher's fetch phase.
func (e *Engine) FetchShard(ctx context.Context, req vindexpb.FetchShardRequest) (vindexpb.FetchShardResponse, error) {
	sources := make(map[string][]byte, len(req.DocIDs))
	for _, id := range req.DocIDs {
		if doc, ok := e.Get(id); ok {
			sources[id] = doc.Source
		}
	}
	return vindexpb.FetchShardResponse{Sources: sources}, nil
}

func containsTerm(source, term string) bool {
	if term == "" {
		return false
	}
	for i := 0; i+len(term) <= len(source); i++ {
		if source[i:i+len(term)] == term {
			return true
		}
	}
	return false
}
