package engine

import (
	"sort"
	"sync/atomic"

	"github.com/dreamware/vindex/internal/document"
)

// postingsEntry is one term's appearance in one document, just enough for
// the query coordinator's scoring.
type postingsEntry struct {
	docID string
	freq  int
}

// Segment is an immutable, flushed slice of a shard's documents: an
// inverted index from term to postings list, plus the stored documents by
// id. It has no separate doc-values store.
type Segment struct {
	docs      map[string]document.Doc
	postings  map[string][]postingsEntry
	refs      int32 // refcounted so Merge can release superseded segments once readers finish
}

func buildSegment(docs map[string]document.Doc, analyze Analyzer) *Segment {
	seg := &Segment{
		docs:     make(map[string]document.Doc, len(docs)),
		postings: map[string][]postingsEntry{},
		refs:     1,
	}
	for id, doc := range docs {
		seg.docs[id] = doc
		if doc.Deleted || analyze == nil {
			continue
		}
		terms := analyze(string(doc.Source))
		freq := map[string]int{}
		for _, t := range terms {
			freq[t]++
		}
		for t, f := range freq {
			seg.postings[t] = append(seg.postings[t], postingsEntry{docID: id, freq: f})
		}
	}
	return seg
}

func (s *Segment) get(id string) (document.Doc, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

func (s *Segment) docCount() int { return len(s.docs) }

// Postings returns the postings list for term, sorted by descending
// frequency so the query coordinator's per-shard top-K pass can stop early.
func (s *Segment) Postings(term string) []postingsEntry {
	list := s.postings[term]
	sorted := make([]postingsEntry, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].freq > sorted[j].freq })
	return sorted
}

// acquire/release implement the refcounted lifetime Merge relies on: a
// reader calls acquire before scanning a segment snapshot and release when
// done; Merge's release drops the creation reference, and the segment's
// backing maps are only eligible for GC once refs reaches zero.
func (s *Segment) acquire() { atomic.AddInt32(&s.refs, 1) }

func (s *Segment) release() {
	if atomic.AddInt32(&s.refs, -1) == 0 {
		s.docs = nil
		s.postings = nil
	}
}

// mergeSegments combines multiple segments into one, keeping the newest
// version of each document id (later segments in the slice are assumed
// newer, matching flush order) and skipping documents whose last known
// state is a delete tombstone, reclaiming their space.
func mergeSegments(segments []*Segment) *Segment {
	merged := &Segment{
		docs:     map[string]document.Doc{},
		postings: map[string][]postingsEntry{},
		refs:     1,
	}
	for _, seg := range segments {
		for id, doc := range seg.docs {
			existing, ok := merged.docs[id]
			if ok && existing.SeqNo > doc.SeqNo {
				continue
			}
			if doc.Deleted {
				delete(merged.docs, id)
				continue
			}
			merged.docs[id] = doc
		}
		for term, list := range seg.postings {
			merged.postings[term] = append(merged.postings[term], list...)
		}
	}
	return merged
}
