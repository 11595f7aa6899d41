// Package document defines the unit of storage and retrieval that flows
// through the engine, replication, and query layers.
package document

import "fmt"

// Doc is a single document as stored by a shard engine. Source is the raw,
// already-validated-against-mapping document body; the engine owns parsing
// it into postings and doc-values, not this package.
type Doc struct {
	ID      string
	Source  []byte
	Routing string

	// Version increases on every successful write to this ID and is
	// returned to the caller for optimistic-concurrency control.
	Version int64

	// SeqNo is the shard-local, monotonically increasing sequence number
	// assigned by the primary at write time. Replicas apply ops in SeqNo
	// order; a gap indicates a missed operation.
	SeqNo int64

	// PrimaryTerm identifies the primary generation that assigned SeqNo,
	// so a stale primary's writes can be distinguished from the current one.
	PrimaryTerm int64

	Deleted bool
}

// Key used by the version-resolution cache and striped id locks.
func (d Doc) Key() string { return d.ID }

func (d Doc) String() string {
	return fmt.Sprintf("Doc{id=%s version=%d seqno=%d deleted=%t}", d.ID, d.Version, d.SeqNo, d.Deleted)
}

// WriteRequest is the caller-supplied intent for an index/delete/update op;
// the engine resolves it against the current Doc version to assign the next
// Version/SeqNo.
type WriteRequest struct {
	ID      string
	Source  []byte
	Routing string

	// IfSeqNo/IfPrimaryTerm implement optimistic concurrency: when both are
	// non-negative the write is rejected with a version conflict unless the
	// current document matches exactly.
	IfSeqNo      int64
	IfPrimaryTerm int64

	Delete bool
}

// HasVersionCheck reports whether the caller asked for optimistic-
// concurrency enforcement on this write.
func (r WriteRequest) HasVersionCheck() bool {
	return r.IfSeqNo >= 0 && r.IfPrimaryTerm >= 0
}
