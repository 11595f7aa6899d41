// Package vindexpb holds the wire types carried inside the gRPC messages
// internal/transport exchanges between nodes. No .proto toolchain runs in
// this build; these are hand-written Go structs implementing the same
// self-describing, tagged-union framing a generated protobuf message would,
// encoded with encoding/gob through the codec internal/transport registers.
package vindexpb

// Envelope is the single wire message every RPC carries. Kind selects which
// handler on the receiving end processes Payload; RequestID lets a caller
// correlate responses on a multiplexed stream, though with grpc-go's native
// stream multiplexing this is mostly informational/diagnostic.
type Envelope struct {
	Kind       string
	RequestID  uint64
	// ProtocolVersion is the minimum wire version the sender requires the
	// receiver to understand; a unary interceptor on each end enforces it.
	ProtocolVersion uint32
	Compressed      bool
	Payload         []byte
}

// CurrentProtocolVersion is bumped whenever a breaking change is made to any
// Kind's payload encoding.
const CurrentProtocolVersion = 1

// Known Envelope Kind values, one per RPC the transport layer multiplexes.
const (
	KindPing           = "ping"
	KindReplicateWrite = "replicate_write"
	KindGetDoc         = "get_doc"
	KindSearchShard    = "search_shard"
	KindFetchShard     = "fetch_shard"
	KindRecoveryList   = "recovery_list"
	KindRecoveryFile   = "recovery_file"
)

// PingRequest/PingResponse implement discovery's non-raft-voter fault
// detection ping.
type PingRequest struct {
	FromNodeID string
}

type PingResponse struct {
	NodeID        string
	ClusterVersion uint64
	Healthy       bool
}

// ReplicateWriteRequest carries one already-sequenced write from a primary
// to a replica.
type ReplicateWriteRequest struct {
	IndexUUID   string
	Shard       int
	DocID       string
	Source      []byte
	Deleted     bool
	SeqNo       int64
	PrimaryTerm int64
	Version     int64
}

type ReplicateWriteResponse struct {
	AppliedSeqNo int64
}

// GetDocRequest/Response implement the replication coordinator's read path.
type GetDocRequest struct {
	IndexUUID string
	Shard     int
	DocID     string
}

type GetDocResponse struct {
	Found   bool
	Source  []byte
	Version int64
	SeqNo   int64
}

// SearchShardRequest/Response implement the query phase of the coordinator's
// two-phase search against one shard copy.
type SearchShardRequest struct {
	IndexUUID  string
	Shard      int
	QueryJSON  []byte
	Size       int
	TimeoutMS  int64
}

type SearchShardResponse struct {
	ShardHits    []ShardHit
	TotalHits    int64
	TimedOut     bool
}

// ShardHit is one per-shard top-K result carried back during the query phase.
type ShardHit struct {
	DocID      string
	Score      float64
	SortValues []byte
}

// FetchShardRequest/Response implement the fetch phase for surviving hits.
type FetchShardRequest struct {
	IndexUUID string
	Shard     int
	DocIDs    []string
}

type FetchShardResponse struct {
	Sources map[string][]byte
}

// RecoveryListRequest/Response carry a peer recovery's file manifest.
type RecoveryListRequest struct {
	IndexUUID string
	Shard     int
}

type RecoveryFileMeta struct {
	Path     string
	Checksum uint64
	Size     int64
}

type RecoveryListResponse struct {
	Files []RecoveryFileMeta
}

type RecoveryFileRequest struct {
	IndexUUID string
	Shard     int
	Path      string
}

type RecoveryFileResponse struct {
	Data []byte
}
