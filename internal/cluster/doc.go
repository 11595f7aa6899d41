// Package cluster holds the versioned, immutable cluster state every node
// applies in order: membership, index metadata, the routing table, and any
// active blocks. It does not run consensus itself — see internal/discovery
// for the raft-backed publisher that produces new State versions — it only
// defines the value being agreed on and the copy-on-write operations for
// deriving the next version from the last.
//
// # State
//
// A State is immutable once constructed; every mutation (WithNode, PutIndex,
// WithRouting, ...) returns a new State with Version incremented. On
// master-eligible nodes the latest applied State lives in the raft FSM,
// which guards it with a sync.RWMutex; other nodes read the copy saved by
// Store.
//
// # Blocks
//
// A State can carry zero or more Blocks. WithNoMasterBlock sets the
// "no_master" block at level "write" or "all", WithMaster clears it, and
// State.Blocked reports whether an operation is forbidden. Nothing in this
// module proposes the block when a node loses quorum, and the replication
// and query coordinators do not call Blocked before routing a request.
package cluster
