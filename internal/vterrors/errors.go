// Package vterrors defines the error taxonomy shared across vindex's
// cluster, engine, replication, and query packages, replacing one-off
// fmt.Errorf call sites with typed errors the coordinator and operator
// surface can branch on (is this retryable? does it map to a 409 or a 503?).
package vterrors

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed request: bad mapping, unknown field,
// document too large. Never retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// VersionConflict reports an optimistic-concurrency failure: the caller's
// expected sequence number/primary term didn't match the document's current one.
type VersionConflict struct {
	DocID           string
	Expected, Actual int64
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("version conflict on %q: expected %d, actual %d", e.DocID, e.Expected, e.Actual)
}

// ClusterBlock reports that the cluster state currently forbids an operation
// (e.g. no master elected and the write block is active).
type ClusterBlock struct {
	Block  string
	Reason string
}

func (e *ClusterBlock) Error() string {
	return fmt.Sprintf("cluster block %q: %s", e.Block, e.Reason)
}

// UnavailableShardsError reports that fewer active shard copies were
// reachable than the requested consistency level demands.
type UnavailableShardsError struct {
	Shard     int
	Required  int
	Available int
}

func (e *UnavailableShardsError) Error() string {
	return fmt.Sprintf("shard %d: need %d active copies, have %d", e.Shard, e.Required, e.Available)
}

// Timeout reports that an operation exceeded its deadline waiting on peers.
type Timeout struct {
	Op string
}

func (e *Timeout) Error() string { return fmt.Sprintf("%s: timed out", e.Op) }

// CircuitBreakingError reports a breaker category refusing a reservation.
type CircuitBreakingError struct {
	Category       string
	RequestedBytes int64
	LimitBytes     int64
}

func (e *CircuitBreakingError) Error() string {
	return fmt.Sprintf("circuit_breaking_exception: %q would use %d bytes, limit is %d",
		e.Category, e.RequestedBytes, e.LimitBytes)
}

// RejectedExecution reports a bounded worker pool refusing a task because
// its queue is full.
type RejectedExecution struct {
	Pool string
}

func (e *RejectedExecution) Error() string {
	return fmt.Sprintf("rejected execution: pool %q queue full", e.Pool)
}

// ShardFailure reports a per-shard engine or translog fault (disk I/O,
// corruption detected on recovery, bbolt commit failure).
type ShardFailure struct {
	Shard int
	Cause error
}

func (e *ShardFailure) Error() string {
	return fmt.Sprintf("shard %d failure: %v", e.Shard, e.Cause)
}

func (e *ShardFailure) Unwrap() error { return e.Cause }

// TransportError reports a failure to reach or decode from a peer over the
// gRPC transport.
type TransportError struct {
	Peer  string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: peer %q: %v", e.Peer, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Retryable reports whether a caller should retry the operation that
// produced err, as opposed to surfacing it to the end user. Timeouts,
// transport errors, breaker trips, and rejected executions are retryable;
// validation failures and version conflicts never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		to  *Timeout
		te  *TransportError
		ce  *CircuitBreakingError
		re  *RejectedExecution
		us  *UnavailableShardsError
	)
	switch {
	case errors.As(err, &to), errors.As(err, &te), errors.As(err, &ce),
		errors.As(err, &re), errors.As(err, &us):
		return true
	default:
		return false
	}
}

// ShardFailures aggregates per-shard errors from a scatter-gather operation
// (e.g. a search that tolerates partial shard failures) so callers can
// report which shards failed without losing the rest of the response.
type ShardFailures struct {
	Failures []ShardFailure
}

func (s *ShardFailures) Add(shard int, cause error) {
	s.Failures = append(s.Failures, ShardFailure{Shard: shard, Cause: cause})
}

func (s *ShardFailures) Empty() bool { return len(s.Failures) == 0 }

func (s *ShardFailures) Error() string {
	return fmt.Sprintf("%d shard(s) failed: %v", len(s.Failures), s.Failures[0])
}
