// Package replication implements the write and read coordination between a
// shard's primary and its replicas: forward-to-primary, concurrent fan-out
// of an already-sequenced write, and consistency-level quorum counting.
package replication

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/document"
	"github.com/dreamware/vindex/internal/routing"
	"github.com/dreamware/vindex/internal/transport"
	"github.com/dreamware/vindex/internal/transport/vindexpb"
	"github.com/dreamware/vindex/internal/vlog"
	"github.com/dreamware/vindex/internal/vmetrics"
	"github.com/dreamware/vindex/internal/vterrors"
)

var log = vlog.Component("replication")

// Consistency is the number of shard copies a write must be acknowledged by
// before the coordinator replies to the caller.
type Consistency int

const (
	One Consistency = iota
	Quorum
	All
)

func required(level Consistency, total int) int {
	switch level {
	case One:
		return 1
	case All:
		return total
	default: // Quorum
		return total/2 + 1
	}
}

// LocalEngine is the subset of engine.Engine the coordinator drives
// directly when this node holds the primary or a replica copy.
type LocalEngine interface {
	Write(ctx context.Context, req document.WriteRequest) (document.Doc, error)
	Get(id string) (document.Doc, bool)
}

// Coordinator routes writes to the primary and fans writes out to started
// replicas, and serves reads from any started copy per a preference.
type Coordinator struct {
	state  func() cluster.State
	local  map[routing.ShardID]LocalEngine // shard copies hosted on this node
	client *transport.Client
}

// New constructs a Coordinator. state returns the current cluster.State on
// every call; local lists shard copies
// this node hosts directly, avoiding a network hop for local writes/reads.
func New(state func() cluster.State, local map[routing.ShardID]LocalEngine, client *transport.Client) *Coordinator {
	return &Coordinator{state: state, local: local, client: client}
}

// Write resolves the primary for id's shard, applies the write there
// (locally or by forwarding), then fans the resulting seqno+version out to
// started replicas concurrently, waiting for `consistency` acks.
func (c *Coordinator) Write(ctx context.Context, shardID routing.ShardID, req document.WriteRequest, consistency Consistency) (document.Doc, error) {
	state := c.state()
	primary, ok := state.Routing.Primary(shardID)
	if !ok {
		return document.Doc{}, &vterrors.UnavailableShardsError{Shard: shardID.Shard, Required: 1, Available: 0}
	}

	doc, err := c.writeOnCopy(ctx, state, primary, req)
	if err != nil {
		return document.Doc{}, err
	}

	started := state.Routing.Started(shardID)
	need := required(consistency, len(started))

	timer := vmetrics.NewTimer()
	g, gctx := errgroup.WithContext(ctx)
	acked := make(chan struct{}, len(started))
	for _, copy := range started {
		if copy.NodeID == primary.NodeID {
			continue
		}
		copy := copy
		g.Go(func() error {
			if err := c.replicateTo(gctx, state, copy, doc); err != nil {
				vmetrics.ReplicationFailuresTotal.Inc()
				log.Warn().Err(err).Str("shard", shardID.String()).Str("node", copy.NodeID.String()).Msg("replica write failed")
				return nil // a replica failure doesn't fail the whole write; it affects quorum counting below
			}
			acked <- struct{}{}
			return nil
		})
	}
	_ = g.Wait()
	close(acked)

	ackedCount := 1 // primary counts as acked
	for range acked {
		ackedCount++
	}
	timer.ObserveSeconds(vmetrics.ReplicationAckLatency.WithLabelValues(consistencyLabel(consistency)))

	if ackedCount < need {
		return doc, &vterrors.UnavailableShardsError{Shard: shardID.Shard, Required: need, Available: ackedCount}
	}
	return doc, nil
}

func consistencyLabel(c Consistency) string {
	switch c {
	case One:
		return "one"
	case All:
		return "all"
	default:
		return "quorum"
	}
}

func (c *Coordinator) writeOnCopy(ctx context.Context, state cluster.State, copy routing.ShardCopy, req document.WriteRequest) (document.Doc, error) {
	if eng, ok := c.local[copy.ShardID]; ok {
		return eng.Write(ctx, req)
	}
	node, ok := state.Nodes[copy.NodeID]
	if !ok {
		return document.Doc{}, &vterrors.UnavailableShardsError{Shard: copy.ShardID.Shard, Required: 1, Available: 0}
	}
	payload, err := transport.EncodePayload(vindexpb.ReplicateWriteRequest{
		IndexUUID: copy.ShardID.Index.String(),
		Shard:     copy.ShardID.Shard,
		DocID:     req.ID,
		Source:    req.Source,
		Deleted:   req.Delete,
	})
	if err != nil {
		return document.Doc{}, err
	}
	respBytes, err := c.client.Invoke(ctx, node.Addr, vindexpb.KindReplicateWrite, payload, len(req.Source) > transport.CompressionThresholdBytes)
	if err != nil {
		return document.Doc{}, err
	}
	var resp vindexpb.ReplicateWriteResponse
	if err := transport.DecodePayload(respBytes, &resp); err != nil {
		return document.Doc{}, err
	}
	return document.Doc{ID: req.ID, Source: req.Source, SeqNo: resp.AppliedSeqNo}, nil
}

func (c *Coordinator) replicateTo(ctx context.Context, state cluster.State, copy routing.ShardCopy, doc document.Doc) error {
	if eng, ok := c.local[copy.ShardID]; ok {
		_, err := eng.Write(ctx, document.WriteRequest{ID: doc.ID, Source: doc.Source, Delete: doc.Deleted})
		return err
	}
	node, ok := state.Nodes[copy.NodeID]
	if !ok {
		return fmt.Errorf("replication: node %s not found", copy.NodeID)
	}
	payload, err := transport.EncodePayload(vindexpb.ReplicateWriteRequest{
		IndexUUID:   copy.ShardID.Index.String(),
		Shard:       copy.ShardID.Shard,
		DocID:       doc.ID,
		Source:      doc.Source,
		Deleted:     doc.Deleted,
		SeqNo:       doc.SeqNo,
		PrimaryTerm: doc.PrimaryTerm,
		Version:     doc.Version,
	})
	if err != nil {
		return err
	}
	_, err = c.client.Invoke(ctx, node.Addr, vindexpb.KindReplicateWrite, payload, len(doc.Source) > transport.CompressionThresholdBytes)
	return err
}

// Get reads document id from any started copy of shardID, preferring a
// locally-hosted copy, falling back to the first started remote copy.
func (c *Coordinator) Get(ctx context.Context, shardID routing.ShardID, id string) (document.Doc, error) {
	state := c.state()
	started := state.Routing.Started(shardID)
	if len(started) == 0 {
		return document.Doc{}, &vterrors.UnavailableShardsError{Shard: shardID.Shard, Required: 1, Available: 0}
	}

	for _, copy := range started {
		if eng, ok := c.local[copy.ShardID]; ok {
			if doc, found := eng.Get(id); found {
				return doc, nil
			}
		}
	}

	for _, copy := range started {
		node, ok := state.Nodes[copy.NodeID]
		if !ok {
			continue
		}
		payload, err := transport.EncodePayload(vindexpb.GetDocRequest{IndexUUID: shardID.Index.String(), Shard: shardID.Shard, DocID: id})
		if err != nil {
			return document.Doc{}, err
		}
		respBytes, err := c.client.Invoke(ctx, node.Addr, vindexpb.KindGetDoc, payload, false)
		if err != nil {
			continue
		}
		var resp vindexpb.GetDocResponse
		if err := transport.DecodePayload(respBytes, &resp); err != nil {
			continue
		}
		if resp.Found {
			return document.Doc{ID: id, Source: resp.Source, Version: resp.Version, SeqNo: resp.SeqNo}, nil
		}
	}
	return document.Doc{}, &vterrors.UnavailableShardsError{Shard: shardID.Shard, Required: 1, Available: 0}
}
