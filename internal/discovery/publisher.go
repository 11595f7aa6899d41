package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/index"
	"github.com/dreamware/vindex/internal/routing"
	"github.com/dreamware/vindex/internal/vterrors"
)

// ErrNotLeader is returned by Publisher methods when called against a node
// that isn't currently the raft leader; callers should forward the request
// to the leader address instead of retrying locally.
var ErrNotLeader = fmt.Errorf("discovery: not the leader")

// Publisher proposes cluster.State mutations through the raft log. Only the
// current leader's proposals succeed; followers get ErrNotLeader.
type Publisher struct {
	node *Node
}

// NewPublisher wraps n for state proposals.
func NewPublisher(n *Node) *Publisher {
	return &Publisher{node: n}
}

// propose submits a single named command through raft.Apply and waits for
// it to commit, returning the resulting cluster.State version. It blocks
// until ctx is done or the command applies; a follower returns ErrNotLeader
// immediately rather than blocking.
func (p *Publisher) propose(ctx context.Context, op string, payload any) (uint64, error) {
	if p.node.Raft().State() != raft.Leader {
		return 0, ErrNotLeader
	}
	data, err := encodeCommand(op, payload)
	if err != nil {
		return 0, err
	}

	deadline, hasDeadline := ctx.Deadline()
	timeout := raft.DefaultConfig().CommitTimeout * 20
	if hasDeadline {
		if d := time.Until(deadline); d > 0 {
			timeout = d
		}
	}

	f := p.node.Raft().Apply(data, timeout)
	if err := f.Error(); err != nil {
		return 0, &vterrors.Timeout{Op: "discovery.propose." + op}
	}
	resp := f.Response()
	if err, ok := resp.(error); ok {
		return 0, err
	}
	version, _ := resp.(uint64)
	return version, nil
}

// AddNode proposes adding or updating a cluster member.
func (p *Publisher) AddNode(ctx context.Context, n cluster.Node) (uint64, error) {
	return p.propose(ctx, opAddNode, n)
}

// RemoveNode proposes removing a cluster member and its routed shard copies.
func (p *Publisher) RemoveNode(ctx context.Context, id uuid.UUID) (uint64, error) {
	return p.propose(ctx, opRemoveNode, id)
}

// SetMaster proposes recording id as the current master. Called by a
// freshly-elected leader against itself once LeaderCh fires.
func (p *Publisher) SetMaster(ctx context.Context, id uuid.UUID) (uint64, error) {
	return p.propose(ctx, opSetMaster, id)
}

// SetNoMasterBlock proposes activating BlockNoMaster at level.
func (p *Publisher) SetNoMasterBlock(ctx context.Context, level cluster.NoMasterBlockLevel) (uint64, error) {
	return p.propose(ctx, opNoMasterBlock, level)
}

// PutIndex proposes creating or updating an index's metadata.
func (p *Publisher) PutIndex(ctx context.Context, m index.Metadata) (uint64, error) {
	return p.propose(ctx, opPutIndex, m)
}

// RemoveIndex proposes deleting an index's metadata; its routing entries
// stay in the table (see cluster.State.RemoveIndex).
func (p *Publisher) RemoveIndex(ctx context.Context, id uuid.UUID) (uint64, error) {
	return p.propose(ctx, opRemoveIndex, id)
}

// SetRouting proposes replacing the routing table wholesale, used by the
// allocation engine after computing a rebalance plan.
func (p *Publisher) SetRouting(ctx context.Context, t routing.Table) (uint64, error) {
	return p.propose(ctx, opSetRouting, t)
}

// WatchLeadership runs until ctx is done, proposing SetMaster whenever this
// node becomes leader. Losing leadership is only logged; no no-master block
// is proposed.
func (p *Publisher) WatchLeadership(ctx context.Context, selfID uuid.UUID) {
	ch := p.node.Raft().LeaderCh()
	for {
		select {
		case <-ctx.Done():
			return
		case isLeader := <-ch:
			if isLeader {
				if _, err := p.SetMaster(ctx, selfID); err != nil {
					log.Warn().Err(err).Msg("failed to publish self as master")
				}
				continue
			}
			log.Info().Msg("lost raft leadership")
		}
	}
}
