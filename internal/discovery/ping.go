package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/transport"
	"github.com/dreamware/vindex/internal/transport/vindexpb"
)

// PingService answers the liveness ping every node (not just raft voters)
// responds to, and runs the prober that pings peers and feeds three-
// consecutive-miss failures back to the leader as RemoveNode proposals.
// Generalizes the teacher's HealthMonitor from HTTP polling of a fixed
// coordinator to a symmetric gRPC ping any two peers can exchange. state is
// the node's cluster.State accessor, backed by the raft FSM on
// master-eligible nodes and by the locally persisted copy on
// coordinating-only nodes that never join the raft group.
type PingService struct {
	selfID    string
	state     func() cluster.State
	publisher *Publisher // nil on nodes that aren't master-eligible

	mu       sync.Mutex
	failures map[uuid.UUID]int
}

// NewPingService wires the ping responder; Register must be called on the
// node's transport.Server to expose it, and ProbeOnce called periodically
// to actively monitor peers.
func NewPingService(selfID string, state func() cluster.State, publisher *Publisher) *PingService {
	return &PingService{
		selfID:    selfID,
		state:     state,
		publisher: publisher,
		failures:  map[uuid.UUID]int{},
	}
}

// Register installs the ping handler on srv.
func (p *PingService) Register(srv *transport.Server) {
	srv.Handle(vindexpb.KindPing, p.handlePing)
}

func (p *PingService) handlePing(ctx context.Context, payload []byte) ([]byte, error) {
	var req vindexpb.PingRequest
	if err := transport.DecodePayload(payload, &req); err != nil {
		return nil, err
	}
	resp := vindexpb.PingResponse{
		NodeID:         p.selfID,
		ClusterVersion: p.state().Version,
		Healthy:        true,
	}
	return transport.EncodePayload(resp)
}

// FailureThreshold is the number of consecutive missed pings before a peer
// is declared down and RemoveNode is proposed, matching the teacher's
// HealthMonitor default of three.
const FailureThreshold = 3

// ProbeOnce pings every node in the current cluster state once, except
// self, updating the consecutive-failure count and proposing RemoveNode for
// any peer that just crossed FailureThreshold. Called on a ticker by the
// node process.
func (p *PingService) ProbeOnce(ctx context.Context, client *transport.Client) {
	state := p.state()
	for id, n := range state.Nodes {
		if id.String() == p.selfID {
			continue
		}
		p.probeNode(ctx, client, id, n.Addr)
	}
}

func (p *PingService) probeNode(ctx context.Context, client *transport.Client, id uuid.UUID, addr string) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := transport.EncodePayload(vindexpb.PingRequest{FromNodeID: p.selfID})
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode ping request")
		return
	}

	_, err = client.Invoke(pingCtx, addr, vindexpb.KindPing, req, false)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failures[id]++
		log.Warn().Str("node_id", id.String()).Int("misses", p.failures[id]).Err(err).Msg("ping failed")
		if p.failures[id] >= FailureThreshold && p.publisher != nil {
			delete(p.failures, id)
			go func() {
				proposeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if _, err := p.publisher.RemoveNode(proposeCtx, id); err != nil && err != ErrNotLeader {
					log.Error().Err(err).Str("node_id", id.String()).Msg("failed to propose node removal")
				}
			}()
		}
		return
	}
	p.failures[id] = 0
}
