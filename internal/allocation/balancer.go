package allocation

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/index"
	"github.com/dreamware/vindex/internal/routing"
	"github.com/dreamware/vindex/internal/vlog"
)

var log = vlog.Component("allocation")

// Balancer computes routing table updates: assigning unassigned shard
// copies to eligible nodes (primaries first), then rebalancing started
// copies to even out per-node shard counts.
type Balancer struct {
	Deciders Deciders
}

// NewBalancer builds a Balancer from the standard decider set.
func NewBalancer(deciders ...Decider) *Balancer {
	return &Balancer{Deciders: deciders}
}

// Rebalance computes a new routing.Table from state: every index's
// primaries and replicas get assigned to an eligible data node if currently
// unassigned, then started copies are redistributed to minimize the
// maximum per-node shard count, one move at a time, each gated by the
// decider chain.
func (b *Balancer) Rebalance(state cluster.State) routing.Table {
	table := state.Routing

	dataNodes := b.dataNodes(state)
	if len(dataNodes) == 0 {
		return table
	}

	for _, idx := range state.Indices {
		for shard := 0; shard < idx.NumPrimaries; shard++ {
			id := routing.ShardID{Index: idx.UUID, Shard: shard}
			table = b.assignUnassigned(state, table, idx, id)
		}
	}

	table = b.balanceStarted(state, table, dataNodes)
	return table
}

func (b *Balancer) dataNodes(state cluster.State) []cluster.Node {
	var out []cluster.Node
	for _, n := range state.Nodes {
		if !n.HasRole("data") {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (b *Balancer) assignUnassigned(state cluster.State, table routing.Table, idx index.Metadata, id routing.ShardID) routing.Table {
	existing := table.Copies(id)
	hasPrimary := false
	for _, c := range existing {
		if c.Primary && (c.State == routing.Started || c.State == routing.Initializing) {
			hasPrimary = true
		}
	}

	wantReplicas := idx.Settings.NumReplicas
	wantCopies := 1 + wantReplicas

	if len(existing) >= wantCopies {
		return table
	}

	needPrimary := !hasPrimary
	for len(existing) < wantCopies {
		node, ok := b.pickNode(state, table, id, needPrimary)
		if !ok {
			break
		}
		copy := routing.ShardCopy{
			ShardID: id,
			NodeID:  node.ID,
			Primary: needPrimary,
			State:   routing.Initializing,
		}
		table = table.WithCopy(copy)
		existing = table.Copies(id)
		needPrimary = false
	}
	return table
}

func (b *Balancer) pickNode(state cluster.State, table routing.Table, id routing.ShardID, primary bool) (cluster.Node, bool) {
	type scored struct {
		node  cluster.Node
		count int
	}
	var candidates []scored
	// Deciders see the copies already placed earlier in this pass.
	view := state
	view.Routing = table
	for _, n := range state.Nodes {
		if !n.HasRole("data") {
			continue
		}
		verdict := b.Deciders.Decide(view, Candidate{ShardID: id, Primary: primary, Node: n})
		if verdict == No {
			continue
		}
		candidates = append(candidates, scored{node: n, count: nodeShardCount(table, n.ID)})
	}
	if len(candidates) == 0 {
		return cluster.Node{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].count < candidates[j].count })
	return candidates[0].node, true
}

func nodeShardCount(table routing.Table, id uuid.UUID) int {
	count := 0
	for _, sid := range table.ShardIDs() {
		for _, c := range table.Copies(sid) {
			if c.NodeID == id {
				count++
			}
		}
	}
	return count
}

// balanceStarted moves one started copy at a time from the most-loaded node
// to the least-loaded eligible node, as long as the move improves balance
// and every decider agrees, stopping when no further improving move exists.
func (b *Balancer) balanceStarted(state cluster.State, table routing.Table, nodes []cluster.Node) routing.Table {
	const maxMoves = 32 // bound a single rebalance pass; further imbalance is corrected on the next pass
	for i := 0; i < maxMoves; i++ {
		moved := b.tryOneMove(state, table, nodes)
		if moved == nil {
			break
		}
		table = *moved
	}
	return table
}

func (b *Balancer) tryOneMove(state cluster.State, table routing.Table, nodes []cluster.Node) *routing.Table {
	counts := map[uuid.UUID]int{}
	for _, n := range nodes {
		counts[n.ID] = nodeShardCount(table, n.ID)
	}

	var maxNode, minNode uuid.UUID
	maxCount, minCount := -1, int(^uint(0)>>1)
	for _, n := range nodes {
		if counts[n.ID] > maxCount {
			maxCount, maxNode = counts[n.ID], n.ID
		}
		if counts[n.ID] < minCount {
			minCount, minNode = counts[n.ID], n.ID
		}
	}
	if maxCount-minCount <= 1 {
		return nil
	}

	for _, id := range table.ShardIDs() {
		for _, c := range table.Copies(id) {
			if c.NodeID != maxNode || c.State != routing.Started {
				continue
			}
			dest, ok := state.Nodes[minNode]
			if !ok {
				continue
			}
			verdict := b.Deciders.Decide(state, Candidate{ShardID: id, Primary: c.Primary, Node: dest})
			if verdict != Yes {
				continue
			}
			moving := c
			moving.State = routing.Relocating
			moving.RelocatingTo = minNode
			next := table.WithCopy(moving)
			log.Debug().Str("shard", id.String()).Str("from", maxNode.String()).Str("to", minNode.String()).Msg("rebalancing shard copy")
			return &next
		}
	}
	return nil
}
