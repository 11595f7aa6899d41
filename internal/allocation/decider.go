// Package allocation decides where shard copies should live: which node is
// eligible to host a given unassigned copy, and how to rebalance started
// copies across the cluster as nodes join, leave, or fill up.
package allocation

import (
	"github.com/google/uuid"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/routing"
)

// Decision is a Decider's verdict on placing one shard copy on one node.
type Decision int

const (
	Yes Decision = iota
	No
	Throttle
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "YES"
	case No:
		return "NO"
	case Throttle:
		return "THROTTLE"
	default:
		return "UNKNOWN"
	}
}

// worse keeps the most restrictive of two decisions; NO beats THROTTLE
// beats YES, matching the allocation engine's all-deciders-must-agree rule.
func worse(a, b Decision) Decision {
	if a == No || b == No {
		return No
	}
	if a == Throttle || b == Throttle {
		return Throttle
	}
	return Yes
}

// Candidate is one shard copy a Decider is asked to place or keep placed.
type Candidate struct {
	ShardID routing.ShardID
	Primary bool
	Node    cluster.Node
}

// Decider votes on whether Candidate may be allocated/remain on its Node,
// given the full cluster state.
type Decider interface {
	Decide(state cluster.State, c Candidate) Decision
}

// Deciders evaluates a candidate against every registered Decider and
// returns the most restrictive verdict, the allocation engine's "any NO
// vetoes" rule.
type Deciders []Decider

func (ds Deciders) Decide(state cluster.State, c Candidate) Decision {
	verdict := Yes
	for _, d := range ds {
		verdict = worse(verdict, d.Decide(state, c))
		if verdict == No {
			return No
		}
	}
	return verdict
}

// SameShardDecider forbids placing two copies of the same shard on the same
// node.
type SameShardDecider struct{}

func (SameShardDecider) Decide(state cluster.State, c Candidate) Decision {
	for _, existing := range state.Routing.Copies(c.ShardID) {
		if existing.NodeID == c.Node.ID {
			return No
		}
	}
	return Yes
}

// DiskThresholdDecider refuses or throttles allocation onto nodes reporting
// disk usage above configured watermarks. Usage figures arrive via the
// ping RPC's node stats (transport layer), not a new external dependency.
type DiskThresholdDecider struct {
	LowWatermark  float64 // e.g. 0.85 - not consulted by Decide
	HighWatermark float64 // e.g. 0.90 - below this, YES; from here up to FloodStage, THROTTLE
	FloodStage    float64 // e.g. 0.95 - at or above this, NO

	// DiskUsage reports a node's fraction-full disk; supplied by the node
	// process from the latest stats it holds for each peer.
	DiskUsage func(nodeID uuid.UUID) (float64, bool)
}

func (d DiskThresholdDecider) Decide(_ cluster.State, c Candidate) Decision {
	usage, ok := d.DiskUsage(c.Node.ID)
	if !ok {
		return Yes
	}
	switch {
	case usage >= d.FloodStage:
		return No
	case usage >= d.HighWatermark:
		return Throttle
	default:
		return Yes
	}
}

// AwarenessDecider spreads shard copies across an awareness attribute (e.g.
// "zone") so a single zone's failure doesn't take out every copy.
type AwarenessDecider struct {
	Attribute string
}

func (d AwarenessDecider) Decide(state cluster.State, c Candidate) Decision {
	targetZone := c.Node.Attrs[d.Attribute]
	if targetZone == "" {
		return Yes
	}
	zoneCounts := map[string]int{}
	zones := map[string]bool{}
	for _, n := range state.Nodes {
		if z, ok := n.Attrs[d.Attribute]; ok && z != "" {
			zones[z] = true
		}
	}
	if len(zones) <= 1 {
		return Yes
	}
	for _, existing := range state.Routing.Copies(c.ShardID) {
		if n, ok := state.Nodes[existing.NodeID]; ok {
			zoneCounts[n.Attrs[d.Attribute]]++
		}
	}
	maxPerZone := (len(state.Routing.Copies(c.ShardID)) + 1 + len(zones) - 1) / len(zones)
	if zoneCounts[targetZone]+1 > maxPerZone {
		return Throttle
	}
	return Yes
}

// EnableAllocationDecider implements a global or per-index allocation
// pause (e.g. during planned maintenance).
type EnableAllocationDecider struct {
	Enabled func() bool
}

func (d EnableAllocationDecider) Decide(_ cluster.State, _ Candidate) Decision {
	if d.Enabled != nil && !d.Enabled() {
		return No
	}
	return Yes
}

// FilterDecider excludes/includes nodes by attribute, the operator-facing
// "don't allocate shard copies to node X" knob.
type FilterDecider struct {
	ExcludeNodeIDs map[uuid.UUID]bool
}

func (d FilterDecider) Decide(_ cluster.State, c Candidate) Decision {
	if d.ExcludeNodeIDs[c.Node.ID] {
		return No
	}
	return Yes
}

// ThrottleDecider caps the number of concurrent initializing/relocating
// copies cluster-wide, so a large rebalance doesn't saturate every node's
// recovery bandwidth at once.
type ThrottleDecider struct {
	MaxConcurrentRecoveries int
}

func (d ThrottleDecider) Decide(state cluster.State, _ Candidate) Decision {
	inFlight := 0
	for _, id := range state.Routing.ShardIDs() {
		for _, c := range state.Routing.Copies(id) {
			if c.State == routing.Initializing || c.State == routing.Relocating {
				inFlight++
			}
		}
	}
	if inFlight >= d.MaxConcurrentRecoveries {
		return Throttle
	}
	return Yes
}
