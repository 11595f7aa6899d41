package cluster

import (
	"github.com/google/uuid"

	"github.com/dreamware/vindex/internal/vconfig"
)

// Node describes one member of the cluster as carried inside State.
type Node struct {
	ID      uuid.UUID
	Addr    string // gRPC transport address peers dial
	Roles   []string
	Attrs   map[string]string // awareness attributes (zone, rack, ...) for allocation deciders
}

// HasRole reports whether the node was started with the given role.
func (n Node) HasRole(role string) bool {
	for _, r := range n.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MasterEligible reports whether this node participates in the raft group.
func (n Node) MasterEligible() bool { return n.HasRole(vconfig.RoleMasterEligible) }

func (n Node) clone() Node {
	next := n
	if n.Roles != nil {
		next.Roles = append([]string(nil), n.Roles...)
	}
	if n.Attrs != nil {
		next.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			next.Attrs[k] = v
		}
	}
	return next
}
