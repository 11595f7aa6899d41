package discovery

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/dreamware/vindex/internal/cluster"
)

// Config controls how Node builds its raft group.
type Config struct {
	NodeID     string
	BindAddr   string // raft transport address, distinct from the gRPC transport addr
	DataDir    string
	Bootstrap  bool // true for the first node of a brand-new cluster
	JoinAddrs  []string
}

// Node owns one node's raft participation: the FSM, the raft instance, and
// the log/stable/snapshot stores backing it. Non-master-eligible nodes
// never construct one; they only run discovery.PingService.
type Node struct {
	cfg Config
	fsm *FSM
	r   *raft.Raft
}

// NewNode creates the raft transport, stores, and raft.Raft instance, and
// either bootstraps a single-node cluster or waits to be added by AddVoter
// called against an existing leader. Timeouts are tuned down from raft's
// WAN-oriented defaults, grounded on the pack's manager.Bootstrap tuning:
// this module targets LAN/same-DC deployments, not cross-region quorums.
func NewNode(cfg Config, initial cluster.State, onApply func(cluster.State)) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("discovery: create data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("discovery: create raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("discovery: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("discovery: create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("discovery: create raft stable store: %w", err)
	}

	fsm := NewFSM(initial, onApply)

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("discovery: create raft: %w", err)
	}

	n := &Node{cfg: cfg, fsm: fsm, r: r}

	if cfg.Bootstrap {
		f := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
		})
		if err := f.Error(); err != nil {
			return nil, fmt.Errorf("discovery: bootstrap cluster: %w", err)
		}
	}

	log.Info().Str("node_id", cfg.NodeID).Bool("bootstrap", cfg.Bootstrap).Msg("raft node started")
	return n, nil
}

// Raft returns the underlying raft handle, used by Publisher and by the
// node process to watch LeaderCh for master-changed notifications.
func (n *Node) Raft() *raft.Raft { return n.r }

// FSM returns the FSM backing this node's raft group.
func (n *Node) FSM() *FSM { return n.fsm }

// AddVoter adds a new master-eligible node to the raft configuration; only
// the current leader can do this, raft returns an error otherwise.
func (n *Node) AddVoter(id, addr string) error {
	f := n.r.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 10*time.Second)
	return f.Error()
}

// RemoveServer removes a node (voter or not) from the raft configuration.
func (n *Node) RemoveServer(id string) error {
	f := n.r.RemoveServer(raft.ServerID(id), 0, 10*time.Second)
	return f.Error()
}

// Shutdown stops this node's raft participation.
func (n *Node) Shutdown() error {
	return n.r.Shutdown().Error()
}
