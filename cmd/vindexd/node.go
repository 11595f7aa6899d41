// Package main implements vindexd, the single homogeneous node process:
// every vindexd instance runs discovery (if master-eligible), the gRPC
// transport, any shard engines routed to it, replication, query
// coordination, and the read-only operator HTTP surface. Components are
// wired explicitly here, in Node — there is no DI container, matching the
// teacher's cmd/node and cmd/coordinator mains building their server structs
// by hand.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/dreamware/vindex/internal/allocation"
	"github.com/dreamware/vindex/internal/breaker"
	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/discovery"
	"github.com/dreamware/vindex/internal/engine"
	"github.com/dreamware/vindex/internal/operator"
	"github.com/dreamware/vindex/internal/pool"
	"github.com/dreamware/vindex/internal/query"
	"github.com/dreamware/vindex/internal/recovery"
	"github.com/dreamware/vindex/internal/replication"
	"github.com/dreamware/vindex/internal/routing"
	"github.com/dreamware/vindex/internal/snapshot"
	"github.com/dreamware/vindex/internal/snapshot/s3repo"
	"github.com/dreamware/vindex/internal/storage"
	"github.com/dreamware/vindex/internal/transport"
	"github.com/dreamware/vindex/internal/transport/vindexpb"
	"github.com/dreamware/vindex/internal/translog"
	"github.com/dreamware/vindex/internal/vconfig"
	"github.com/dreamware/vindex/internal/vlog"
)

var log = vlog.Component("vindexd")

// Node owns every component one vindex process runs.
type Node struct {
	cfg  vconfig.Settings
	self uuid.UUID

	meta *storage.BoltStore

	clusterStore *cluster.Store
	raftNode     *discovery.Node // nil on coordinating-only / non-eligible nodes
	publisher    *discovery.Publisher
	ping         *discovery.PingService

	transportSrv *transport.Server
	client       *transport.Client

	shardsMu sync.Mutex
	shards   map[routing.ShardID]*engine.Engine
	// localEngines and localSearchers are the same underlying maps handed to
	// replication.New/query.New at construction time; ensureEngine inserts
	// into all three together so the coordinators see every shard opened
	// after startup without needing a rebuild callback.
	localEngines   map[routing.ShardID]replication.LocalEngine
	localSearchers map[routing.ShardID]query.LocalSearcher

	replication *replication.Coordinator
	query       *query.Coordinator
	breaker     *breaker.Accountant
	pools       map[string]*pool.Pool
	balancer    *allocation.Balancer
	snapshotter *snapshot.Snapshotter
	recoverer   *recovery.PeerRecovery

	operatorSrv *operator.Server
}

// NewNode builds every component from cfg but does not start background
// loops or listeners; call Run for that.
func NewNode(cfg vconfig.Settings) (*Node, error) {
	meta, err := storage.OpenBoltStore(filepath.Join(cfg.DataDir, "node_meta.db"), "meta")
	if err != nil {
		return nil, fmt.Errorf("open node metadata store: %w", err)
	}

	selfID, err := loadOrCreateNodeID(meta, cfg.NodeID)
	if err != nil {
		return nil, err
	}

	clusterStore, err := cluster.OpenStore(filepath.Join(cfg.DataDir, "cluster_state.db"))
	if err != nil {
		return nil, fmt.Errorf("open cluster store: %w", err)
	}
	initial, err := clusterStore.Load()
	if err != nil {
		return nil, fmt.Errorf("load cluster state: %w", err)
	}

	n := &Node{
		cfg:            cfg,
		self:           selfID,
		meta:           meta,
		clusterStore:   clusterStore,
		client:         transport.NewClient(),
		shards:         map[routing.ShardID]*engine.Engine{},
		localEngines:   map[routing.ShardID]replication.LocalEngine{},
		localSearchers: map[routing.ShardID]query.LocalSearcher{},
		breaker:        breaker.NewAccountant(cfg.BreakerTotalLimitBytes, breaker.Limits{Category: "query_cache", Bytes: cfg.BreakerTotalLimitBytes / 4}),
		balancer: allocation.NewBalancer(
			allocation.SameShardDecider{},
			allocation.AwarenessDecider{Attribute: "zone"},
			allocation.ThrottleDecider{MaxConcurrentRecoveries: 4},
		),
		pools: map[string]*pool.Pool{
			"index":  pool.New("index", 4, 200),
			"search": pool.New("search", 8, 1000),
			"bulk":   pool.New("bulk", 2, 50),
			"flush":  pool.New("flush", 2, 16),
		},
	}

	n.transportSrv = transport.NewServer()

	if cfg.HasRole(vconfig.RoleMasterEligible) {
		raftNode, err := discovery.NewNode(discovery.Config{
			NodeID:    selfID.String(),
			BindAddr:  cfg.BindAddr,
			DataDir:   filepath.Join(cfg.DataDir, "raft"),
			Bootstrap: len(cfg.SeedAddrs) == 0,
		}, initial, n.onClusterStateApplied)
		if err != nil {
			return nil, fmt.Errorf("start raft node: %w", err)
		}
		n.raftNode = raftNode
		n.publisher = discovery.NewPublisher(raftNode)
	}

	n.ping = discovery.NewPingService(selfID.String(), n.currentState, n.publisher)
	n.ping.Register(n.transportSrv)

	n.replication = replication.New(n.currentState, n.localEngines, n.client)
	qc, err := query.New(n.currentState, n.localSearchers, n.client, cfg.BreakerTotalLimitBytes/4)
	if err != nil {
		return nil, fmt.Errorf("build query coordinator: %w", err)
	}
	n.query = qc

	if cfg.Snapshot.Bucket != "" {
		repo, err := s3repo.Open(context.Background(), s3repo.Config{
			Bucket: cfg.Snapshot.Bucket, Region: cfg.Snapshot.Region, Endpoint: cfg.Snapshot.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("open snapshot repository: %w", err)
		}
		n.snapshotter = snapshot.New(repo)
	}
	n.recoverer = recovery.New(n.client)
	recovery.RegisterServer(n.transportSrv, n)

	n.operatorSrv = operator.New(cfg.OperatorAddr, n.currentState, n.pools)

	return n, nil
}

// onClusterStateApplied is the raft FSM's callback on every committed
// command: it opens a shard engine for each copy routed to this node, or
// starts peer recovery for an initializing replica. Engines for copies no
// longer routed here are left open.
func (n *Node) onClusterStateApplied(st cluster.State) {
	vlogClusterVersion(st.Version)
	for _, id := range st.Routing.ShardIDs() {
		for _, c := range st.Routing.Copies(id) {
			if c.NodeID != n.self {
				continue
			}
			switch c.State {
			case routing.Started:
				if _, err := n.ensureEngine(id); err != nil {
					log.Error().Err(err).Str("shard", id.String()).Msg("failed to open shard engine")
				}
			case routing.Initializing:
				if !c.Primary {
					go n.recoverShard(st, id)
					continue
				}
				if _, err := n.ensureEngine(id); err != nil {
					log.Error().Err(err).Str("shard", id.String()).Msg("failed to open shard engine")
				}
			}
		}
	}
}

// recoverShard fetches the shard's data from the current primary before
// opening the local engine, for a non-primary copy that was just assigned
// here. The subsequent promotion of this copy to Started is driven by the
// allocation engine observing the shard respond to pings, not by this node
// proposing its own state transition.
func (n *Node) recoverShard(st cluster.State, id routing.ShardID) {
	primary, ok := st.Routing.Primary(id)
	if !ok {
		log.Warn().Str("shard", id.String()).Msg("recovery requested with no started primary yet")
		return
	}
	primaryNode, ok := st.Nodes[primary.NodeID]
	if !ok {
		log.Warn().Str("shard", id.String()).Msg("recovery source node not found in cluster state")
		return
	}

	dir := n.shardDataDir(id.Index.String(), id.Shard)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// recoverer.Run transfers the on-disk translog file itself, then replays
	// it purely to validate the tail is readable; ensureEngine below does
	// the replay that actually matters, into a freshly opened Engine.
	err := n.recoverer.Run(ctx, primaryNode.Addr, id.Index.String(), id.Shard, dir, func(translog.Op) error { return nil })
	if err != nil {
		log.Error().Err(err).Str("shard", id.String()).Msg("peer recovery failed")
		return
	}
	if _, err := n.ensureEngine(id); err != nil {
		log.Error().Err(err).Str("shard", id.String()).Msg("failed to open shard engine after recovery")
	}
}

func vlogClusterVersion(v uint64) {
	log.Debug().Uint64("version", v).Msg("applied cluster state")
}

// currentState returns the last applied cluster.State, from the raft FSM on
// master-eligible nodes or from the locally persisted copy otherwise.
func (n *Node) currentState() cluster.State {
	if n.raftNode != nil {
		return n.raftNode.FSM().Current()
	}
	st, err := n.clusterStore.Load()
	if err != nil {
		return cluster.New()
	}
	return st
}

// ensureEngine lazily creates the translog and Engine for a shard copy
// routed to this node, mirroring the teacher's on-demand shard creation in
// cmd/node's Node.AddShard/GetShard pair but keyed by routing.ShardID
// instead of a bare int and backed by a persistent translog directory
// instead of an in-memory map.
func (n *Node) ensureEngine(id routing.ShardID) (*engine.Engine, error) {
	n.shardsMu.Lock()
	defer n.shardsMu.Unlock()

	if e, ok := n.shards[id]; ok {
		return e, nil
	}

	dir := n.shardDataDir(id.Index.String(), id.Shard)
	wal, err := translog.Open(dir, id.String(), 0)
	if err != nil {
		return nil, fmt.Errorf("open translog for %s: %w", id, err)
	}

	e, err := engine.New(engine.Options{
		ShardLabel: id.String(),
		Durability: engine.DurabilityRequest,
		Analyzer:   whitespaceAnalyzer,
	}, wal, 1)
	if err != nil {
		return nil, fmt.Errorf("open engine for %s: %w", id, err)
	}

	if err := translog.ReadGeneration(dir, 0, func(op translog.Op) error {
		e.Apply(op)
		return nil
	}); err != nil {
		log.Warn().Err(err).Str("shard", id.String()).Msg("translog replay stopped early, tail likely partial")
	}

	n.shards[id] = e
	n.localEngines[id] = e
	n.localSearchers[id] = e
	log.Info().Str("shard", id.String()).Msg("shard engine opened")
	return e, nil
}

// shardDataDir returns this node's on-disk directory for one shard copy,
// the same layout ensureEngine opens its translog/segments under.
func (n *Node) shardDataDir(indexUUID string, shard int) string {
	return filepath.Join(n.cfg.DataDir, "indices", indexUUID, strconv.Itoa(shard))
}

// ListFiles implements recovery.SourceLister, answering a recovering peer's
// manifest request by walking this shard's on-disk directory and checksumming
// every file found, the same content-addressed check internal/snapshot uses.
func (n *Node) ListFiles(ctx context.Context, indexUUID string, shard int) ([]vindexpb.RecoveryFileMeta, error) {
	dir := n.shardDataDir(indexUUID, shard)
	var files []vindexpb.RecoveryFileMeta
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, vindexpb.RecoveryFileMeta{
			Path:     rel,
			Checksum: xxhash.Sum64(data),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list shard files for %s/%d: %w", indexUUID, shard, err)
	}
	return files, nil
}

// ReadFile implements recovery.SourceLister, serving one file's raw bytes
// from this shard's on-disk directory.
func (n *Node) ReadFile(ctx context.Context, indexUUID string, shard int, path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(n.shardDataDir(indexUUID, shard), path))
}

func whitespaceAnalyzer(text string) []string {
	var out []string
	start := -1
	for i, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if start >= 0 {
				out = append(out, text[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, text[start:])
	}
	return out
}

// Run starts every background loop and blocks serving until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", n.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.BindAddr, err)
	}
	go func() {
		if err := n.transportSrv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("transport server stopped")
		}
	}()

	if n.publisher != nil {
		go n.publisher.WatchLeadership(ctx, n.self)
		go n.runBalancerLoop(ctx)
	}
	go n.runPingLoop(ctx)
	go n.operatorServe()

	<-ctx.Done()
	return n.shutdown()
}

func (n *Node) runPingLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.ping.ProbeOnce(ctx, n.client)
		}
	}
}

// runBalancerLoop runs allocation.Balancer.Rebalance periodically when this
// node is the raft leader, proposing the resulting routing table.
func (n *Node) runBalancerLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n.raftNode.Raft().State().String() != "Leader" {
				continue
			}
			st := n.currentState()
			next := n.balancer.Rebalance(st)
			if _, err := n.publisher.SetRouting(ctx, next); err != nil && err != discovery.ErrNotLeader {
				log.Warn().Err(err).Msg("propose routing update failed")
			}
		}
	}
}

func (n *Node) operatorServe() {
	if err := n.operatorSrv.ListenAndServe(); err != nil {
		log.Error().Err(err).Msg("operator HTTP server stopped")
	}
}

func (n *Node) shutdown() error {
	n.transportSrv.Stop()
	_ = n.operatorSrv.Shutdown()
	for _, p := range n.pools {
		p.Stop()
	}
	n.client.Close()
	if n.raftNode != nil {
		_ = n.raftNode.Shutdown()
	}
	st := n.currentState()
	if err := n.clusterStore.Save(st); err != nil {
		log.Error().Err(err).Msg("persist cluster state on shutdown")
	}
	_ = n.clusterStore.Close()
	_ = n.meta.Close()
	log.Info().Msg("node shutdown complete")
	return nil
}

func loadOrCreateNodeID(meta *storage.BoltStore, configured string) (uuid.UUID, error) {
	if configured != "" {
		return uuid.Parse(configured)
	}
	if b, err := meta.Get("node_id"); err == nil {
		return uuid.Parse(string(b))
	}
	id := uuid.New()
	if err := meta.Put("node_id", []byte(id.String())); err != nil {
		return uuid.Nil, fmt.Errorf("persist generated node id: %w", err)
	}
	return id, nil
}
