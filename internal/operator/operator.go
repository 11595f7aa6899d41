// Package operator exposes the read-only HTTP surface used for cluster
// monitoring and debugging: health, shard assignments, recovery status, and
// the Prometheus scrape endpoint. It never accepts cluster-mutating
// requests — those go through internal/discovery's Publisher on the raft
// leader.
package operator

import (
	"encoding/json"
	"net/http"

	"github.com/dreamware/vindex/internal/cluster"
	"github.com/dreamware/vindex/internal/pool"
	"github.com/dreamware/vindex/internal/routing"
	"github.com/dreamware/vindex/internal/vlog"
	"github.com/dreamware/vindex/internal/vmetrics"
)

var log = vlog.Component("operator")

// HealthStatus is the traffic-light summary of cluster health.
type HealthStatus string

const (
	HealthGreen  HealthStatus = "green"  // every shard has all its copies started
	HealthYellow HealthStatus = "yellow" // every primary started, some replicas aren't
	HealthRed    HealthStatus = "red"    // at least one primary is unassigned
)

// RecoveryStatus reports outstanding peer-recovery activity as returned by
// the reporter set with WithRecoveryStatus; without one it reports zero.
type RecoveryStatus struct {
	ShardsRecovering int `json:"shards_recovering"`
}

// Server serves the read-only HTTP admin surface.
type Server struct {
	state     func() cluster.State
	pools     map[string]*pool.Pool
	recovery  func() RecoveryStatus
	http      *http.Server
	mux       *http.ServeMux
}

// New builds a Server. state returns the current cluster.State snapshot;
// pools names the worker pools whose queue depth /health reports.
func New(addr string, state func() cluster.State, pools map[string]*pool.Pool) *Server {
	s := &Server{
		state:    state,
		pools:    pools,
		recovery: func() RecoveryStatus { return RecoveryStatus{} },
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/shards", s.handleShards)
	s.mux.HandleFunc("/recovery", s.handleRecovery)
	s.mux.Handle("/metrics", vmetrics.Handler())
	s.http = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

// WithRecoveryStatus wires a live recovery-status reporter. cmd/vindexd
// does not call it, so its /recovery endpoint reports zero shards recovering.
func (s *Server) WithRecoveryStatus(fn func() RecoveryStatus) {
	s.recovery = fn
}

// ListenAndServe blocks serving the admin HTTP surface until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.http.Addr).Msg("operator HTTP surface listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops serving at once via http.Server.Close, closing active
// connections without waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

type healthResponse struct {
	Status          HealthStatus `json:"status"`
	ClusterVersion  uint64       `json:"cluster_version"`
	NumNodes        int          `json:"num_nodes"`
	UnassignedShards int         `json:"unassigned_shards"`
	Queues          map[string]int `json:"queue_depths"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.state()

	status := HealthGreen
	unassigned := 0
	for _, id := range st.Routing.ShardIDs() {
		copies := st.Routing.Copies(id)
		hasStartedPrimary := false
		allStarted := len(copies) > 0
		for _, c := range copies {
			if c.Primary && c.State == routing.Started {
				hasStartedPrimary = true
			}
			if c.State != routing.Started {
				allStarted = false
			}
		}
		if !hasStartedPrimary {
			status = HealthRed
			unassigned++
			continue
		}
		if !allStarted && status != HealthRed {
			status = HealthYellow
		}
	}

	queues := make(map[string]int, len(s.pools))
	for name, p := range s.pools {
		queues[name] = p.QueueDepth()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{
		Status:           status,
		ClusterVersion:   st.Version,
		NumNodes:         len(st.Nodes),
		UnassignedShards: unassigned,
		Queues:           queues,
	}); err != nil {
		log.Error().Err(err).Msg("encode health response")
	}
}

type shardRow struct {
	Index   string                `json:"index"`
	Shard   int                   `json:"shard"`
	Copies  []routing.ShardCopy   `json:"copies"`
}

func (s *Server) handleShards(w http.ResponseWriter, _ *http.Request) {
	st := s.state()
	rows := make([]shardRow, 0, len(st.Routing.ShardIDs()))
	for _, id := range st.Routing.ShardIDs() {
		rows = append(rows, shardRow{
			Index:  id.Index.String(),
			Shard:  id.Shard,
			Copies: st.Routing.Copies(id),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Shards []shardRow `json:"shards"`
	}{Shards: rows}); err != nil {
		log.Error().Err(err).Msg("encode shards response")
	}
}

func (s *Server) handleRecovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.recovery()); err != nil {
		log.Error().Err(err).Msg("encode recovery response")
	}
}
