// Package vconfig defines the typed settings every vindex node constructs
// its component graph from. Values are loaded from an optional YAML file and
// then overridden by environment variables, generalizing the teacher
// process's bare getenv/mustGetenv pair into one structured settings object
// shared by cmd/vindexd and cmd/vctl.
//
// The YAML file format and its on-disk discovery are the "configuration
// loader" spec.md lists as an out-of-scope external collaborator; the
// Settings struct and its defaults are in scope because every package below
// constructs from it.
package vconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Roles a node can hold. A node may hold more than one.
const (
	RoleMasterEligible = "master_eligible"
	RoleData           = "data"
	RoleCoordinating   = "coordinating_only"
)

// Settings is the full configuration surface for one vindex node process.
type Settings struct {
	// NodeID is persisted across restarts in the node's data directory once
	// chosen; if empty at first start a UUID is generated and written back.
	NodeID string `yaml:"node_id"`

	// DataDir holds the per-node bbolt store, raft log/stable store, and
	// segment/translog files under indices/<uuid>/<shard>/.
	DataDir string `yaml:"data_dir"`

	// BindAddr is the gRPC transport listen address (node-to-node RPC).
	BindAddr string `yaml:"bind_addr"`

	// AdvertiseAddr is what this node tells peers to dial; defaults to BindAddr.
	AdvertiseAddr string `yaml:"advertise_addr"`

	// OperatorAddr is the read-only HTTP operator surface's listen address.
	OperatorAddr string `yaml:"operator_addr"`

	// SeedAddrs bootstraps discovery: addresses of already-running nodes.
	SeedAddrs []string `yaml:"seed_addrs"`

	Roles []string `yaml:"roles"`

	MinimumMasterNodes int    `yaml:"minimum_master_nodes"`
	NoMasterBlock      string `yaml:"no_master_block"` // "write" or "all"

	PingInterval        time.Duration `yaml:"ping_interval"`
	PingTimeout         time.Duration `yaml:"ping_timeout"`
	FailureThreshold    int           `yaml:"failure_threshold"`
	PublishTimeout      time.Duration `yaml:"publish_timeout"`
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
	CompressionMinBytes int           `yaml:"compression_min_bytes"`

	BreakerTotalLimitBytes int64 `yaml:"breaker_total_limit_bytes"`

	Snapshot SnapshotSettings `yaml:"snapshot"`

	Log LogSettings `yaml:"log"`
}

// SnapshotSettings configures the S3-backed snapshot repository (internal/snapshot).
type SnapshotSettings struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`
}

// LogSettings configures internal/vlog.
type LogSettings struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a Settings value usable for a single-node development
// cluster; every field can be overridden by file or environment.
func Default() Settings {
	return Settings{
		DataDir:                "./data",
		BindAddr:               ":7100",
		OperatorAddr:           ":7101",
		Roles:                  []string{RoleMasterEligible, RoleData},
		MinimumMasterNodes:     1,
		NoMasterBlock:          "write",
		PingInterval:           1 * time.Second,
		PingTimeout:            500 * time.Millisecond,
		FailureThreshold:       3,
		PublishTimeout:         5 * time.Second,
		RefreshInterval:        1 * time.Second,
		CompressionMinBytes:    8 << 10,
		BreakerTotalLimitBytes: 512 << 20,
		Log:                    LogSettings{Level: "info"},
	}
}

// Load reads base defaults, merges an optional YAML file, then applies
// environment overrides for the handful of per-process values that are
// awkward to template into a shared file (node id, addresses, seeds).
func Load(path string) (Settings, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("vconfig: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("vconfig: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = cfg.BindAddr
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Settings) {
	if v := os.Getenv("VINDEX_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("VINDEX_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VINDEX_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("VINDEX_ADVERTISE_ADDR"); v != "" {
		cfg.AdvertiseAddr = v
	}
	if v := os.Getenv("VINDEX_OPERATOR_ADDR"); v != "" {
		cfg.OperatorAddr = v
	}
	if v := os.Getenv("VINDEX_SEEDS"); v != "" {
		cfg.SeedAddrs = splitNonEmpty(v, ',')
	}
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// HasRole reports whether the settings grant the given role.
func (s Settings) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
