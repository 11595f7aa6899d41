// Package recovery implements peer recovery: a recovering shard copy
// fetches the checksum-diffed file manifest from a source copy, transfers
// only files it lacks or whose checksum differs, then replays generation 0
// of the translog among the transferred files. No live tail of the
// source's translog is streamed.
package recovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/dreamware/vindex/internal/transport"
	"github.com/dreamware/vindex/internal/transport/vindexpb"
	"github.com/dreamware/vindex/internal/translog"
	"github.com/dreamware/vindex/internal/vlog"
	"github.com/dreamware/vindex/internal/vterrors"
)

var log = vlog.Component("recovery")

// SourceLister answers a recovery request with a checksum manifest, served
// by the source node's transport handler (registered under
// vindexpb.KindRecoveryList / KindRecoveryFile).
type SourceLister interface {
	ListFiles(ctx context.Context, indexUUID string, shard int) ([]vindexpb.RecoveryFileMeta, error)
	ReadFile(ctx context.Context, indexUUID string, shard int, path string) ([]byte, error)
}

// PeerRecovery drives one shard copy's recovery from a remote source over
// the gRPC transport.
type PeerRecovery struct {
	client *transport.Client
}

// New constructs a PeerRecovery using client for remote calls.
func New(client *transport.Client) *PeerRecovery {
	return &PeerRecovery{client: client}
}

// Run recovers targetDir (the local shard data directory, currently
// empty or stale) from sourceAddr, then passes each op of translog
// generation 0 under targetDir to applyOp.
func (p *PeerRecovery) Run(ctx context.Context, sourceAddr, indexUUID string, shard int, targetDir string, applyOp func(translog.Op) error) error {
	manifest, err := p.listRemote(ctx, sourceAddr, indexUUID, shard)
	if err != nil {
		return &vterrors.ShardFailure{Shard: shard, Cause: fmt.Errorf("list remote manifest: %w", err)}
	}

	local := localChecksums(targetDir)

	var toFetch []vindexpb.RecoveryFileMeta
	for _, f := range manifest {
		if local[f.Path] != f.Checksum {
			toFetch = append(toFetch, f)
		}
	}
	log.Info().Str("index", indexUUID).Int("shard", shard).Int("total", len(manifest)).Int("to_fetch", len(toFetch)).Msg("starting peer recovery")

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return &vterrors.ShardFailure{Shard: shard, Cause: err}
	}

	for _, f := range toFetch {
		data, err := p.fetchFile(ctx, sourceAddr, indexUUID, shard, f.Path)
		if err != nil {
			return &vterrors.ShardFailure{Shard: shard, Cause: fmt.Errorf("fetch %s: %w", f.Path, err)}
		}
		if xxhash.Sum64(data) != f.Checksum {
			return &vterrors.ShardFailure{Shard: shard, Cause: fmt.Errorf("checksum mismatch for %s after transfer", f.Path)}
		}
		dest := filepath.Join(targetDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return &vterrors.ShardFailure{Shard: shard, Cause: err}
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return &vterrors.ShardFailure{Shard: shard, Cause: err}
		}
	}

	// Replay the translog generation 0 that came over with the files; ops
	// the source accepts after the copy are not fetched here.
	if err := translog.ReadGeneration(targetDir, 0, applyOp); err != nil {
		return &vterrors.ShardFailure{Shard: shard, Cause: fmt.Errorf("replay tail: %w", err)}
	}

	log.Info().Str("index", indexUUID).Int("shard", shard).Msg("peer recovery complete")
	return nil
}

func (p *PeerRecovery) listRemote(ctx context.Context, addr, indexUUID string, shard int) ([]vindexpb.RecoveryFileMeta, error) {
	payload, err := transport.EncodePayload(vindexpb.RecoveryListRequest{IndexUUID: indexUUID, Shard: shard})
	if err != nil {
		return nil, err
	}
	respBytes, err := p.client.Invoke(ctx, addr, vindexpb.KindRecoveryList, payload, false)
	if err != nil {
		return nil, err
	}
	var resp vindexpb.RecoveryListResponse
	if err := transport.DecodePayload(respBytes, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (p *PeerRecovery) fetchFile(ctx context.Context, addr, indexUUID string, shard int, path string) ([]byte, error) {
	payload, err := transport.EncodePayload(vindexpb.RecoveryFileRequest{IndexUUID: indexUUID, Shard: shard, Path: path})
	if err != nil {
		return nil, err
	}
	respBytes, err := p.client.Invoke(ctx, addr, vindexpb.KindRecoveryFile, payload, true)
	if err != nil {
		return nil, err
	}
	var resp vindexpb.RecoveryFileResponse
	if err := transport.DecodePayload(respBytes, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func localChecksums(dir string) map[string]uint64 {
	out := map[string]uint64{}
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		out[rel] = xxhash.Sum64(data)
		return nil
	})
	return out
}

// RegisterServer installs the list/read-file handlers a recovering peer
// calls against this node when this node holds the source copy.
func RegisterServer(srv *transport.Server, src SourceLister) {
	srv.Handle(vindexpb.KindRecoveryList, func(ctx context.Context, payload []byte) ([]byte, error) {
		var req vindexpb.RecoveryListRequest
		if err := transport.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		files, err := src.ListFiles(ctx, req.IndexUUID, req.Shard)
		if err != nil {
			return nil, err
		}
		return transport.EncodePayload(vindexpb.RecoveryListResponse{Files: files})
	})
	srv.Handle(vindexpb.KindRecoveryFile, func(ctx context.Context, payload []byte) ([]byte, error) {
		var req vindexpb.RecoveryFileRequest
		if err := transport.DecodePayload(payload, &req); err != nil {
			return nil, err
		}
		data, err := src.ReadFile(ctx, req.IndexUUID, req.Shard, req.Path)
		if err != nil {
			return nil, err
		}
		return transport.EncodePayload(vindexpb.RecoveryFileResponse{Data: data})
	})
}
