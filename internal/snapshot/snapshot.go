// Package snapshot implements content-addressed, incremental shard
// snapshots to a remote object store. Objects are laid out under
// indices/<index-uuid>/<shard-number>/<checksum>, and a snapshot only
// uploads files the repository doesn't already have.
package snapshot

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/dreamware/vindex/internal/vlog"
	"github.com/dreamware/vindex/internal/vmetrics"
)

var log = vlog.Component("snapshot")

// FileRef is one file captured by a snapshot, addressed by its checksum.
type FileRef struct {
	Path     string
	Checksum uint64
}

// Manifest is the set of files that make up one shard's snapshot.
type Manifest struct {
	IndexUUID string
	Shard     int
	Files     []FileRef
}

// Repository stores and retrieves content-addressed shard snapshot objects.
type Repository interface {
	// Has reports whether an object with this checksum already exists,
	// letting a snapshot skip re-uploading unchanged files.
	Has(ctx context.Context, indexUUID string, shard int, checksum uint64) (bool, error)
	Put(ctx context.Context, indexUUID string, shard int, checksum uint64, data []byte) error
	Get(ctx context.Context, indexUUID string, shard int, checksum uint64) ([]byte, error)
	PutManifest(ctx context.Context, name string, m Manifest) error
	GetManifest(ctx context.Context, name string) (Manifest, error)
}

// FileSource reads the current bytes for a named file within one shard's
// data directory, supplied by the engine/translog layer being snapshotted.
type FileSource func(path string) ([]byte, error)

// Snapshotter takes and restores shard snapshots against a Repository.
type Snapshotter struct {
	repo Repository
}

// New constructs a Snapshotter backed by repo.
func New(repo Repository) *Snapshotter {
	return &Snapshotter{repo: repo}
}

// Take snapshots files (relative paths within the shard directory) named by
// paths, uploading only those whose checksum the repository doesn't already
// hold, then stores a manifest under name.
func (s *Snapshotter) Take(ctx context.Context, name, indexUUID string, shard int, paths []string, read FileSource) (Manifest, error) {
	m := Manifest{IndexUUID: indexUUID, Shard: shard}
	uploaded, skipped := 0, 0

	for _, p := range paths {
		data, err := read(p)
		if err != nil {
			return Manifest{}, fmt.Errorf("read %s: %w", p, err)
		}
		sum := xxhash.Sum64(data)
		m.Files = append(m.Files, FileRef{Path: p, Checksum: sum})

		has, err := s.repo.Has(ctx, indexUUID, shard, sum)
		if err != nil {
			return Manifest{}, fmt.Errorf("check %s: %w", p, err)
		}
		if has {
			skipped++
			continue
		}
		if err := s.repo.Put(ctx, indexUUID, shard, sum, data); err != nil {
			return Manifest{}, fmt.Errorf("put %s: %w", p, err)
		}
		uploaded++
	}

	if err := s.repo.PutManifest(ctx, name, m); err != nil {
		return Manifest{}, fmt.Errorf("put manifest %s: %w", name, err)
	}
	vmetrics.SnapshotFilesUploaded.Add(float64(uploaded))
	vmetrics.SnapshotFilesSkipped.Add(float64(skipped))
	log.Info().Str("snapshot", name).Str("index", indexUUID).Int("shard", shard).
		Int("uploaded", uploaded).Int("skipped", skipped).Msg("snapshot complete")
	return m, nil
}

// Restore fetches every file in the manifest named name and hands each one
// to write (relative path, bytes).
func (s *Snapshotter) Restore(ctx context.Context, name string, write func(path string, data []byte) error) error {
	m, err := s.repo.GetManifest(ctx, name)
	if err != nil {
		return fmt.Errorf("get manifest %s: %w", name, err)
	}
	for _, f := range m.Files {
		data, err := s.repo.Get(ctx, m.IndexUUID, m.Shard, f.Checksum)
		if err != nil {
			return fmt.Errorf("get %s: %w", f.Path, err)
		}
		if xxhash.Sum64(data) != f.Checksum {
			return fmt.Errorf("checksum mismatch restoring %s", f.Path)
		}
		if err := write(f.Path, data); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	log.Info().Str("snapshot", name).Int("files", len(m.Files)).Msg("restore complete")
	return nil
}

// ManifestBytes renders a Manifest as the gob payload repositories persist
// for PutManifest/GetManifest, kept alongside the package so implementations
// of Repository (e.g. s3repo) don't need to import encoding/gob themselves.
func ManifestBytes(m Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ManifestFromBytes parses bytes previously produced by ManifestBytes.
func ManifestFromBytes(data []byte) (Manifest, error) {
	var m Manifest
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
