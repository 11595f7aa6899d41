package recovery

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/vindex/internal/transport"
	"github.com/dreamware/vindex/internal/transport/vindexpb"
	"github.com/dreamware/vindex/internal/translog"
)

type fakeSource struct {
	files map[string][]byte
}

func (f *fakeSource) ListFiles(ctx context.Context, indexUUID string, shard int) ([]vindexpb.RecoveryFileMeta, error) {
	var out []vindexpb.RecoveryFileMeta
	for path, data := range f.files {
		out = append(out, vindexpb.RecoveryFileMeta{
			Path:     path,
			Checksum: xxhash.Sum64(data),
			Size:     int64(len(data)),
		})
	}
	return out, nil
}

func (f *fakeSource) ReadFile(ctx context.Context, indexUUID string, shard int, path string) ([]byte, error) {
	return f.files[path], nil
}

func startTestServer(t *testing.T, src SourceLister) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := transport.NewServer()
	RegisterServer(srv, src)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func TestPeerRecoveryRunFetchesMissingFiles(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{
		"segment-0.dat": []byte("segment data one"),
		"segment-1.dat": []byte("segment data two"),
	}}
	addr := startTestServer(t, src)

	client := transport.NewClient()
	t.Cleanup(func() { _ = client.Close() })
	rec := New(client)

	targetDir := t.TempDir()
	var applied []translog.Op
	err := rec.Run(context.Background(), addr, "idx-uuid", 0, targetDir, func(op translog.Op) error {
		applied = append(applied, op)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, applied)

	for path, data := range src.files {
		got, readErr := os.ReadFile(filepath.Join(targetDir, path))
		require.NoError(t, readErr)
		assert.Equal(t, data, got)
	}
}

func TestPeerRecoveryRunSkipsFilesAlreadyPresentWithMatchingChecksum(t *testing.T) {
	data := []byte("already here")
	src := &fakeSource{files: map[string][]byte{"present.dat": data}}
	addr := startTestServer(t, src)

	targetDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(targetDir, "present.dat"), data, 0o644))

	client := transport.NewClient()
	t.Cleanup(func() { _ = client.Close() })
	rec := New(client)

	err := rec.Run(context.Background(), addr, "idx-uuid", 0, targetDir, func(translog.Op) error { return nil })
	require.NoError(t, err)

	got, readErr := os.ReadFile(filepath.Join(targetDir, "present.dat"))
	require.NoError(t, readErr)
	assert.Equal(t, data, got)
}

func TestLocalChecksumsWalksDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dat"), []byte("aaa"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.dat"), []byte("bbb"), 0o644))

	sums := localChecksums(dir)
	require.Len(t, sums, 2)
	assert.Equal(t, xxhash.Sum64([]byte("aaa")), sums["a.dat"])
	assert.Equal(t, xxhash.Sum64([]byte("bbb")), sums[filepath.Join("sub", "b.dat")])
}

func TestLocalChecksumsEmptyDirectory(t *testing.T) {
	sums := localChecksums(t.TempDir())
	assert.Empty(t, sums)
}
