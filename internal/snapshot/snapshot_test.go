package snapshot

import (
	"context"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu        sync.Mutex
	objects   map[uint64][]byte
	manifests map[string]Manifest
}

func newMemRepo() *memRepo {
	return &memRepo{objects: map[uint64][]byte{}, manifests: map[string]Manifest{}}
}

func (r *memRepo) Has(ctx context.Context, indexUUID string, shard int, checksum uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.objects[checksum]
	return ok, nil
}

func (r *memRepo) Put(ctx context.Context, indexUUID string, shard int, checksum uint64, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[checksum] = data
	return nil
}

func (r *memRepo) Get(ctx context.Context, indexUUID string, shard int, checksum uint64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objects[checksum], nil
}

func (r *memRepo) PutManifest(ctx context.Context, name string, m Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifests[name] = m
	return nil
}

func (r *memRepo) GetManifest(ctx context.Context, name string) (Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifests[name], nil
}

func TestTakeUploadsOnlyMissingFiles(t *testing.T) {
	repo := newMemRepo()
	s := New(repo)

	files := map[string][]byte{
		"a.seg": []byte("alpha data"),
		"b.seg": []byte("beta data"),
	}
	read := func(p string) ([]byte, error) { return files[p], nil }

	m, err := s.Take(context.Background(), "snap-1", "idx-uuid", 0, []string{"a.seg", "b.seg"}, read)
	require.NoError(t, err)
	assert.Len(t, m.Files, 2)
	assert.Len(t, repo.objects, 2)

	// Re-taking with one file unchanged should skip re-uploading it, so the
	// repository's object count does not change.
	m2, err := s.Take(context.Background(), "snap-2", "idx-uuid", 0, []string{"a.seg"}, read)
	require.NoError(t, err)
	assert.Len(t, m2.Files, 1)
	assert.Len(t, repo.objects, 2)
}

func TestRestoreWritesEveryManifestFile(t *testing.T) {
	repo := newMemRepo()
	s := New(repo)

	files := map[string][]byte{"a.seg": []byte("alpha data")}
	_, err := s.Take(context.Background(), "snap-1", "idx-uuid", 0, []string{"a.seg"}, func(p string) ([]byte, error) { return files[p], nil })
	require.NoError(t, err)

	written := map[string][]byte{}
	err = s.Restore(context.Background(), "snap-1", func(path string, data []byte) error {
		written[path] = data
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, files["a.seg"], written["a.seg"])
}

func TestManifestBytesRoundTrip(t *testing.T) {
	m := Manifest{
		IndexUUID: "idx-uuid",
		Shard:     2,
		Files:     []FileRef{{Path: "a.seg", Checksum: xxhash.Sum64([]byte("alpha"))}},
	}
	data, err := ManifestBytes(m)
	require.NoError(t, err)

	decoded, err := ManifestFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}
