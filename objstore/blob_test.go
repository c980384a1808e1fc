package objstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

func openTestBucket(t *testing.T) (*blob.Bucket, *Blob) {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })
	return bucket, NewBlob(bucket, "mem://test-bucket/")
}

func writeAll(t *testing.T, bucket *blob.Bucket, keys map[string]string) {
	t.Helper()
	for key, body := range keys {
		require.NoError(t, bucket.WriteAll(context.Background(), key, []byte(body), nil))
	}
}

func names(infos []FileInfo) []string {
	out := make([]string, 0, len(infos))
	for _, fi := range infos {
		out = append(out, fi.Name)
	}
	return out
}

func TestBlobList(t *testing.T) {
	ctx := context.Background()
	bucket, store := openTestBucket(t)
	writeAll(t, bucket, map[string]string{
		"run/shard-0/data-000000000001.json": "b",
		"run/shard-0/data-000000000000.json": "a",
		"run/shard-0/manifest.txt":           "x",
		"run/shard-0/nested/data-9.json":     "deep",
		"run/shard-1/data-000000000000.json": "other shard",
	})
	// Directory sentinel must never list as a file.
	require.NoError(t, store.MkdirAll(ctx, "run/shard-0"))

	files, err := store.List(ctx, "run/shard-0", "data-*.json")
	require.NoError(t, err)
	require.Equal(t, []string{
		"run/shard-0/data-000000000000.json",
		"run/shard-0/data-000000000001.json",
	}, names(files))
	require.Equal(t, int64(1), files[0].Size)
}

func TestBlobListMissingDirIsEmpty(t *testing.T) {
	_, store := openTestBucket(t)
	files, err := store.List(context.Background(), "does/not/exist", "*")
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestBlobOpen(t *testing.T) {
	ctx := context.Background()
	bucket, store := openTestBucket(t)
	writeAll(t, bucket, map[string]string{"dir/file.json": "{\"a\":1}\n"})

	rc, err := store.Open(ctx, "dir/file.json")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n", string(body))

	_, err = store.Open(ctx, "dir/absent.json")
	require.Error(t, err)
}

func TestBlobExists(t *testing.T) {
	ctx := context.Background()
	bucket, store := openTestBucket(t)
	writeAll(t, bucket, map[string]string{"dir/sub/file.json": "x"})

	for p, want := range map[string]bool{
		"dir/sub/file.json": true,
		"dir/sub":           true, // non-empty prefix counts
		"dir":               true,
		"dir/other":         false,
		"elsewhere":         false,
	} {
		got, err := store.Exists(ctx, p)
		require.NoError(t, err)
		require.Equal(t, want, got, p)
	}
}

func TestBlobMkdirAllThenExists(t *testing.T) {
	ctx := context.Background()
	_, store := openTestBucket(t)

	exists, err := store.Exists(ctx, "fresh/dir")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.MkdirAll(ctx, "fresh/dir"))

	exists, err = store.Exists(ctx, "fresh/dir")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestBlobDeleteAll(t *testing.T) {
	ctx := context.Background()
	bucket, store := openTestBucket(t)
	writeAll(t, bucket, map[string]string{
		"run/shard-0/data-0.json": "a",
		"run/shard-0/data-1.json": "b",
		"run/shard-1/data-0.json": "keep",
	})
	require.NoError(t, store.MkdirAll(ctx, "run/shard-0"))

	require.NoError(t, store.DeleteAll(ctx, "run/shard-0"))

	exists, err := store.Exists(ctx, "run/shard-0")
	require.NoError(t, err)
	require.False(t, exists)

	// Siblings are untouched.
	exists, err = store.Exists(ctx, "run/shard-1/data-0.json")
	require.NoError(t, err)
	require.True(t, exists)

	// Deleting an already-empty dir is not an error.
	require.NoError(t, store.DeleteAll(ctx, "run/shard-0"))
}

func TestBlobURI(t *testing.T) {
	_, store := openTestBucket(t)
	require.Equal(t, "mem://test-bucket/run/shard-0/data-*.json", store.URI("run/shard-0/data-*.json"))
}

func TestFilterListing(t *testing.T) {
	keys := []FileInfo{
		{Name: "dir/"},
		{Name: "dir/b.json", Size: 2},
		{Name: "dir/a.json", Size: 1},
		{Name: "dir/skip.txt", Size: 3},
		{Name: "dir/sub/c.json", Size: 4},
		{Name: "other/z.json", Size: 5},
	}
	out, err := filterListing("dir/", "*.json", keys)
	require.NoError(t, err)
	require.Equal(t, []string{"dir/a.json", "dir/b.json"}, names(out))

	_, err = filterListing("dir/", "[", keys)
	require.Error(t, err)
}
