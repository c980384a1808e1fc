// Package objstore is the hierarchical path abstraction over the object store
// that export jobs write into. Paths are bucket-relative, slash-separated and
// never start with a slash. Stores are flat key spaces underneath: "directories"
// exist only as key prefixes plus an optional zero-byte "<dir>/" sentinel.
package objstore

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"
)

// FileInfo describes one listed object.
type FileInfo struct {
	// Name is the full bucket-relative path of the object.
	Name string
	Size int64
}

// Store is the object-store surface consumed by the export pipeline.
type Store interface {
	// List returns the direct children of dir whose base name matches the
	// glob pattern, sorted by name. Directory sentinels are filtered out.
	// A dir that does not exist lists as empty, not as an error.
	List(ctx context.Context, dir, pattern string) ([]FileInfo, error)
	// Open opens the object for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// MkdirAll materializes dir by writing a zero-byte "<dir>/" sentinel.
	MkdirAll(ctx context.Context, dir string) error
	// Exists reports whether p names an object or a non-empty prefix.
	Exists(ctx context.Context, p string) (bool, error)
	// DeleteAll removes every object under dir, including the sentinel.
	DeleteAll(ctx context.Context, dir string) error
	// URI returns the provider URL for a bucket-relative path, in the form
	// the remote export service expects as a destination (e.g. gs://...).
	URI(name string) string
}

// dirPrefix normalizes dir into a trailing-slash key prefix.
func dirPrefix(dir string) string {
	return strings.TrimSuffix(dir, "/") + "/"
}

// filterListing keeps direct children of prefix matching pattern and sorts
// them by name. Zero-byte sentinel keys ("<dir>/") are dropped.
func filterListing(prefix, pattern string, keys []FileInfo) ([]FileInfo, error) {
	out := make([]FileInfo, 0, len(keys))
	for _, fi := range keys {
		if !strings.HasPrefix(fi.Name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(fi.Name, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		ok, err := path.Match(pattern, rest)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
