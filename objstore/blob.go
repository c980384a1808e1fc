package objstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Blob implements Store on a gocloud.dev bucket. It serves any provider the
// blob drivers support; tests use it with memblob.
type Blob struct {
	bucket  *blob.Bucket
	baseURI string
}

// NewBlob wraps an open bucket. baseURI is the provider URL prefix used to
// build destination URIs, e.g. "gs://my-bucket".
func NewBlob(bucket *blob.Bucket, baseURI string) *Blob {
	return &Blob{
		bucket:  bucket,
		baseURI: strings.TrimSuffix(baseURI, "/"),
	}
}

func (b *Blob) List(ctx context.Context, dir, pattern string) ([]FileInfo, error) {
	prefix := dirPrefix(dir)
	it := b.bucket.List(&blob.ListOptions{Prefix: prefix})

	var keys []FileInfo
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		keys = append(keys, FileInfo{Name: obj.Key, Size: obj.Size})
	}
	return filterListing(prefix, pattern, keys)
}

func (b *Blob) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := b.bucket.NewReader(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return r, nil
}

func (b *Blob) MkdirAll(ctx context.Context, dir string) error {
	if err := b.bucket.WriteAll(ctx, dirPrefix(dir), nil, nil); err != nil {
		return fmt.Errorf("creating directory sentinel %s: %w", dir, err)
	}
	return nil
}

func (b *Blob) Exists(ctx context.Context, p string) (bool, error) {
	ok, err := b.bucket.Exists(ctx, p)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", p, err)
	}
	if ok {
		return true, nil
	}
	it := b.bucket.List(&blob.ListOptions{Prefix: dirPrefix(p)})
	_, err = it.Next(ctx)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking prefix %s: %w", p, err)
	}
	return true, nil
}

func (b *Blob) DeleteAll(ctx context.Context, dir string) error {
	prefix := dirPrefix(dir)
	it := b.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("listing %s for delete: %w", prefix, err)
		}
		if err := b.bucket.Delete(ctx, obj.Key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return fmt.Errorf("deleting %s: %w", obj.Key, err)
		}
	}
	return nil
}

func (b *Blob) URI(name string) string {
	return b.baseURI + "/" + name
}
