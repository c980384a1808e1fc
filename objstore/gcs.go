package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/rudderlabs/rudder-go-kit/googleutil"
	"github.com/rudderlabs/rudder-go-kit/logger"
)

// GCS implements Store on a Google Cloud Storage bucket.
type GCS struct {
	bucket      string
	credentials string
	logger      logger.Logger

	clientMu sync.Mutex
	client   *storage.Client
}

// NewGCS creates a Store over the given bucket. credentials is a
// service-account JSON blob; empty means application default credentials.
func NewGCS(bucket, credentials string, log logger.Logger) *GCS {
	return &GCS{
		bucket:      bucket,
		credentials: credentials,
		logger:      log.Child("objstore"),
	}
}

func (g *GCS) getClient(ctx context.Context) (*storage.Client, error) {
	g.clientMu.Lock()
	defer g.clientMu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	var opts []option.ClientOption
	if !googleutil.ShouldSkipCredentialsInit(g.credentials) {
		if err := googleutil.CompatibleGoogleCredentialsJSON([]byte(g.credentials)); err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsJSON([]byte(g.credentials)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	g.client = client
	return g.client, nil
}

func (g *GCS) List(ctx context.Context, dir, pattern string) ([]FileInfo, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return nil, err
	}

	prefix := dirPrefix(dir)
	it := client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []FileInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		keys = append(keys, FileInfo{Name: attrs.Name, Size: attrs.Size})
	}
	return filterListing(prefix, pattern, keys)
}

func (g *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return rc, nil
}

func (g *GCS) MkdirAll(ctx context.Context, dir string) error {
	client, err := g.getClient(ctx)
	if err != nil {
		return err
	}
	w := client.Bucket(g.bucket).Object(dirPrefix(dir)).NewWriter(ctx)
	if err := w.Close(); err != nil {
		return fmt.Errorf("creating directory sentinel %s: %w", dir, err)
	}
	return nil
}

func (g *GCS) Exists(ctx context.Context, p string) (bool, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return false, err
	}

	_, err = client.Bucket(g.bucket).Object(p).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return false, fmt.Errorf("checking %s: %w", p, err)
	}

	// Fall back to a prefix probe so directories without sentinels still count.
	it := client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: dirPrefix(p)})
	_, err = it.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking prefix %s: %w", p, err)
	}
	return true, nil
}

func (g *GCS) DeleteAll(ctx context.Context, dir string) error {
	client, err := g.getClient(ctx)
	if err != nil {
		return err
	}

	prefix := dirPrefix(dir)
	it := client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("listing %s for delete: %w", prefix, err)
		}
		if err := client.Bucket(g.bucket).Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("deleting %s: %w", attrs.Name, err)
		}
	}
	g.logger.Infow("deleted export directory", "bucket", g.bucket, "dir", dir)
	return nil
}

func (g *GCS) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, name)
}
