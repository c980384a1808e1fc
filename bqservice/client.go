package bqservice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/rudderlabs/rudder-go-kit/googleutil"
	"github.com/rudderlabs/rudder-go-kit/logger"
)

// Client implements JobService against the real BigQuery API.
type Client struct {
	projectID   string
	credentials string
	logger      logger.Logger

	clientMu sync.Mutex
	client   *bigquery.Client
}

// NewClient creates a JobService for the given billing project. credentials is
// a service-account JSON blob; when empty, application default credentials are
// used. The underlying API client is created lazily on first use.
func NewClient(projectID, credentials string, log logger.Logger) *Client {
	return &Client{
		projectID:   projectID,
		credentials: credentials,
		logger:      log.Child("bqservice"),
	}
}

func (c *Client) getClient(ctx context.Context) (*bigquery.Client, error) {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	var opts []option.ClientOption
	if !googleutil.ShouldSkipCredentialsInit(c.credentials) {
		if err := googleutil.CompatibleGoogleCredentialsJSON([]byte(c.credentials)); err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsJSON([]byte(c.credentials)))
	}

	client, err := bigquery.NewClient(ctx, c.projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c.client = client
	return c.client, nil
}

func (c *Client) table(client *bigquery.Client, ref TableRef) *bigquery.Table {
	return client.DatasetInProject(ref.ProjectID, ref.DatasetID).Table(ref.TableID)
}

func (c *Client) GetTableStats(ctx context.Context, table TableRef) (TableStats, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return TableStats{}, err
	}
	md, err := c.table(client, table).Metadata(ctx)
	if err != nil {
		return TableStats{}, fmt.Errorf("fetching metadata for %s: %w", table, err)
	}
	return TableStats{
		RowCount: md.NumRows,
		ByteSize: uint64(md.NumBytes),
	}, nil
}

func (c *Client) SubmitQuery(ctx context.Context, query string, dst TableRef) (string, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return "", err
	}

	q := client.Query(query)
	q.Dst = c.table(client, dst)
	q.WriteDisposition = bigquery.WriteTruncate
	q.AllowLargeResults = true

	job, err := q.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("submitting query job: %w", err)
	}
	c.logger.Infow("submitted query job", "jobID", job.ID(), "destination", dst.String())
	return job.ID(), nil
}

func (c *Client) SubmitExtract(ctx context.Context, table TableRef, destinationURI string) (string, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return "", err
	}

	gcsRef := bigquery.NewGCSReference(destinationURI)
	gcsRef.DestinationFormat = bigquery.JSON

	job, err := c.table(client, table).ExtractorTo(gcsRef).Run(ctx)
	if err != nil {
		return "", fmt.Errorf("submitting extract job for %s: %w", table, err)
	}
	c.logger.Infow("submitted extract job", "jobID", job.ID(), "table", table.String(), "destination", destinationURI)
	return job.ID(), nil
}

func (c *Client) GetJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return JobStatus{}, err
	}
	job, err := client.JobFromID(ctx, jobID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("looking up job %s: %w", jobID, err)
	}
	status, err := job.Status(ctx)
	if err != nil {
		return JobStatus{}, fmt.Errorf("polling job %s: %w", jobID, err)
	}
	if !status.Done() {
		return JobStatus{State: JobRunning}, nil
	}
	if jobErr := status.Err(); jobErr != nil {
		return JobStatus{State: JobFailed, Err: jobErr}, nil
	}
	return JobStatus{State: JobSucceeded}, nil
}

func (c *Client) DeleteTable(ctx context.Context, table TableRef) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	if err := c.table(client, table).Delete(ctx); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting table %s: %w", table, err)
	}
	return nil
}

func (c *Client) TableExists(ctx context.Context, table TableRef) (bool, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return false, err
	}
	_, err = c.table(client, table).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
