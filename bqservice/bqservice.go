// Package bqservice wraps the BigQuery job and table surface consumed by the
// export pipeline. Components depend on the JobService capability interface;
// tests substitute a fake instead of the concrete client.
package bqservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrJobFailed is wrapped into any error caused by a remote job reaching its
// Failed terminal state. It is always fatal for the consumer of that job's
// output and must never be mistaken for a normal end-of-stream.
var ErrJobFailed = errors.New("bigquery job failed")

// TableRef identifies a BigQuery table.
type TableRef struct {
	ProjectID string
	DatasetID string
	TableID   string
}

func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.ProjectID, r.DatasetID, r.TableID)
}

// ParseTableRef parses a "project.dataset.table" reference.
func ParseTableRef(s string) (TableRef, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TableRef{}, fmt.Errorf("invalid table reference %q: want project.dataset.table", s)
	}
	return TableRef{ProjectID: parts[0], DatasetID: parts[1], TableID: parts[2]}, nil
}

// TableStats is a point-in-time snapshot of a table's size. It is fetched once
// per export decision and immutable afterwards.
type TableStats struct {
	RowCount uint64
	ByteSize uint64
}

// JobState is the lifecycle state of an async BigQuery job.
type JobState int

const (
	JobRunning JobState = iota
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Terminal reports whether no further state changes are expected.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobStatus is the result of a single status poll. Err carries the job's
// failure cause when State is JobFailed and is nil otherwise.
type JobStatus struct {
	State JobState
	Err   error
}

// FailureError returns the job's failure wrapped with ErrJobFailed, or nil if
// the job did not fail.
func (s JobStatus) FailureError() error {
	if s.State != JobFailed {
		return nil
	}
	if s.Err != nil {
		return fmt.Errorf("%w: %v", ErrJobFailed, s.Err)
	}
	return ErrJobFailed
}

// JobService is the capability surface of the remote query/export service.
// Submissions are fire-and-forget: they return a job ID without waiting for
// the job to make progress. Retrying a rejected submission is the remote
// client's business, not the caller's.
type JobService interface {
	// GetTableStats fetches a row/byte snapshot for the table.
	GetTableStats(ctx context.Context, table TableRef) (TableStats, error)
	// SubmitQuery submits a query job materializing its result into dst.
	SubmitQuery(ctx context.Context, query string, dst TableRef) (jobID string, err error)
	// SubmitExtract submits an export job writing the table as line-delimited
	// JSON files matching destinationURI (a gs://... pattern with a single '*').
	SubmitExtract(ctx context.Context, table TableRef, destinationURI string) (jobID string, err error)
	// GetJobStatus polls one job. A transport failure is returned as an error;
	// a job that itself failed is reported via JobStatus.
	GetJobStatus(ctx context.Context, jobID string) (JobStatus, error)
	// DeleteTable deletes the table.
	DeleteTable(ctx context.Context, table TableRef) error
	// TableExists reports whether the table currently exists.
	TableExists(ctx context.Context, table TableRef) (bool, error)
}
