package export

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/bqexport/bqservice"
	"github.com/rudderlabs/bqexport/objstore"
)

// UnshardedExport submits exactly one export job targeting a single
// destination directory. Because there is only one shard, "usable" means
// "complete": WaitForUsable blocks until the job is terminal, so consumers
// never observe a partially-written directory.
type UnshardedExport struct {
	svc     bqservice.JobService
	store   objstore.Store
	table   bqservice.TableRef
	root    string
	backoff BackoffSettings
	logger  logger.Logger

	jobID  string
	usable bool
}

func NewUnshardedExport(
	conf *config.Config,
	log logger.Logger,
	svc bqservice.JobService,
	store objstore.Store,
	table bqservice.TableRef,
	root string,
) *UnshardedExport {
	return &UnshardedExport{
		svc:     svc,
		store:   store,
		table:   table,
		root:    root,
		backoff: BackoffFromConfig(conf),
		logger:  log.Child("export").With("mode", "unsharded", "table", table.String()),
	}
}

func (e *UnshardedExport) BeginExport(ctx context.Context) error {
	if e.jobID != "" {
		return errors.New("export already begun")
	}
	if err := e.store.MkdirAll(ctx, e.root); err != nil {
		return fmt.Errorf("creating export root: %w", err)
	}

	destination := e.store.URI(path.Join(e.root, fileWildcard))
	jobID, err := e.svc.SubmitExtract(ctx, e.table, destination)
	if err != nil {
		return fmt.Errorf("submitting export job: %w", err)
	}
	e.jobID = jobID
	e.logger.Infow("export job submitted", "jobID", jobID, "destination", destination)
	return nil
}

func (e *UnshardedExport) WaitForUsable(ctx context.Context) error {
	if e.jobID == "" {
		return errors.New("export not begun")
	}
	status, err := PollJobUntilTerminal(ctx, e.StatusProbe(0), e.backoff.New(), e.logger)
	if err != nil {
		return fmt.Errorf("waiting for export job %s: %w", e.jobID, err)
	}
	if failure := status.FailureError(); failure != nil {
		return fmt.Errorf("export job %s: %w", e.jobID, failure)
	}
	e.usable = true
	e.logger.Infow("export job complete", "jobID", e.jobID)
	return nil
}

func (e *UnshardedExport) Descriptors() []ShardDescriptor {
	if !e.usable {
		return nil
	}
	return []ShardDescriptor{{Dir: e.root, Pattern: FilePattern, Index: 0}}
}

func (e *UnshardedExport) StatusProbe(int) JobProbe {
	jobID := e.jobID
	return func(ctx context.Context) (bqservice.JobStatus, error) {
		return e.svc.GetJobStatus(ctx, jobID)
	}
}
