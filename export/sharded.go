package export

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/bqexport/bqservice"
	"github.com/rudderlabs/bqexport/objstore"
)

// ShardedExport fetches table statistics, plans a shard count and submits one
// export job per shard, each targeting its own shard directory. Submission is
// non-blocking and descriptors are available as soon as BeginExport returns,
// so consumers can start polling shard directories while the jobs are still
// producing files. That overlap is the whole point of the sharded path.
type ShardedExport struct {
	svc             bqservice.JobService
	store           objstore.Store
	table           bqservice.TableRef
	root            string
	parallelismHint uint32
	logger          logger.Logger
	stats           stats.Stats

	plan        ShardPlan
	jobIDs      []string
	descriptors []ShardDescriptor
}

func NewShardedExport(
	conf *config.Config,
	log logger.Logger,
	statsFactory stats.Stats,
	svc bqservice.JobService,
	store objstore.Store,
	table bqservice.TableRef,
	root string,
	parallelismHint uint32,
) *ShardedExport {
	return &ShardedExport{
		svc:             svc,
		store:           store,
		table:           table,
		root:            root,
		parallelismHint: parallelismHint,
		logger:          log.Child("export").With("mode", "sharded", "table", table.String()),
		stats:           statsFactory,
	}
}

func (e *ShardedExport) BeginExport(ctx context.Context) error {
	if e.jobIDs != nil {
		return errors.New("export already begun")
	}

	tableStats, err := e.svc.GetTableStats(ctx, e.table)
	if err != nil {
		return fmt.Errorf("fetching table statistics: %w", err)
	}
	plan, err := PlanShards(tableStats, e.parallelismHint, true)
	if err != nil {
		return fmt.Errorf("planning shards: %w", err)
	}
	e.plan = plan
	e.logger.Infow("planned sharded export",
		"shards", plan.ShardCount,
		"estimatedFiles", plan.EstimatedFileCount,
		"rows", tableStats.RowCount,
		"bytes", tableStats.ByteSize,
	)

	if err := e.store.MkdirAll(ctx, e.root); err != nil {
		return fmt.Errorf("creating export root: %w", err)
	}

	n := int(plan.ShardCount)
	jobIDs := make([]string, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			dir := shardDir(e.root, i)
			if err := e.store.MkdirAll(gctx, dir); err != nil {
				return fmt.Errorf("creating shard directory %s: %w", dir, err)
			}
			destination := e.store.URI(path.Join(dir, fileWildcard))
			jobID, err := e.svc.SubmitExtract(gctx, e.table, destination)
			if err != nil {
				return fmt.Errorf("submitting export job for shard %d: %w", i, err)
			}
			jobIDs[i] = jobID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.jobIDs = jobIDs
	e.descriptors = lo.Times(n, func(i int) ShardDescriptor {
		return ShardDescriptor{Dir: shardDir(e.root, i), Pattern: FilePattern, Index: i}
	})
	e.stats.NewTaggedStat("bqexport_jobs_submitted", stats.CountType, stats.Tags{"mode": "sharded"}).Count(n)
	e.logger.Infow("all shard export jobs submitted", "jobs", n)
	return nil
}

// WaitForUsable returns as soon as descriptors exist: shard directories may be
// consumed while their jobs are still running.
func (e *ShardedExport) WaitForUsable(context.Context) error {
	if e.jobIDs == nil {
		return errors.New("export not begun")
	}
	return nil
}

func (e *ShardedExport) Descriptors() []ShardDescriptor {
	return e.descriptors
}

// Plan returns the shard plan computed by BeginExport.
func (e *ShardedExport) Plan() ShardPlan {
	return e.plan
}

func (e *ShardedExport) StatusProbe(shard int) JobProbe {
	jobID := e.jobIDs[shard]
	return func(ctx context.Context) (bqservice.JobStatus, error) {
		return e.svc.GetJobStatus(ctx, jobID)
	}
}
