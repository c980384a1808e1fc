// Package inputformat adapts an export run into work units for an external
// parallel scheduler: one descriptor per shard, one dynamic reader per
// descriptor, and a best-effort cleanup once the whole job is done.
package inputformat

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/bqexport/bqservice"
	"github.com/rudderlabs/bqexport/export"
	"github.com/rudderlabs/bqexport/objstore"
	"github.com/rudderlabs/bqexport/reader"
)

// InputFormat turns a configured export into schedulable work units.
type InputFormat struct {
	conf         *config.Config
	logger       logger.Logger
	statsFactory stats.Stats
	svc          bqservice.JobService
	store        objstore.Store
	settings     Settings

	root string
	exp  export.Export
	orch *export.Orchestrator
}

func New(
	conf *config.Config,
	log logger.Logger,
	statsFactory stats.Stats,
	svc bqservice.JobService,
	store objstore.Store,
	settings Settings,
) *InputFormat {
	return &InputFormat{
		conf:         conf,
		logger:       log.Child("inputformat"),
		statsFactory: statsFactory,
		svc:          svc,
		store:        store,
		settings:     settings,
	}
}

// GetSplits drives the orchestrator through prepare, export submission and
// the usable-input barrier, then returns one descriptor per shard. Planning
// and submission errors abort the whole job here, before any work unit
// reaches the scheduler.
func (f *InputFormat) GetSplits(ctx context.Context) ([]export.ShardDescriptor, error) {
	if f.orch != nil {
		return nil, errors.New("splits already computed")
	}

	// Every run gets its own root so that concurrent jobs sharing the
	// configured path never collide.
	f.root = path.Join(f.settings.ExportRootPath, "run-"+uuid.NewString())

	if f.settings.ShardedExport {
		f.exp = export.NewShardedExport(
			f.conf, f.logger, f.statsFactory,
			f.svc, f.store, f.settings.Table, f.root, f.settings.ParallelismHint,
		)
	} else {
		f.exp = export.NewUnshardedExport(
			f.conf, f.logger,
			f.svc, f.store, f.settings.Table, f.root,
		)
	}

	f.orch = export.NewOrchestrator(f.conf, f.logger, f.statsFactory, f.svc, f.store, f.exp, export.OrchestratorOptions{
		Query:                   f.settings.Query,
		Table:                   f.settings.Table,
		ExportRoot:              f.root,
		DeleteIntermediateTable: f.settings.DeleteIntermediateTable,
		DeleteExportFiles:       f.settings.DeleteExportFiles,
	})

	if err := f.orch.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("preparing export: %w", err)
	}
	if err := f.orch.BeginExport(ctx); err != nil {
		return nil, fmt.Errorf("beginning export: %w", err)
	}
	if err := f.orch.WaitForUsableInput(ctx); err != nil {
		return nil, fmt.Errorf("waiting for usable input: %w", err)
	}

	descriptors := f.exp.Descriptors()
	f.logger.Infow("computed splits", "count", len(descriptors), "root", f.root)
	return descriptors, nil
}

// CreateReader returns the dynamic reader for one work unit, wired to the
// owning job's status probe. Each reader runs in whatever execution context
// the external scheduler assigns it; readers share no mutable state.
func (f *InputFormat) CreateReader(desc export.ShardDescriptor) (*reader.DynamicReader, error) {
	if f.exp == nil || len(f.exp.Descriptors()) == 0 {
		return nil, export.ErrNotUsable
	}
	return reader.NewDynamicReader(
		f.conf, f.logger, f.statsFactory,
		f.store, desc, f.exp.StatusProbe(desc.Index), nil,
	), nil
}

// CleanupJob runs once after the job completes and applies the two
// independent deletion flags. Failures are reported but consumed data stays
// valid.
func (f *InputFormat) CleanupJob(ctx context.Context) error {
	if f.orch == nil {
		return errors.New("nothing to clean up")
	}
	return f.orch.Cleanup(ctx)
}

// Orchestrator exposes the underlying state machine, mainly for callers that
// need to inspect the failure cause.
func (f *InputFormat) Orchestrator() *export.Orchestrator {
	return f.orch
}
