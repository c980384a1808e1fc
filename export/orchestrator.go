package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/bqexport/bqservice"
	"github.com/rudderlabs/bqexport/objstore"
)

// State is the orchestrator's position in its lifecycle. Transitions are
// strictly forward, except that Failed is reachable from any non-terminal
// state and is terminal.
type State int

const (
	StateNotStarted State = iota
	StateTableReady
	StateExporting
	StateUsable
	StateCleanedUp
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateTableReady:
		return "table_ready"
	case StateExporting:
		return "exporting"
	case StateUsable:
		return "usable"
	case StateCleanedUp:
		return "cleaned_up"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ErrInvalidState is returned when an orchestrator step is invoked out of
// order, including any step after Failed.
var ErrInvalidState = errors.New("invalid orchestrator state")

// OrchestratorOptions carries the per-job inputs of one orchestration.
type OrchestratorOptions struct {
	// Query, when non-empty, is materialized into Table during Prepare.
	// When empty, Table is the caller-supplied source table and Prepare is a
	// no-op.
	Query string
	// Table is the export source: either the pre-existing source table or the
	// intermediate table the query materializes into.
	Table bqservice.TableRef
	// ExportRoot is the bucket-relative root directory of this export run.
	ExportRoot string
	// DeleteIntermediateTable removes the query-materialized table on cleanup.
	DeleteIntermediateTable bool
	// DeleteExportFiles removes the export root recursively on cleanup.
	DeleteExportFiles bool
}

// Orchestrator is the top-level state machine of one export run: optionally
// materialize a query result, drive the chosen export strategy, signal
// usability, then clean up.
type Orchestrator struct {
	svc     bqservice.JobService
	store   objstore.Store
	exp     Export
	opts    OrchestratorOptions
	backoff BackoffSettings
	logger  logger.Logger
	stats   stats.Stats

	state State
	cause error
}

func NewOrchestrator(
	conf *config.Config,
	log logger.Logger,
	statsFactory stats.Stats,
	svc bqservice.JobService,
	store objstore.Store,
	exp Export,
	opts OrchestratorOptions,
) *Orchestrator {
	return &Orchestrator{
		svc:     svc,
		store:   store,
		exp:     exp,
		opts:    opts,
		backoff: BackoffFromConfig(conf),
		logger:  log.Child("orchestrator").With("table", opts.Table.String()),
		stats:   statsFactory,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return o.state }

// Cause returns the failure that moved the orchestrator to Failed, if any.
func (o *Orchestrator) Cause() error { return o.cause }

func (o *Orchestrator) require(s State) error {
	if o.state == StateFailed {
		return fmt.Errorf("%w: already failed: %w", ErrInvalidState, o.cause)
	}
	if o.state != s {
		return fmt.Errorf("%w: in %s, want %s", ErrInvalidState, o.state, s)
	}
	return nil
}

func (o *Orchestrator) fail(step string, err error) error {
	o.state = StateFailed
	o.cause = fmt.Errorf("%s: %w", step, err)
	o.logger.Errorw("orchestration failed", "step", step, "error", err)
	return o.cause
}

// Prepare materializes the configured query into the intermediate table,
// blocking until the query job is terminal. Without a query it only advances
// the state machine.
func (o *Orchestrator) Prepare(ctx context.Context) error {
	if err := o.require(StateNotStarted); err != nil {
		return err
	}
	if o.opts.Query == "" {
		o.state = StateTableReady
		return nil
	}

	jobID, err := o.svc.SubmitQuery(ctx, o.opts.Query, o.opts.Table)
	if err != nil {
		return o.fail("submitting query", err)
	}
	probe := func(ctx context.Context) (bqservice.JobStatus, error) {
		return o.svc.GetJobStatus(ctx, jobID)
	}
	status, err := PollJobUntilTerminal(ctx, probe, o.backoff.New(), o.logger)
	if err != nil {
		return o.fail("waiting for query job", err)
	}
	if failure := status.FailureError(); failure != nil {
		return o.fail("query job", failure)
	}

	o.logger.Infow("intermediate table materialized", "jobID", jobID)
	o.state = StateTableReady
	return nil
}

// BeginExport delegates to the export strategy; non-blocking.
func (o *Orchestrator) BeginExport(ctx context.Context) error {
	if err := o.require(StateTableReady); err != nil {
		return err
	}
	if err := o.exp.BeginExport(ctx); err != nil {
		return o.fail("beginning export", err)
	}
	o.state = StateExporting
	return nil
}

// WaitForUsableInput blocks until the export output may be consumed.
func (o *Orchestrator) WaitForUsableInput(ctx context.Context) error {
	if err := o.require(StateExporting); err != nil {
		return err
	}
	if err := o.exp.WaitForUsable(ctx); err != nil {
		return o.fail("waiting for usable input", err)
	}
	o.state = StateUsable
	return nil
}

// Cleanup applies the two independent deletion flags: the intermediate table
// (only if a query materialized one) and the export files. It is callable once
// from Usable or Failed. Cleanup problems are reported but never roll back
// already-consumed data; the orchestrator still moves to CleanedUp.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	if o.state != StateUsable && o.state != StateFailed {
		return fmt.Errorf("%w: cleanup in %s", ErrInvalidState, o.state)
	}

	var errs []error
	if o.opts.Query != "" {
		errs = append(errs, o.cleanupIntermediateTable(ctx))
	}
	if o.opts.DeleteExportFiles {
		if err := o.store.DeleteAll(ctx, o.opts.ExportRoot); err != nil {
			errs = append(errs, fmt.Errorf("deleting export files: %w", err))
		} else {
			o.logger.Infow("deleted export files", "root", o.opts.ExportRoot)
		}
	}

	o.state = StateCleanedUp
	if err := errors.Join(errs...); err != nil {
		o.stats.NewTaggedStat("bqexport_cleanup_runs", stats.CountType, stats.Tags{"outcome": "partial"}).Increment()
		o.logger.Warnw("cleanup finished with errors", "error", err)
		return err
	}
	o.stats.NewTaggedStat("bqexport_cleanup_runs", stats.CountType, stats.Tags{"outcome": "success"}).Increment()
	return nil
}

// cleanupIntermediateTable checks, then acts. The check-then-delete pair is
// at-least-once: the table may vanish between the two calls and that is fine.
func (o *Orchestrator) cleanupIntermediateTable(ctx context.Context) error {
	exists, err := o.svc.TableExists(ctx, o.opts.Table)
	if err != nil {
		return fmt.Errorf("checking intermediate table: %w", err)
	}
	if !o.opts.DeleteIntermediateTable {
		o.logger.Infow("leaving intermediate table in place", "table", o.opts.Table.String(), "exists", exists)
		return nil
	}
	if !exists {
		return nil
	}
	if err := o.svc.DeleteTable(ctx, o.opts.Table); err != nil {
		return fmt.Errorf("deleting intermediate table: %w", err)
	}
	o.logger.Infow("deleted intermediate table", "table", o.opts.Table.String())
	return nil
}
