// Package export drives remote export jobs from submission to completion and
// decides how the result is partitioned into shards.
package export

import (
	"context"
	"errors"
)

// ErrNotUsable is returned when export output is consumed before the export
// reached its usable point.
var ErrNotUsable = errors.New("export output not usable yet")

// Export is one export strategy: unsharded (single blocking job) or sharded
// (many concurrent jobs with overlapping consumption). An Export owns the
// remote jobs it submitted; their handles never leak past StatusProbe.
type Export interface {
	// BeginExport submits the export job(s) and returns without waiting for
	// any of them to finish.
	BeginExport(ctx context.Context) error
	// WaitForUsable blocks until the export output may be consumed. For the
	// sharded strategy that is immediately after submission; for the
	// unsharded strategy it means the single job reached terminal success.
	WaitForUsable(ctx context.Context) error
	// Descriptors returns one work-unit descriptor per shard. Sharded
	// exports can answer as soon as BeginExport returns; unsharded exports
	// only after WaitForUsable succeeded.
	Descriptors() []ShardDescriptor
	// StatusProbe returns the job-status probe for one shard's owning job.
	StatusProbe(shard int) JobProbe
}
