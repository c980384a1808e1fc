package export

import (
	"errors"
	"fmt"

	"github.com/rudderlabs/rudder-go-kit/bytesize"

	"github.com/rudderlabs/bqexport/bqservice"
)

// DefaultTargetShardSizeBytes is the amount of table data one shard is sized
// for when estimating how many export files a shard will receive.
const DefaultTargetShardSizeBytes = 256 * bytesize.MB

// ErrInvalidStats reports table statistics the planner cannot work with.
var ErrInvalidStats = errors.New("invalid table statistics")

// ShardPlan is the immutable outcome of one planning decision.
type ShardPlan struct {
	ShardCount uint32
	// EstimatedFileCount is the size-based estimate of how many export files
	// the whole table will produce. Diagnostic only; it never pushes the
	// shard count below min(hint, rows).
	EstimatedFileCount uint64
}

// PlanShards decides how many shards an export should produce. With sharding
// disabled the answer is always one blocking export. With sharding enabled the
// count is min(parallelismHint, rowCount): a shard with zero rows is useless
// and indistinguishable from a failed one, and the caller's parallelism is a
// hard cap even when the data would justify more shards.
//
// Pure and deterministic; safe to unit-test without any remote service.
func PlanShards(stats bqservice.TableStats, parallelismHint uint32, shardedEnabled bool) (ShardPlan, error) {
	if !shardedEnabled {
		return ShardPlan{ShardCount: 1}, nil
	}
	if stats.RowCount < 1 {
		return ShardPlan{}, fmt.Errorf("%w: table has no rows", ErrInvalidStats)
	}
	if parallelismHint < 1 {
		return ShardPlan{}, fmt.Errorf("%w: parallelism hint %d", ErrInvalidStats, parallelismHint)
	}

	estimatedFiles := (stats.ByteSize + uint64(DefaultTargetShardSizeBytes) - 1) / uint64(DefaultTargetShardSizeBytes)
	if estimatedFiles < 1 {
		estimatedFiles = 1
	}

	count := uint64(parallelismHint)
	if stats.RowCount < count {
		count = stats.RowCount
	}

	return ShardPlan{
		ShardCount:         uint32(count),
		EstimatedFileCount: estimatedFiles,
	}, nil
}
