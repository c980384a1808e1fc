package inputformat

import (
	"fmt"

	"github.com/rudderlabs/rudder-go-kit/config"

	"github.com/rudderlabs/bqexport/bqservice"
)

// Settings are the consumed (not owned) configuration of one export job.
type Settings struct {
	// Query is optional; when set, it is materialized into Table before the
	// export begins.
	Query string
	// Table is the export source as "project.dataset.table": the source
	// table itself, or the destination of the optional query.
	Table bqservice.TableRef
	// ExportRootPath is the bucket-relative directory under which each run
	// creates its own unique root.
	ExportRootPath string
	// ParallelismHint caps the shard count for sharded exports.
	ParallelismHint uint32
	// ShardedExport selects the sharded strategy (overlapping consumption)
	// over the single blocking export.
	ShardedExport bool
	// DeleteIntermediateTable and DeleteExportFiles govern cleanup.
	// They are orthogonal; all four combinations are valid.
	DeleteIntermediateTable bool
	DeleteExportFiles       bool
}

// SettingsFromConfig resolves the BQExport.* configuration keys.
func SettingsFromConfig(conf *config.Config) (Settings, error) {
	tableRef := conf.GetString("BQExport.sourceTable", "")
	table, err := bqservice.ParseTableRef(tableRef)
	if err != nil {
		return Settings{}, fmt.Errorf("BQExport.sourceTable: %w", err)
	}

	hint := conf.GetInt("BQExport.parallelismHint", 4)
	if hint < 1 {
		return Settings{}, fmt.Errorf("BQExport.parallelismHint must be positive, got %d", hint)
	}

	return Settings{
		Query:                   conf.GetString("BQExport.query", ""),
		Table:                   table,
		ExportRootPath:          conf.GetString("BQExport.exportRootPath", "bqexport"),
		ParallelismHint:         uint32(hint),
		ShardedExport:           conf.GetBool("BQExport.enableShardedExport", false),
		DeleteIntermediateTable: conf.GetBool("BQExport.deleteIntermediateTable", true),
		DeleteExportFiles:       conf.GetBool("BQExport.deleteExportFiles", true),
	}, nil
}
