package export

import (
	"fmt"
	"path"
)

// Export file naming is a wire-format contract of the export root directory:
// shard directories are "shard-<index>" and export files inside them are
// "data-<seq>.json" with a fixed-width, zero-padded sequence number, so that
// lexicographic file-name order equals production order.
const (
	// FilePattern matches the export files the remote service writes.
	FilePattern = "data-*.json"
	// fileWildcard is the destination pattern handed to the export service;
	// it replaces '*' with zero-padded sequence numbers.
	fileWildcard = "data-*.json"
)

// ShardDescriptor identifies one shard's output as a self-contained work
// unit. It is handed to the external scheduler, which assigns it to an
// execution context; it is read-only after creation and JSON-serializable.
type ShardDescriptor struct {
	// Dir is the bucket-relative shard output directory.
	Dir string `json:"dir"`
	// Pattern is the glob the shard's files match within Dir.
	Pattern string `json:"pattern"`
	// Index is the shard ordinal in [0, shardCount).
	Index int `json:"index"`
}

func (d ShardDescriptor) String() string {
	return fmt.Sprintf("shard %d at %s/%s", d.Index, d.Dir, d.Pattern)
}

// shardDir returns the output directory for one shard of a sharded export.
func shardDir(root string, index int) string {
	return path.Join(root, fmt.Sprintf("shard-%d", index))
}
