package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/bytesize"

	"github.com/rudderlabs/bqexport/bqservice"
)

func TestPlanShards(t *testing.T) {
	testCases := []struct {
		name          string
		stats         bqservice.TableStats
		hint          uint32
		sharded       bool
		expectedCount uint32
	}{
		{
			name:          "sharding disabled always yields one shard",
			stats:         bqservice.TableStats{RowCount: 99999, ByteSize: 8 * uint64(bytesize.GB)},
			hint:          16,
			sharded:       false,
			expectedCount: 1,
		},
		{
			name:          "large table capped by parallelism hint",
			stats:         bqservice.TableStats{RowCount: 99999, ByteSize: 8 * uint64(bytesize.GB)},
			hint:          3,
			sharded:       true,
			expectedCount: 3,
		},
		{
			name:          "tiny table capped by row count",
			stats:         bqservice.TableStats{RowCount: 2, ByteSize: 1},
			hint:          3,
			sharded:       true,
			expectedCount: 2,
		},
		{
			name:          "single row yields single shard",
			stats:         bqservice.TableStats{RowCount: 1, ByteSize: uint64(bytesize.TB)},
			hint:          64,
			sharded:       true,
			expectedCount: 1,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := PlanShards(tc.stats, tc.hint, tc.sharded)
			require.NoError(t, err)
			require.Equal(t, tc.expectedCount, plan.ShardCount)
		})
	}
}

func TestPlanShardsBounds(t *testing.T) {
	// The count always lands in [1, min(hint, rowCount)], whatever the size.
	for _, rows := range []uint64{1, 2, 7, 1000, 1 << 40} {
		for _, bytes := range []uint64{0, 1, uint64(bytesize.MB), 8 * uint64(bytesize.GB)} {
			for _, hint := range []uint32{1, 3, 64} {
				plan, err := PlanShards(bqservice.TableStats{RowCount: rows, ByteSize: bytes}, hint, true)
				require.NoError(t, err)

				upper := uint64(hint)
				if rows < upper {
					upper = rows
				}
				require.GreaterOrEqual(t, plan.ShardCount, uint32(1))
				require.LessOrEqual(t, uint64(plan.ShardCount), upper)
			}
		}
	}
}

func TestPlanShardsInvalidStats(t *testing.T) {
	_, err := PlanShards(bqservice.TableStats{RowCount: 0, ByteSize: 100}, 3, true)
	require.ErrorIs(t, err, ErrInvalidStats)

	_, err = PlanShards(bqservice.TableStats{RowCount: 10, ByteSize: 100}, 0, true)
	require.ErrorIs(t, err, ErrInvalidStats)
}
