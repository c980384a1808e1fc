package bqservice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTableRef(t *testing.T) {
	ref, err := ParseTableRef("my-project.my_dataset.my_table")
	require.NoError(t, err)
	require.Equal(t, TableRef{ProjectID: "my-project", DatasetID: "my_dataset", TableID: "my_table"}, ref)
	require.Equal(t, "my-project.my_dataset.my_table", ref.String())

	for _, bad := range []string{"", "table", "dataset.table", "a.b.c.d", "a..c", ".b.c", "a.b."} {
		_, err := ParseTableRef(bad)
		require.Error(t, err, bad)
	}
}

func TestJobStateTerminal(t *testing.T) {
	require.False(t, JobRunning.Terminal())
	require.True(t, JobSucceeded.Terminal())
	require.True(t, JobFailed.Terminal())
}

func TestJobStatusFailureError(t *testing.T) {
	require.NoError(t, JobStatus{State: JobRunning}.FailureError())
	require.NoError(t, JobStatus{State: JobSucceeded}.FailureError())

	err := JobStatus{State: JobFailed}.FailureError()
	require.ErrorIs(t, err, ErrJobFailed)

	cause := errors.New("quota exceeded")
	err = JobStatus{State: JobFailed, Err: cause}.FailureError()
	require.ErrorIs(t, err, ErrJobFailed)
	require.ErrorContains(t, err, "quota exceeded")
}
