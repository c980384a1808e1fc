package export

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/rudderlabs/rudder-go-kit/config"

	"github.com/rudderlabs/bqexport/bqservice"
	"github.com/rudderlabs/bqexport/objstore"
)

// fakeService is an in-memory JobService. Jobs stay Running until the test
// finishes them.
type fakeService struct {
	mu sync.Mutex

	stats    bqservice.TableStats
	statsErr error

	submitErr   error
	statusErrs  int                  // transient GetJobStatus failures before answering
	autoFinish  *bqservice.JobStatus // when set, submitted jobs start out terminal
	nextID      int
	jobs        map[string]bqservice.JobStatus
	queries     []string
	extracts    []string // destination URIs in submission order
	deleted     []bqservice.TableRef
	exists      bool
	existsCalls int
}

func newFakeService() *fakeService {
	return &fakeService{jobs: map[string]bqservice.JobStatus{}, exists: true}
}

func (s *fakeService) GetTableStats(context.Context, bqservice.TableRef) (bqservice.TableStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statsErr != nil {
		return bqservice.TableStats{}, s.statsErr
	}
	return s.stats, nil
}

func (s *fakeService) submit() string {
	s.nextID++
	id := fmt.Sprintf("job-%d", s.nextID)
	status := bqservice.JobStatus{State: bqservice.JobRunning}
	if s.autoFinish != nil {
		status = *s.autoFinish
	}
	s.jobs[id] = status
	return id
}

func (s *fakeService) SubmitQuery(_ context.Context, query string, _ bqservice.TableRef) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.queries = append(s.queries, query)
	return s.submit(), nil
}

func (s *fakeService) SubmitExtract(_ context.Context, _ bqservice.TableRef, destinationURI string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.extracts = append(s.extracts, destinationURI)
	return s.submit(), nil
}

func (s *fakeService) GetJobStatus(_ context.Context, jobID string) (bqservice.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErrs > 0 {
		s.statusErrs--
		return bqservice.JobStatus{}, fmt.Errorf("transient poll failure")
	}
	status, ok := s.jobs[jobID]
	if !ok {
		return bqservice.JobStatus{}, fmt.Errorf("unknown job %s", jobID)
	}
	return status, nil
}

func (s *fakeService) DeleteTable(_ context.Context, table bqservice.TableRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, table)
	s.exists = false
	return nil
}

func (s *fakeService) TableExists(context.Context, bqservice.TableRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existsCalls++
	return s.exists, nil
}

// finishAll moves every submitted job to the given terminal state.
func (s *fakeService) finishAll(status bqservice.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.jobs {
		s.jobs[id] = status
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	conf := config.New()
	conf.Set("BQExport.Backoff.initialInterval", "1ms")
	conf.Set("BQExport.Backoff.maxInterval", "5ms")
	conf.Set("BQExport.Backoff.maxElapsedTime", "2s")
	return conf
}

// testStore returns a memblob-backed store plus the raw bucket so tests can
// plant fixture objects directly.
func testStore(t *testing.T) (*blob.Bucket, objstore.Store) {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })
	return bucket, objstore.NewBlob(bucket, "mem://test-bucket")
}

var testTable = bqservice.TableRef{ProjectID: "proj", DatasetID: "dataset", TableID: "table"}

func requireState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	require.Equal(t, want, o.State())
}
