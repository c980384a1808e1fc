package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/bqexport/bqservice"
)

// ErrPollDeadline reports that a polling loop exhausted its backoff deadline
// without the watched condition becoming true.
var ErrPollDeadline = errors.New("polling deadline exceeded")

// errStillRunning drives the retry loop while a job is non-terminal.
var errStillRunning = errors.New("job still running")

// JobProbe answers "is the owning job terminal yet" for one remote job. The
// returned status is a read-only value, safe to hand to any number of
// concurrent shard readers.
type JobProbe func(ctx context.Context) (bqservice.JobStatus, error)

// BackoffSettings bounds every polling loop in the pipeline: exponential
// intervals capped at MaxInterval, with MaxElapsedTime as the hard deadline
// after which the operation fails instead of hanging.
type BackoffSettings struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

// BackoffFromConfig reads the polling knobs from configuration.
func BackoffFromConfig(conf *config.Config) BackoffSettings {
	return BackoffSettings{
		InitialInterval: conf.GetDuration("BQExport.Backoff.initialInterval", 1, time.Second),
		MaxInterval:     conf.GetDuration("BQExport.Backoff.maxInterval", 30, time.Second),
		Multiplier:      conf.GetFloat64("BQExport.Backoff.multiplier", 1.5),
		MaxElapsedTime:  conf.GetDuration("BQExport.Backoff.maxElapsedTime", 15, time.Minute),
	}
}

// New builds a fresh policy. Policies are single-use; every wait episode gets
// its own.
func (s BackoffSettings) New() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.InitialInterval
	bo.MaxInterval = s.MaxInterval
	bo.Multiplier = s.Multiplier
	bo.MaxElapsedTime = s.MaxElapsedTime
	bo.Reset()
	return bo
}

// PollJobUntilTerminal blocks until probe reports a terminal state, retrying
// transient transport errors and non-terminal states with the given policy.
// It returns the terminal status; a job that failed is reported through the
// status, not the error. The error is non-nil only when the deadline or the
// context expired first.
func PollJobUntilTerminal(ctx context.Context, probe JobProbe, bo backoff.BackOff, log logger.Logger) (bqservice.JobStatus, error) {
	var last bqservice.JobStatus

	op := func() error {
		status, err := probe(ctx)
		if err != nil {
			return err
		}
		last = status
		if !status.State.Terminal() {
			return errStillRunning
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if !errors.Is(err, errStillRunning) {
			log.Warnw("job status poll failed, retrying", "error", err, "retryIn", wait.String())
		}
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		return last, fmt.Errorf("%w: %v", ErrPollDeadline, err)
	}
	return last, nil
}
