package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/bqexport/bqservice"
	"github.com/rudderlabs/bqexport/export"
	"github.com/rudderlabs/bqexport/objstore"
)

// errClosed is returned by Next after Close released the reader's resources.
var errClosed = errors.New("reader closed")

// DynamicReader yields the records of one shard as a single ordered stream
// spanning however many files eventually land in the shard directory. The
// file set may still be growing while reading: end-of-stream is only signaled
// once the owning export job is terminal (success) and a final listing found
// nothing new. A failed job surfaces as a fatal read error, never as a quiet
// empty stream.
//
// A reader owns its cursor exclusively; concurrent readers over different
// shards share nothing but the object store and the read-only job status.
type DynamicReader struct {
	store      objstore.Store
	desc       export.ShardDescriptor
	probe      export.JobProbe
	newDecoder DecoderFactory
	backoff    export.BackoffSettings
	logger     logger.Logger

	recordsStat stats.Measurement
	filesStat   stats.Measurement
	pollsStat   stats.Measurement

	known    []string
	knownSet map[string]struct{}
	idx      int

	cur          Decoder
	curRC        io.ReadCloser
	resumeOffset int64

	exportComplete bool
	eof            bool
	err            error
}

// NewDynamicReader wires a reader to one shard descriptor and the status
// probe of that shard's owning job. A nil decoderFactory defaults to
// JSONLines.
func NewDynamicReader(
	conf *config.Config,
	log logger.Logger,
	statsFactory stats.Stats,
	store objstore.Store,
	desc export.ShardDescriptor,
	probe export.JobProbe,
	decoderFactory DecoderFactory,
) *DynamicReader {
	if decoderFactory == nil {
		decoderFactory = JSONLines
	}
	tags := stats.Tags{"shard": strconv.Itoa(desc.Index)}
	return &DynamicReader{
		store:       store,
		desc:        desc,
		probe:       probe,
		newDecoder:  decoderFactory,
		backoff:     export.BackoffFromConfig(conf),
		logger:      log.Child("reader").With("shard", desc.Index, "dir", desc.Dir),
		recordsStat: statsFactory.NewTaggedStat("bqexport_records_read", stats.CountType, tags),
		filesStat:   statsFactory.NewTaggedStat("bqexport_files_discovered", stats.CountType, tags),
		pollsStat:   statsFactory.NewTaggedStat("bqexport_reader_polls", stats.CountType, tags),
		knownSet:    map[string]struct{}{},
	}
}

// Next returns the next record. It blocks (with bounded backoff) while more
// files may still appear, returns io.EOF once the stream is exhausted for
// good, and keeps returning io.EOF on further calls. Fatal errors are sticky.
func (r *DynamicReader) Next(ctx context.Context) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.eof {
		return nil, io.EOF
	}

	var bo backoff.BackOff
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case r.cur != nil:
			record, err := r.cur.Next()
			switch {
			case err == nil:
				r.recordsStat.Increment()
				return record, nil
			case errors.Is(err, io.EOF):
				// File fully drained; move to the next one.
				r.closeCurrent()
				r.idx++
				r.resumeOffset = 0
				continue
			case errors.Is(err, ErrIncompleteRecord):
				r.resumeOffset += r.cur.Consumed()
				name := r.known[r.idx]
				r.closeCurrent()
				if r.exportComplete {
					return nil, r.fatal(fmt.Errorf("file %s truncated mid-record after export completed: %w", name, err))
				}
				// Probably still being written; re-open past the consumed
				// bytes later. Check the job so a dead producer cannot keep
				// us re-opening a dangling partial record forever.
				r.pollsStat.Increment()
				if status, perr := r.probe(ctx); perr != nil {
					r.logger.Warnw("job status poll failed, retrying", "error", perr)
				} else if failure := status.FailureError(); failure != nil {
					return nil, r.fatal(failure)
				} else if status.State == bqservice.JobSucceeded {
					// One more read attempt; if the record is still dangling
					// then, it is a data error.
					r.exportComplete = true
				}
			default:
				return nil, r.fatal(fmt.Errorf("decoding %s: %w", r.known[r.idx], err))
			}

		case r.idx < len(r.known):
			if err := r.openCurrent(ctx); err != nil {
				r.logger.Warnw("opening shard file failed, retrying", "file", r.known[r.idx], "error", err)
			} else {
				continue
			}

		default:
			progressed, err := r.refresh(ctx)
			if err != nil {
				r.logger.Warnw("listing shard directory failed, retrying", "error", err)
			} else if progressed {
				bo = nil
				continue
			} else if r.exportComplete {
				r.eof = true
				return nil, io.EOF
			} else {
				r.pollsStat.Increment()
				status, err := r.probe(ctx)
				if err != nil {
					r.logger.Warnw("job status poll failed, retrying", "error", err)
				} else if failure := status.FailureError(); failure != nil {
					return nil, r.fatal(failure)
				} else if status.State == bqservice.JobSucceeded {
					// One final listing pass before declaring end-of-stream.
					r.exportComplete = true
					continue
				}
			}
		}

		if bo == nil {
			bo = r.backoff.New()
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return nil, r.fatal(fmt.Errorf("%w: waiting for files in %s", export.ErrPollDeadline, r.desc.Dir))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refresh lists the shard directory and appends newly discovered files.
// knownFiles only grows; indices already handed to the cursor never shift.
func (r *DynamicReader) refresh(ctx context.Context) (bool, error) {
	files, err := r.store.List(ctx, r.desc.Dir, r.desc.Pattern)
	if err != nil {
		return false, err
	}
	progressed := false
	for _, fi := range files {
		if _, ok := r.knownSet[fi.Name]; ok {
			continue
		}
		if n := len(r.known); n > 0 && fi.Name < r.known[n-1] {
			r.logger.Warnw("late file sorts before already-known files", "file", fi.Name)
		}
		r.knownSet[fi.Name] = struct{}{}
		r.known = append(r.known, fi.Name)
		r.filesStat.Increment()
		progressed = true
	}
	return progressed, nil
}

func (r *DynamicReader) openCurrent(ctx context.Context) error {
	name := r.known[r.idx]
	rc, err := r.store.Open(ctx, name)
	if err != nil {
		return err
	}
	if r.resumeOffset > 0 {
		if _, err := io.CopyN(io.Discard, rc, r.resumeOffset); err != nil {
			_ = rc.Close()
			return fmt.Errorf("skipping %d consumed bytes of %s: %w", r.resumeOffset, name, err)
		}
	}
	r.curRC = rc
	r.cur = r.newDecoder(rc)
	return nil
}

func (r *DynamicReader) closeCurrent() {
	if r.curRC != nil {
		_ = r.curRC.Close()
	}
	r.curRC = nil
	r.cur = nil
}

func (r *DynamicReader) fatal(err error) error {
	r.closeCurrent()
	r.err = err
	return r.err
}

// Close releases the open file handle. Safe to call at any time, including
// when the external scheduler abandons the work unit mid-stream.
func (r *DynamicReader) Close() error {
	r.closeCurrent()
	if r.err == nil && !r.eof {
		r.err = errClosed
	}
	return nil
}
