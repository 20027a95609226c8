package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maxstewm/asian-guide-web/internal/metrics"
)

const janitorErrorBuffer = 64

// DefaultCleanupTimeout bounds one batch of background blob deletes.
const DefaultCleanupTimeout = 30 * time.Second

// Janitor deletes blobs whose database rows were never committed or were
// removed. Deletes run in the background and are not retried. Failures are
// logged and offered on Errors; they never reach the operation that scheduled
// the cleanup.
type Janitor struct {
	blobs   BlobStore
	logger  *slog.Logger
	timeout time.Duration

	errs chan error
	wg   sync.WaitGroup
}

func NewJanitor(blobs BlobStore, logger *slog.Logger, timeout time.Duration) *Janitor {
	return &Janitor{
		blobs:   blobs,
		logger:  logger.With("component", "janitor"),
		timeout: timeout,
		errs:    make(chan error, janitorErrorBuffer),
	}
}

// Discard schedules deletion of keys and returns immediately. The deletes
// outlive cancellation of ctx but are bounded by the janitor timeout.
func (j *Janitor) Discard(ctx context.Context, reason string, keys ...string) {
	if len(keys) == 0 {
		return
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.timeout)
		defer cancel()

		for _, key := range keys {
			err := j.blobs.Delete(ctx, key)
			metrics.RecordBlob("cleanup", err)
			if err != nil {
				j.logger.Warn("blob cleanup failed", "key", key, "reason", reason, "error", err)
				j.report(fmt.Errorf("discard %s: %w", key, err))
				continue
			}
			j.logger.Debug("blob discarded", "key", key, "reason", reason)
		}
	}()
}

// Errors exposes cleanup failures. Failures are dropped when nobody drains
// the channel and its buffer is full.
func (j *Janitor) Errors() <-chan error {
	return j.errs
}

// Wait blocks until every scheduled cleanup has finished.
func (j *Janitor) Wait() {
	j.wg.Wait()
}

func (j *Janitor) report(err error) {
	select {
	case j.errs <- err:
	default:
	}
}
