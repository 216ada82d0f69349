// Package worker implements the Registrar Worker (spec §4.4): a
// background loop invoking the Committer on a timer, checking a stop
// flag at one-second granularity so shutdown stays responsive.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/stacks-network/subdomain-registrar/internal/committer"
)

// Worker runs submit_once on a fixed cadence. At most one submit_once
// call is in flight at a time; ticks never overlap.
type Worker struct {
	committer *committer.Committer
	frequency time.Duration
	log       *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// New constructs a Worker for one parent domain's Committer. frequency
// is tx_frequency from spec §6's configuration table.
func New(c *committer.Committer, frequency time.Duration, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		committer: c,
		frequency: frequency,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run blocks, invoking submit_once then sleeping in one-second
// increments for frequency seconds, until Stop is called or ctx is
// canceled. It closes its done channel on return so Stop can join it.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		summary := w.committer.SubmitOnce(ctx)
		if summary.Error != "" {
			w.log.Warn("registrar worker: tick completed with error", "parent", w.committer.ParentDomain, "error", summary.Error)
		} else if summary.Committed > 0 {
			w.log.Info("registrar worker: tick committed rows", "parent", w.committer.ParentDomain, "committed", summary.Committed, "txid", summary.TxID)
		}

		if w.sleepInterruptible(ctx) {
			return
		}
	}
}

// sleepInterruptible waits w.frequency, checking for a stop request
// once per second, and reports whether the worker should exit.
func (w *Worker) sleepInterruptible(ctx context.Context) bool {
	remaining := w.frequency
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-w.stop:
			return true
		case <-ctx.Done():
			return true
		case <-ticker.C:
			remaining -= time.Second
		}
	}
	return false
}

// Stop requests the worker loop exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}
