package athena

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultPollInterval is how often the waiter re-checks status.
	DefaultPollInterval = 2 * time.Second
	// DefaultWaitTimeout bounds a wait when the caller sets none.
	DefaultWaitTimeout = 2 * time.Minute
)

// StatusPoller is the slice of the Manager a Waiter needs.
type StatusPoller interface {
	GetStatus(ctx context.Context, executionID string) (QueryExecution, error)
	Cancel(ctx context.Context, executionID string) error
}

// Waiter implements the caller side of the lifecycle contract. The manager
// never polls or times out on its own, so anything that wants to block
// until completion runs this loop with its own interval and deadline.
type Waiter struct {
	Poller   StatusPoller
	Interval time.Duration
	Timeout  time.Duration

	// CancelOnTimeout issues a best-effort Cancel when the deadline passes
	// with the query still running, so abandoned queries do not keep
	// scanning on the remote side.
	CancelOnTimeout bool
}

// NewWaiter returns a Waiter with default interval and timeout.
func NewWaiter(p StatusPoller) *Waiter {
	return &Waiter{Poller: p, Interval: DefaultPollInterval, Timeout: DefaultWaitTimeout}
}

// Wait polls until the execution reaches a terminal state, the timeout
// passes, or ctx is done. The terminal execution is returned as-is; FAILED
// and CANCELLED are results here, not errors.
func (w *Waiter) Wait(ctx context.Context, executionID string) (QueryExecution, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		exec, err := w.Poller.GetStatus(ctx, executionID)
		if err != nil {
			return QueryExecution{}, err
		}
		if exec.State.Terminal() {
			return exec, nil
		}

		select {
		case <-ctx.Done():
			if w.CancelOnTimeout {
				stopCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				_ = w.Poller.Cancel(stopCtx, executionID)
				stop()
			}
			return QueryExecution{}, fmt.Errorf("athena: wait %s: %w", executionID, ctx.Err())
		case <-ticker.C:
		}
	}
}
