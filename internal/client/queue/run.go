package queue

import (
	"context"
	"errors"
	"time"

	"github.com/iudanet/gophsync/internal/client/remote"
)

const (
	// storeRetryWait is how long the run loop waits after failing to read queue stats
	storeRetryWait = time.Minute
	// busyWait is how long the run loop waits while due entries are held by another drain
	busyWait = time.Second
)

// Run drains the queue whenever it is online and something is due.
// It wakes on Notify, on SetOnline(true) and when the earliest backoff expires.
// While offline or with nothing scheduled it sleeps until woken.
// Run returns when ctx is canceled.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("Queue worker started")
	defer q.logger.Info("Queue worker stopped")

	for {
		if q.online.Load() {
			res, err := q.Drain(ctx)
			switch {
			case err == nil:
				if res.Sent > 0 || res.Quarantined > 0 {
					q.logger.Info("Queue drained",
						"sent", res.Sent,
						"accepted", res.Accepted,
						"resolved", res.Resolved,
						"rejected", res.Rejected,
						"quarantined", res.Quarantined)
				}
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, ErrDrainInProgress), errors.Is(err, remote.ErrOffline):
			default:
				q.logger.Warn("Queue drain failed", "error", err)
			}
		}

		// Без запланированных попыток таймер не нужен: ждем Notify или SetOnline
		var expired <-chan time.Time
		var timer *time.Timer
		if wait, ok := q.nextWait(ctx); ok {
			timer = time.NewTimer(wait)
			expired = timer.C
		}
		select {
		case <-ctx.Done():
		case <-q.wake:
		case <-expired:
		}
		if timer != nil {
			timer.Stop()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// nextWait returns the time until the earliest scheduled retry.
// ok is false when the worker is offline or nothing is scheduled.
func (q *Queue) nextWait(ctx context.Context) (wait time.Duration, ok bool) {
	if !q.online.Load() {
		return 0, false
	}
	st, err := q.Stats(ctx)
	if err != nil {
		q.logger.Warn("Failed to read queue stats", "error", err)
		return storeRetryWait, true
	}
	if st.Due > 0 {
		return busyWait, true
	}
	if st.NextAttempt == 0 {
		return 0, false
	}
	wait = time.Duration(st.NextAttempt-q.now().UnixMilli()) * time.Millisecond
	return max(wait, time.Millisecond), true
}
