package core

import (
	"context"
	"fmt"
	"time"

	ncerr "drinksync/internal/errors"
	"drinksync/internal/metrics"
	"drinksync/internal/retry"
	"drinksync/internal/session"
	"drinksync/util"
)

// redialer paces reconnects to one peer.  A nil backoff disables
// reconnecting, so every failure is final.
type redialer struct {
	peer    string
	backoff *retry.Backoff
	breaker *retry.CircuitBreaker
	metrics *metrics.Collector
	logger  *util.Logger

	attempt int
}

func newRedialer(peer string, b *retry.Backoff, cb *retry.CircuitBreaker, m *metrics.Collector, logger *util.Logger) *redialer {
	if b != nil && cb == nil {
		cb = retry.NewCircuitBreaker(nil)
	}
	return &redialer{peer: peer, backoff: b, breaker: cb, metrics: m, logger: logger}
}

func (r *redialer) enabled() bool { return r.backoff != nil }

// connected resets the attempt count after a successful connect.
func (r *redialer) connected() {
	r.attempt = 0
	if r.breaker != nil {
		r.breaker.Success()
	}
}

func (r *redialer) failed() {
	if r.breaker != nil {
		r.breaker.Failure()
	}
}

// again waits out the backoff and starts another connect on ctl.  It
// returns cause when reconnecting is off, pointless or exhausted, and
// nil once an attempt is under way or ctx ended the wait.
func (r *redialer) again(ctx context.Context, ctl *session.Controller, cause error) error {
	if !r.enabled() || ncerr.IsDenied(cause) {
		return cause
	}

	for {
		r.attempt++
		if limit := r.backoff.MaxAttempts; limit > 0 && r.attempt > limit {
			return fmt.Errorf("gave up after %d reconnects: %w", limit, cause)
		}

		wait := r.backoff.Next(r.attempt)
		r.logger.Info("reconnecting to %s in %s (attempt %d)",
			r.peer, wait.Round(time.Millisecond), r.attempt)
		if err := retry.Sleep(ctx, wait); err != nil {
			return nil
		}

		if err := r.breaker.Allow(); err != nil {
			r.logger.Warn("%v", err)
			continue
		}
		r.metrics.Reconnect()
		return ctl.ConnectAsClient(r.peer)
	}
}

// settle closes ctl and consumes its remaining events until the
// disconnect arrives, so the dispatcher is not left blocked on a
// stream nobody reads.
func settle(ctl *session.Controller, events *session.EventStream) {
	switch ctl.State() {
	case session.Connecting, session.Connected, session.Closing:
	default:
		return
	}
	_ = ctl.Close()

	timeout := time.NewTimer(time.Second)
	defer timeout.Stop()
	for {
		select {
		case ev := <-events.C:
			if ev.Kind == session.EventDisconnected {
				return
			}
		case <-timeout.C:
			return
		}
	}
}
