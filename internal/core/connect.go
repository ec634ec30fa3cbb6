package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	ncerr "drinksync/internal/errors"
	"drinksync/internal/hydration"
	"drinksync/internal/metrics"
	"drinksync/internal/retry"
	"drinksync/internal/session"
	"drinksync/internal/transport"
	"drinksync/util"
)

// ConnectMode dials a device and forwards each stdin line to it as one
// message, printing whatever the device sends back.  This is the
// default client mode.
type ConnectMode struct {
	Transport transport.Transport
	Peer      string
	Session   []session.Option

	// Reconnect, when set, re-dials after a failed connect or a lost
	// session.  Breaker guards those attempts (default breaker if nil).
	Reconnect *retry.Backoff
	Breaker   *retry.CircuitBreaker

	// Linger keeps the session open this long after stdin is exhausted
	// and every message has been sent, to collect late replies.
	Linger time.Duration

	Tracker *hydration.Tracker
	Metrics *metrics.Collector
	Logger  *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run connects and relays until stdin is exhausted, the device goes
// away for good or ctx is cancelled.  The transport is closed when Run
// returns.  An orderly close by the device is not an error.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Transport.Close()

	events := session.NewEventStream(64)
	ctl := session.New(m.Transport, append(m.Session, session.WithListener(events))...)
	defer settle(ctl, events)

	x := &exchange{out: m.stdout(), tracker: m.Tracker, logger: m.Logger}
	rd := newRedialer(m.Peer, m.Reconnect, m.Breaker, m.Metrics, m.Logger)

	if err := ctl.ConnectAsClient(m.Peer); err != nil {
		return err
	}

	var (
		lines     = util.PumpLines(ctx, m.stdin())
		input     <-chan string // lines while connected, else nil
		inputDone bool
		pending   int // sends without an outcome yet
		linger    <-chan time.Time
	)

	// idle runs once input is done and nothing is in flight.  It
	// reports whether Run should return now rather than linger.
	idle := func() bool {
		if m.Linger <= 0 {
			return true
		}
		if linger == nil {
			m.Logger.Verbose("input done, waiting %s for replies", m.Linger)
			linger = time.After(m.Linger)
		}
		return false
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-linger:
			return nil

		case line, ok := <-input:
			if !ok {
				inputDone, input, lines = true, nil, nil
				if pending == 0 && idle() {
					return nil
				}
				continue
			}
			pending++
			_ = ctl.Send(line)

		case ev := <-events.C:
			switch ev.Kind {
			case session.EventConnected:
				rd.connected()
				input = lines

			case session.EventConnectionFailed:
				rd.failed()
				if err := rd.again(ctx, ctl, ev.Err); err != nil {
					return err
				}

			case session.EventMessageReceived:
				x.received(ev.Text)

			case session.EventMessageSent, session.EventSendFailed:
				pending--
				if ev.Kind == session.EventSendFailed {
					m.Logger.Warn("message %q not delivered: %v", ev.Text, ev.Err)
				}
				if inputDone && pending == 0 && idle() {
					return nil
				}

			case session.EventDisconnected:
				input = nil
				if ev.Err == nil || inputDone {
					return nil
				}
				if !rd.enabled() {
					if ncerr.Is(ev.Err, ncerr.ErrPeerClosed) {
						return nil
					}
					return fmt.Errorf("session with %s: %w", m.Peer, ev.Err)
				}
				if err := rd.again(ctx, ctl, ev.Err); err != nil {
					return fmt.Errorf("session with %s: %w", m.Peer, err)
				}
			}
		}
	}
}
