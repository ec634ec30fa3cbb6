package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	ncerr "drinksync/internal/errors"
	"drinksync/internal/hydration"
	"drinksync/internal/session"
	"drinksync/internal/transport"
	"drinksync/util"
)

// ListenMode advertises a service identity and serves one peer at a
// time, the way the scale firmware does.  Received messages are printed
// and answered according to Reply; stdin lines are sent to the current
// peer.  With KeepOpen it listens again after each peer leaves,
// otherwise it returns after the first one.
type ListenMode struct {
	Transport transport.Transport
	Service   transport.ServiceIdentity
	Session   []session.Option
	KeepOpen  bool
	Reply     string // none, echo or sync

	Tracker *hydration.Tracker
	Logger  *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ListenMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ListenMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run listens until ctx is cancelled or, without KeepOpen, until the
// first peer disconnects.
func (m *ListenMode) Run(ctx context.Context) error {
	defer m.Transport.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := session.NewEventStream(64)
	ctl := session.New(m.Transport, append(m.Session, session.WithListener(events))...)
	defer settle(ctl, events)

	x := &exchange{out: m.stdout(), tracker: m.Tracker, reply: m.Reply, logger: m.Logger}

	if err := ctl.ConnectAsServer(m.Service); err != nil {
		return err
	}

	// Listening can block for a long time; Close abandons the accept.
	go func() {
		<-ctx.Done()
		_ = ctl.Close()
	}()

	lines := util.PumpLines(ctx, m.stdin())
	var input <-chan string

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-input:
			if !ok {
				// stdin is done but the peer may still talk.
				input, lines = nil, nil
				continue
			}
			_ = ctl.Send(line)

		case ev := <-events.C:
			switch ev.Kind {
			case session.EventConnected:
				m.Logger.Verbose("connection from %s", ev.Peer)
				input = lines

			case session.EventConnectionFailed:
				if ctx.Err() != nil {
					return nil
				}
				return ev.Err

			case session.EventMessageReceived:
				if reply, ok := x.received(ev.Text); ok {
					_ = ctl.Send(reply)
				}

			case session.EventSendFailed:
				m.Logger.Warn("reply %q not delivered: %v", strings.TrimSpace(ev.Text), ev.Err)

			case session.EventDisconnected:
				input = nil
				if ctx.Err() != nil || ev.Err == nil {
					return nil
				}
				if !ncerr.Is(ev.Err, ncerr.ErrPeerClosed) {
					m.Logger.Warn("peer lost: %v", ev.Err)
				}
				if !m.KeepOpen {
					if ncerr.Is(ev.Err, ncerr.ErrPeerClosed) {
						return nil
					}
					return fmt.Errorf("session on %s: %w", m.Service, ev.Err)
				}
				if err := ctl.ConnectAsServer(m.Service); err != nil {
					return err
				}
			}
		}
	}
}
