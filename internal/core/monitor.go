package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	ncerr "drinksync/internal/errors"
	"drinksync/internal/hydration"
	"drinksync/internal/metrics"
	"drinksync/internal/retry"
	"drinksync/internal/session"
	"drinksync/internal/transport"
	"drinksync/util"
)

// DefaultPollInterval is how often MonitorMode stats the data file when
// no change notification arrives.
const DefaultPollInterval = 2 * time.Second

// MonitorMode streams data points from a file to a device.  Every
// non-empty line of Path is one data point.  Lines are sent when the
// session connects and whenever the file changes, and each line is
// removed from the file once its send is confirmed, so a line that
// could not be delivered is retried later.
type MonitorMode struct {
	Transport transport.Transport
	Peer      string
	Path      string
	Session   []session.Option
	Poll      time.Duration

	Reconnect *retry.Backoff
	Breaker   *retry.CircuitBreaker

	Tracker *hydration.Tracker
	Metrics *metrics.Collector
	Logger  *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *MonitorMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run watches Path and feeds the session until ctx is cancelled or the
// device goes away for good.
func (m *MonitorMode) Run(ctx context.Context) error {
	defer m.Transport.Close()

	poll := m.Poll
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	w := &fileWatcher{path: m.Path, poll: poll, logger: m.Logger}
	changed := make(chan struct{}, 1)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.run(gctx, changed) })
	g.Go(func() error {
		defer stop()
		return m.serve(gctx, changed)
	})
	return g.Wait()
}

func (m *MonitorMode) serve(ctx context.Context, changed <-chan struct{}) error {
	events := session.NewEventStream(64)
	ctl := session.New(m.Transport, append(m.Session, session.WithListener(events))...)
	defer settle(ctl, events)

	x := &exchange{out: m.stdout(), tracker: m.Tracker, logger: m.Logger}
	rd := newRedialer(m.Peer, m.Reconnect, m.Breaker, m.Metrics, m.Logger)
	q := &dataQueue{path: m.Path, inflight: make(map[string]int)}

	if err := ctl.ConnectAsClient(m.Peer); err != nil {
		return err
	}

	connected := false
	flush := func() {
		lines, err := q.pending()
		if err != nil {
			m.Logger.Error("reading %s: %v", m.Path, err)
			return
		}
		if len(lines) > 0 {
			m.Logger.Verbose("sending %d data point(s) from %s", len(lines), m.Path)
		}
		for _, line := range lines {
			_ = ctl.Send(line)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-changed:
			if connected {
				flush()
			}

		case ev := <-events.C:
			switch ev.Kind {
			case session.EventConnected:
				rd.connected()
				connected = true
				flush()

			case session.EventConnectionFailed:
				rd.failed()
				if err := rd.again(ctx, ctl, ev.Err); err != nil {
					return err
				}

			case session.EventMessageReceived:
				x.received(ev.Text)

			case session.EventMessageSent:
				if err := q.confirm(ev.Text); err != nil {
					m.Logger.Error("removing sent data point from %s: %v", m.Path, err)
				}

			case session.EventSendFailed:
				q.release(ev.Text)
				m.Logger.Warn("data point %q kept for retry: %v", ev.Text, ev.Err)

			case session.EventDisconnected:
				connected = false
				if ev.Err == nil {
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

// ── data file ────────────────────────────────────────────────────────

// dataQueue tracks which lines of the data file are on their way to
// the device.  Identical lines are counted, not deduplicated.
type dataQueue struct {
	path     string
	inflight map[string]int
}

// pending returns the lines not yet handed to the session and marks
// them in flight.  A missing file has no lines.
func (q *dataQueue) pending() ([]string, error) {
	lines, err := readDataLines(q.path)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]int, len(lines))
	var out []string
	for _, line := range lines {
		seen[line]++
		if seen[line] > q.inflight[line] {
			q.inflight[line]++
			out = append(out, line)
		}
	}
	return out, nil
}

func (q *dataQueue) release(line string) {
	if q.inflight[line] <= 1 {
		delete(q.inflight, line)
		return
	}
	q.inflight[line]--
}

// confirm drops the first occurrence of line from the file.
func (q *dataQueue) confirm(line string) error {
	q.release(line)

	data, err := os.ReadFile(q.path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(q.path)
	if err != nil {
		return err
	}

	rows := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	for i, row := range rows {
		if strings.TrimSpace(row) != line {
			continue
		}
		rows = append(rows[:i], rows[i+1:]...)
		var body string
		if len(rows) > 0 {
			body = strings.Join(rows, "\n") + "\n"
		}
		return os.WriteFile(q.path, []byte(body), fi.Mode().Perm())
	}
	return nil
}

func readDataLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range strings.Split(string(data), "\n") {
		if s := strings.TrimSpace(row); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
