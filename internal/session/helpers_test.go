package session

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"drinksync/internal/transport"
)

const eventTimeout = 2 * time.Second

// next returns the next event or fails the test.
func next(t *testing.T, s *EventStream) Event {
	t.Helper()
	select {
	case ev := <-s.C:
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

// expect returns the next event and checks its kind.
func expect(t *testing.T, s *EventStream, kind EventKind) Event {
	t.Helper()
	ev := next(t, s)
	require.Equal(t, kind, ev.Kind, "got %s", ev)
	return ev
}

// quiet asserts that no event arrives within d.
func quiet(t *testing.T, s *EventStream, d time.Duration) {
	t.Helper()
	select {
	case ev := <-s.C:
		t.Fatalf("unexpected event %s", ev)
	case <-time.After(d):
	}
}

// ── Fake transport ───────────────────────────────────────────────────

type readResult struct {
	data []byte
	err  error
}

// fakeHandle is a scripted Handle.  Reads come from the reads channel;
// Close unblocks everything.
type fakeHandle struct {
	peer  string
	reads chan readResult

	// writeHook, when set, runs before each write and may fail it.
	writeHook func(p []byte) error

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written bytes.Buffer
}

func newFakeHandle(peer string) *fakeHandle {
	return &fakeHandle{
		peer:   peer,
		reads:  make(chan readResult),
		closed: make(chan struct{}),
	}
}

func (h *fakeHandle) Read(p []byte) (int, error) {
	select {
	case r := <-h.reads:
		return copy(p, r.data), r.err
	case <-h.closed:
		return 0, net.ErrClosed
	}
}

func (h *fakeHandle) Write(p []byte) (int, error) {
	select {
	case <-h.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	if h.writeHook != nil {
		if err := h.writeHook(p); err != nil {
			return 0, err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.written.Write(p)
}

func (h *fakeHandle) Close() error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

func (h *fakeHandle) Peer() string { return h.peer }

func (h *fakeHandle) Written() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.written.String()
}

// push delivers one read result unless the handle is closed first.
func (h *fakeHandle) push(data string, err error) {
	select {
	case h.reads <- readResult{data: []byte(data), err: err}:
	case <-h.closed:
	}
}

// fakeTransport hands out scripted handles.
type fakeTransport struct {
	dial   func(ctx context.Context, peer string) (transport.Handle, error)
	dialed int
	mu     sync.Mutex
}

func (f *fakeTransport) Dial(ctx context.Context, peer string) (transport.Handle, error) {
	f.mu.Lock()
	f.dialed++
	f.mu.Unlock()
	return f.dial(ctx, peer)
}

func (f *fakeTransport) Listen(context.Context, transport.ServiceIdentity) (transport.Listener, error) {
	return nil, net.ErrClosed
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialed
}

// handing returns a transport whose every dial succeeds with h.
func handing(h *fakeHandle) *fakeTransport {
	return &fakeTransport{dial: func(context.Context, string) (transport.Handle, error) {
		return h, nil
	}}
}

// announcing wraps a transport and closes ready once a listener is bound.
type announcing struct {
	transport.Transport
	ready chan struct{}
	once  sync.Once
}

func announce(tr transport.Transport) *announcing {
	return &announcing{Transport: tr, ready: make(chan struct{})}
}

func (a *announcing) Listen(ctx context.Context, svc transport.ServiceIdentity) (transport.Listener, error) {
	ln, err := a.Transport.Listen(ctx, svc)
	if err == nil {
		a.once.Do(func() { close(a.ready) })
	}
	return ln, err
}

func (a *announcing) wait(t *testing.T) {
	t.Helper()
	select {
	case <-a.ready:
	case <-time.After(eventTimeout):
		t.Fatal("listener never bound")
	}
}

// connected builds a controller on h and waits for OnConnected.
func connected(t *testing.T, h *fakeHandle, opts ...Option) (*Controller, *EventStream) {
	t.Helper()
	events := NewEventStream(16)
	c := New(handing(h), append([]Option{WithListener(events)}, opts...)...)
	require.NoError(t, c.ConnectAsClient(h.peer))
	expect(t, events, EventConnected)
	require.Equal(t, Connected, c.State())
	t.Cleanup(func() { c.Close() })
	return c, events
}
