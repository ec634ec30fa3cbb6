// Package session owns the lifecycle of one point-to-point device link.
//
// A Controller opens at most one transport handle at a time, either by
// dialing a peer or by accepting one under a service identity, then
// runs a receive loop and a write loop on that handle until the peer
// leaves, a read fails or the caller closes it.  Every outcome is
// reported through a Listener; nothing blocks the caller on I/O.
//
// Lifecycle:
//
//	Idle ─► Connecting ─► Connected ─► Closing ─► Disconnected
//	             │                                     ▲
//	             └──────── failure / Close ────────────┘
//
// Only a fresh connect leaves Disconnected.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	ncerr "drinksync/internal/errors"
	"drinksync/internal/metrics"
	"drinksync/internal/transport"
	"drinksync/util"
)

// Controller manages one device link.  All methods are safe for
// concurrent use.
type Controller struct {
	tr   transport.Transport
	opts options

	logger     *util.Logger
	metrics    *metrics.Collector
	dispatcher Dispatcher

	mu       sync.Mutex
	state    State
	listener Listener
	link     *link

	// abort cancels the in-flight connect or accept.  gen invalidates
	// attempts that were abandoned by Close.
	abort context.CancelFunc
	gen   uint64
}

// New returns an idle Controller that opens handles through tr.
func New(tr transport.Transport, opts ...Option) *Controller {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Controller{
		tr:       tr,
		opts:     o,
		logger:   o.logger,
		metrics:  o.metrics,
		listener: o.listener,
		state:    Idle,
	}
	if c.logger == nil {
		c.logger = util.NewLogger(0)
	}
	c.dispatcher = o.dispatcher
	if c.dispatcher == nil {
		c.dispatcher = newSerialQueue(c.logger)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Peer returns the address of the connected peer, or "" when no
// handle is open.
func (c *Controller) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return ""
	}
	return c.link.peer
}

// SetListener replaces the listener for events emitted from now on.
// A nil listener discards events.
func (c *Controller) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// ── Connect ──────────────────────────────────────────────────────────

// ConnectAsClient dials peer in the background.  The outcome arrives
// as OnConnected or OnConnectionFailed.  While a connection is being
// made, is open or is closing, the call is ignored and returns
// ErrAlreadyConnected without any callback.
func (c *Controller) ConnectAsClient(peer string) error {
	return c.start("connect to "+peer, func(ctx context.Context) (transport.Handle, error) {
		h, err := c.tr.Dial(ctx, peer)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", peer, err)
		}
		return h, nil
	})
}

// ConnectAsServer listens under svc in the background and accepts a
// single peer.  The listener is closed once the peer is accepted or
// the attempt is abandoned.  Outcomes and the already-connected rule
// are the same as for ConnectAsClient.
func (c *Controller) ConnectAsServer(svc transport.ServiceIdentity) error {
	return c.start("accept on "+svc.String(), func(ctx context.Context) (transport.Handle, error) {
		ln, err := c.tr.Listen(ctx, svc)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", svc, err)
		}
		defer ln.Close()

		c.logger.Verbose("listening on %s as %s", ln.Addr(), svc)
		h, err := ln.Accept(ctx)
		if err != nil {
			return nil, fmt.Errorf("accept on %s: %w", svc, err)
		}
		return h, nil
	})
}

type opener func(ctx context.Context) (transport.Handle, error)

func (c *Controller) start(what string, open opener) error {
	c.mu.Lock()
	if !c.state.canConnect() {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("ignoring %s: session is %s", what, state)
		return ncerr.ErrAlreadyConnected
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.opts.connectTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.opts.connectTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.gen++
	gen := c.gen
	c.abort = cancel
	c.state = Connecting
	c.mu.Unlock()

	c.logger.Verbose("%s", what)
	go c.establish(ctx, cancel, gen, open)
	return nil
}

// establish runs one attempt on its own goroutine and publishes the
// result unless Close abandoned it in the meantime.
func (c *Controller) establish(ctx context.Context, cancel context.CancelFunc, gen uint64, open opener) {
	defer cancel()

	var h transport.Handle
	err := c.opts.checker.Check(ctx)
	if err == nil {
		h, err = open(ctx)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if h != nil {
			if cerr := h.Close(); cerr != nil {
				c.logger.Debug("release abandoned handle: %v", cerr)
			}
		}
		c.logger.Verbose("connect attempt abandoned")
		return
	}
	c.abort = nil

	if err != nil {
		c.state = Disconnected
		c.metrics.ConnectFailed()
		c.metrics.RecordError(err.Error())
		c.notifyLocked(func(l Listener) { l.OnConnectionFailed(err) })
		c.mu.Unlock()
		if ncerr.IsDenied(err) {
			c.logger.Error("%v", err)
		} else {
			c.logger.Warn("%v", err)
		}
		return
	}

	lk := newLink(h, c.opts.outboxSize)
	c.link = lk
	c.state = Connected
	c.metrics.SessionOpened()
	c.notifyLocked(func(l Listener) { l.OnConnected(lk.peer) })
	go c.readLoop(lk)
	go c.writeLoop(lk)
	c.mu.Unlock()

	c.logger.Info("connected to %s", lk.peer)
}

// ── Send ─────────────────────────────────────────────────────────────

// Send queues text for the connection's write loop.  Every call ends
// in exactly one OnMessageSent or OnSendFailed.  When the controller
// is not connected, or the queue is full, OnSendFailed is emitted
// straight away and the same error is returned.  A failed write is
// reported but does not close the connection.
func (c *Controller) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected || c.link == nil {
		c.failSendLocked(text, ncerr.ErrNotConnected)
		return ncerr.ErrNotConnected
	}
	select {
	case c.link.outbox <- text:
		return nil
	default:
		c.failSendLocked(text, ncerr.ErrBufferFull)
		return ncerr.ErrBufferFull
	}
}

func (c *Controller) failSendLocked(text string, err error) {
	c.metrics.SendFailed()
	c.notifyLocked(func(l Listener) { l.OnSendFailed(text, err) })
}

// ── Close ────────────────────────────────────────────────────────────

// Close ends the current attempt or connection.  It is idempotent:
// from Idle, Disconnected or Closing it does nothing.  An attempt in
// progress is cancelled and reported with a single OnDisconnected(nil).
// An open connection is released and Close returns once both loops
// have stopped and OnDisconnected has been queued.  If the receive loop
// is already tearing the connection down, Close waits for it to finish.
func (c *Controller) Close() error {
	c.mu.Lock()
	switch c.state {
	case Connecting:
		c.gen++
		abort := c.abort
		c.abort = nil
		c.state = Disconnected
		c.notifyLocked(func(l Listener) { l.OnDisconnected(nil) })
		c.mu.Unlock()
		if abort != nil {
			abort()
		}
		c.logger.Verbose("connect attempt cancelled")
		return nil
	case Connected:
		lk := c.link
		c.mu.Unlock()
		c.shutdown(lk, nil, false)
		return nil
	case Closing:
		lk := c.link
		c.mu.Unlock()
		if lk != nil {
			<-lk.done
		}
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
}

// shutdown is the single path from Connected to Disconnected.  The
// compare-and-set on lk.closed, taken under c.mu, lets exactly one of
// Close and the receive loop through.  A losing Close waits on lk.done;
// a losing receive loop returns so the winner can collect readDone.
func (c *Controller) shutdown(lk *link, reason error, fromReader bool) {
	c.mu.Lock()
	if !lk.closed.CompareAndSwap(false, true) {
		c.mu.Unlock()
		if !fromReader {
			<-lk.done
		}
		return
	}
	if c.link == lk {
		c.state = Closing
	}
	c.mu.Unlock()

	lk.cancel()
	if err := lk.h.Close(); err != nil && !ncerr.IsClosed(err) {
		c.logger.Warn("release %s: %v", lk.peer, err)
	}
	<-lk.writeDone
	if !fromReader {
		<-lk.readDone
	}

	c.mu.Lock()
	if c.link == lk {
		c.link = nil
		c.state = Disconnected
	}
	c.metrics.SessionClosed()
	c.notifyLocked(func(l Listener) { l.OnDisconnected(reason) })
	close(lk.done)
	c.mu.Unlock()

	if reason == nil {
		c.logger.Info("disconnected from %s", lk.peer)
	} else {
		c.logger.Info("disconnected from %s: %v", lk.peer, reason)
	}
}

// ── Notification ─────────────────────────────────────────────────────

// notifyLocked queues fn for the current listener.  c.mu must be held.
func (c *Controller) notifyLocked(fn func(Listener)) {
	l := c.listener
	c.dispatcher.Dispatch(func() { fn(l) })
}

func (c *Controller) notify(fn func(Listener)) {
	c.mu.Lock()
	c.notifyLocked(fn)
	c.mu.Unlock()
}

// ── Link ─────────────────────────────────────────────────────────────

// link is the per-connection state shared by the controller and its
// two loops.
type link struct {
	h      transport.Handle
	peer   string
	ctx    context.Context
	cancel context.CancelFunc
	outbox chan string

	readDone  chan struct{}
	writeDone chan struct{}
	done      chan struct{} // closed once the link reached Disconnected
	closed    atomic.Bool
}

func newLink(h transport.Handle, outboxSize int) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		h:         h,
		peer:      h.Peer(),
		ctx:       ctx,
		cancel:    cancel,
		outbox:    make(chan string, outboxSize),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
		done:      make(chan struct{}),
	}
}
