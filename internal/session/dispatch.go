package session

import (
	"sync"

	"drinksync/util"
)

// Dispatcher runs listener callbacks.  Implementations must run the
// functions in submission order, one at a time, and Dispatch must not
// wait for fn to run: the controller submits from its I/O goroutines
// and from inside callbacks.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.  Hosts with a UI
// thread typically wrap their "post to main loop" primitive.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// serialQueue is the default Dispatcher: an unbounded FIFO drained by
// at most one goroutine at a time.
type serialQueue struct {
	logger *util.Logger

	mu      sync.Mutex
	pending []func()
	running bool
}

func newSerialQueue(logger *util.Logger) *serialQueue {
	return &serialQueue{logger: logger}
}

func (q *serialQueue) Dispatch(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain()
}

func (q *serialQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(fn)
	}
}

// run isolates a panicking listener so later events still arrive.
func (q *serialQueue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("listener panic: %v", r)
		}
	}()
	fn()
}
