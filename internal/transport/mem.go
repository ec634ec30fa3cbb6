package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	ncerr "drinksync/internal/errors"
)

// Mem is an in-process transport built on net.Pipe.  Listeners register
// under their service UUID and dials address the UUID string, which
// mirrors how a radio client looks a service up by identifier.
type Mem struct {
	mu        sync.Mutex
	listeners map[uuid.UUID]*memListener
}

// NewMem returns an empty in-process transport.
func NewMem() *Mem {
	return &Mem{listeners: make(map[uuid.UUID]*memListener)}
}

// Dial connects to the listener registered under the service UUID given
// as peer.  An unknown UUID fails with ErrServiceNotFound.
func (m *Mem) Dial(ctx context.Context, peer string) (Handle, error) {
	id, err := uuid.Parse(peer)
	if err != nil {
		return nil, ncerr.Wrap("dial", peer, fmt.Errorf("not a service uuid: %w", err))
	}

	m.mu.Lock()
	l := m.listeners[id]
	m.mu.Unlock()
	if l == nil {
		return nil, ncerr.Wrap("dial", peer, ncerr.ErrServiceNotFound)
	}

	c1, c2 := net.Pipe()
	server := newConnHandle(c1, "mem-client:"+peer)
	select {
	case l.incoming <- server:
		return newConnHandle(c2, peer), nil
	case <-l.done:
		c1.Close()
		c2.Close()
		return nil, ncerr.Wrap("dial", peer, ncerr.ErrServiceNotFound)
	case <-ctx.Done():
		c1.Close()
		c2.Close()
		return nil, ncerr.Wrap("dial", peer, ctx.Err())
	}
}

// Listen registers svc.  Only one listener may advertise a UUID at a time.
func (m *Mem) Listen(_ context.Context, svc ServiceIdentity) (Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.listeners[svc.UUID]; ok {
		return nil, ncerr.Wrap("listen", svc.String(), fmt.Errorf("service already advertised"))
	}
	l := &memListener{
		owner:    m,
		svc:      svc,
		incoming: make(chan Handle),
		done:     make(chan struct{}),
	}
	m.listeners[svc.UUID] = l
	return l, nil
}

// Close drops every registration.
func (m *Mem) Close() error {
	m.mu.Lock()
	ls := make([]*memListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.mu.Unlock()

	for _, l := range ls {
		l.Close()
	}
	return nil
}

type memListener struct {
	owner     *Mem
	svc       ServiceIdentity
	incoming  chan Handle
	done      chan struct{}
	closeOnce sync.Once
}

func (l *memListener) Accept(ctx context.Context) (Handle, error) {
	select {
	case h := <-l.incoming:
		return h, nil
	case <-l.done:
		return nil, ncerr.Wrap("accept", l.svc.String(), net.ErrClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memListener) Addr() string { return "mem:" + l.svc.UUID.String() }

func (l *memListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.owner.mu.Lock()
		if l.owner.listeners[l.svc.UUID] == l {
			delete(l.owner.listeners, l.svc.UUID)
		}
		l.owner.mu.Unlock()
	})
	return nil
}
