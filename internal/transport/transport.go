// Package transport provides abstractions for reaching the paired
// device.  Transports handle the "how" of opening a duplex byte stream,
// whether over RFCOMM, plain TCP, an SSH-tunnelled TCP hop or an
// in-process pipe, independent of what the session does with it.
package transport

import (
	"context"
	"io"
	"net"
)

// Handle is an open duplex byte stream bound to exactly one peer.
// Closing it unblocks any Read or Write in progress.
type Handle interface {
	io.ReadWriteCloser

	// Peer returns the remote address as the transport knows it.
	Peer() string
}

// Listener is a bound listening capability advertised under a service
// identity.
type Listener interface {
	// Accept blocks until a peer connects, the listener is closed or
	// ctx is cancelled.
	Accept(ctx context.Context) (Handle, error)

	// Addr describes where the listener is bound.
	Addr() string

	Close() error
}

// Transport opens handles to peers and listens for them.  It replaces
// the platform's global default adapter so sessions can be tested
// against fakes.
type Transport interface {
	// Dial opens a handle to the peer at the given opaque address.
	Dial(ctx context.Context, peer string) (Handle, error)

	// Listen binds a listening capability for svc.
	Listen(ctx context.Context, svc ServiceIdentity) (Listener, error)

	// Close releases any long-lived resources held by the transport
	// (e.g. an SSH session).  Stateless transports return nil.
	Close() error
}

// connHandle adapts a net.Conn to Handle.
type connHandle struct {
	net.Conn
	peer string
}

func newConnHandle(c net.Conn, peer string) *connHandle {
	if peer == "" && c.RemoteAddr() != nil {
		peer = c.RemoteAddr().String()
	}
	return &connHandle{Conn: c, peer: peer}
}

func (h *connHandle) Peer() string { return h.peer }
