package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	ncerr "drinksync/internal/errors"
)

// TCP reaches devices that expose their serial link over a TCP bridge
// (ser2net, a Pi running the scale daemon, an emulator).
type TCP struct {
	Timeout   time.Duration
	LocalPort int // optional source-port binding (0 = ephemeral)
}

// Dial connects to peer, a host:port address.
func (t *TCP) Dial(ctx context.Context, peer string) (Handle, error) {
	dialer := net.Dialer{Timeout: t.Timeout}

	if t.LocalPort > 0 {
		a, err := net.ResolveTCPAddr("tcp", fmt.Sprintf(":%d", t.LocalPort))
		if err != nil {
			return nil, fmt.Errorf("resolve local addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	conn, err := dialer.DialContext(ctx, "tcp", peer)
	if err != nil {
		return nil, ncerr.Wrap("dial", peer, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return newConnHandle(conn, peer), nil
}

// Listen binds svc.BindAddr.
func (t *TCP) Listen(ctx context.Context, svc ServiceIdentity) (Listener, error) {
	addr := svc.BindAddr
	if addr == "" {
		addr = DefaultTCPBindAddress
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("listen", addr, err)
	}
	return &streamListener{ln: ln}, nil
}

// Close is a no-op for stateless TCP transports.
func (t *TCP) Close() error { return nil }

// streamListener adapts a net.Listener to Listener.
type streamListener struct {
	ln net.Listener
}

func (l *streamListener) Accept(ctx context.Context) (Handle, error) {
	// Shut the listener down when the context expires.
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ncerr.Wrap("accept", l.Addr(), err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return newConnHandle(conn, ""), nil
}

func (l *streamListener) Addr() string { return l.ln.Addr().String() }

func (l *streamListener) Close() error { return l.ln.Close() }
