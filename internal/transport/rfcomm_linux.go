//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	ncerr "drinksync/internal/errors"
)

// Dial opens an RFCOMM socket to peer.  The connect runs on its own
// goroutine; cancelling ctx shuts the socket down, which aborts it.
func (r *RFCOMM) Dial(ctx context.Context, peer string) (Handle, error) {
	bd, ch, err := ParseRFCOMMAddress(peer, r.Channel)
	if err != nil {
		return nil, ncerr.Wrap("dial", peer, err)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	fd, err := rfcommSocket()
	if err != nil {
		return nil, ncerr.Wrap("dial", peer, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: bd, Channel: ch})
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
		<-done
		err = ctx.Err()
	}
	if err != nil {
		unix.Close(fd)
		return nil, ncerr.Wrap("dial", peer, err)
	}

	f, err := pollable(fd, "rfcomm:"+peer)
	if err != nil {
		return nil, ncerr.Wrap("dial", peer, err)
	}
	return &fileHandle{File: f, peer: peer}, nil
}

// Listen binds the service channel on any local adapter.  svc.UUID and
// svc.Name are not advertised; see RFCOMM.
func (r *RFCOMM) Listen(_ context.Context, svc ServiceIdentity) (Listener, error) {
	ch := svc.Channel
	if ch == 0 {
		ch = r.Channel
	}
	if ch == 0 {
		ch = DefaultRFCOMMChannel
	}

	fd, err := rfcommSocket()
	if err != nil {
		return nil, ncerr.Wrap("listen", svc.String(), err)
	}
	if err := unix.Bind(fd, &unix.SockaddrRFCOMM{Channel: ch}); err != nil {
		unix.Close(fd)
		return nil, ncerr.Wrap("listen", svc.String(), fmt.Errorf("bind channel %d: %w", ch, err))
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, ncerr.Wrap("listen", svc.String(), err)
	}

	f, err := pollable(fd, fmt.Sprintf("rfcomm-listen:%d", ch))
	if err != nil {
		return nil, ncerr.Wrap("listen", svc.String(), err)
	}
	return &rfcommListener{f: f, svc: svc, channel: ch}, nil
}

// Close is a no-op; sockets are owned by their handles and listeners.
func (r *RFCOMM) Close() error { return nil }

type rfcommListener struct {
	f       *os.File
	svc     ServiceIdentity
	channel uint8
}

// Accept waits on the runtime poller so that closing the listener or
// cancelling ctx unblocks it.
func (l *rfcommListener) Accept(ctx context.Context) (Handle, error) {
	rc, err := l.f.SyscallConn()
	if err != nil {
		return nil, ncerr.Wrap("accept", l.svc.String(), err)
	}

	stop := context.AfterFunc(ctx, func() { _ = l.f.SetReadDeadline(time.Now()) })
	defer stop()

	var (
		nfd    int
		sa     unix.Sockaddr
		accErr error
	)
	err = rc.Read(func(fd uintptr) bool {
		nfd, sa, accErr = unix.Accept4(int(fd), unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		return !errors.Is(accErr, unix.EAGAIN)
	})
	if err == nil {
		err = accErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ncerr.Wrap("accept", l.svc.String(), err)
	}

	peer := "rfcomm"
	if rsa, ok := sa.(*unix.SockaddrRFCOMM); ok {
		peer = FormatBDAddr(rsa.Addr)
	}
	f := os.NewFile(uintptr(nfd), "rfcomm:"+peer)
	return &fileHandle{File: f, peer: peer}, nil
}

func (l *rfcommListener) Addr() string {
	return fmt.Sprintf("rfcomm channel %d (%s)", l.channel, l.svc)
}

func (l *rfcommListener) Close() error { return l.f.Close() }

// fileHandle adapts a pollable *os.File socket to Handle.
type fileHandle struct {
	*os.File
	peer string
}

func (h *fileHandle) Peer() string { return h.peer }

func rfcommSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err == nil {
		return fd, nil
	}
	switch {
	case errors.Is(err, unix.EAFNOSUPPORT), errors.Is(err, unix.EPROTONOSUPPORT):
		return -1, fmt.Errorf("%w: %v", ncerr.ErrUnsupported, err)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return -1, fmt.Errorf("%w: %v", ncerr.ErrCapabilityDenied, err)
	}
	return -1, err
}

// pollable switches fd to non-blocking mode and hands it to the runtime
// poller, so Close interrupts blocked reads.
func pollable(fd int, name string) (*os.File, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}
