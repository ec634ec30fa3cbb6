package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	ncerr "drinksync/internal/errors"
	"drinksync/internal/sshtest"
	"drinksync/tunnel"
	"drinksync/util"
)

func echoListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	return ln.Addr().String()
}

func exchangeOnce(t *testing.T, h Handle, msg string) {
	t.Helper()
	if _, err := io.WriteString(h, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(h, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != msg {
		t.Errorf("echo = %q, want %q", buf, msg)
	}
}

// TestSSH_RedialsDeadGateway verifies a Dial after the gateway dropped
// brings the tunnel back up instead of failing on the stale client.
func TestSSH_RedialsDeadGateway(t *testing.T) {
	gw := sshtest.NewGateway(t)
	echo := echoListener(t)

	s := NewSSH(&tunnel.SSHConfig{
		User:    "pi",
		Host:    gw.Host,
		Port:    gw.Port,
		KeyPath: sshtest.ClientKey(t),
	}, util.NewLogger(0))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := s.Dial(ctx, echo)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	if h.Peer() != echo {
		t.Errorf("Peer() = %q, want %q", h.Peer(), echo)
	}
	exchangeOnce(t, h, "8")
	h.Close()

	gw.Drop()
	deadline := time.Now().Add(3 * time.Second)
	for s.tunnel.IsAlive() {
		if time.Now().After(deadline) {
			t.Fatal("tunnel never noticed the gateway drop")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h, err = s.Dial(ctx, echo)
	if err != nil {
		t.Fatalf("dial after drop: %v", err)
	}
	defer h.Close()
	exchangeOnce(t, h, "True")

	if got := gw.Accepted(); got != 2 {
		t.Errorf("gateway handshakes = %d, want 2", got)
	}
}

// TestSSH_ListenUnsupported verifies listening through a gateway is refused.
func TestSSH_ListenUnsupported(t *testing.T) {
	s := NewSSH(&tunnel.SSHConfig{Host: "scale-gw.local"}, util.NewLogger(0))
	_, err := s.Listen(context.Background(), DefaultService())
	if !errors.Is(err, ncerr.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
