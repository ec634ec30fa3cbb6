package tunnel

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"drinksync/internal/sshtest"
	"drinksync/util"
)

// echoServer answers every connection by echoing its bytes back.
func echoServer(t *testing.T) string {
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

func gatewayTunnel(t *testing.T, gw *sshtest.Gateway) *SSHTunnel {
	t.Helper()
	tun := NewSSHTunnel(&SSHConfig{
		User:    "pi",
		Host:    gw.Host,
		Port:    gw.Port,
		KeyPath: sshtest.ClientKey(t),
	}, util.NewLogger(0))
	t.Cleanup(func() { tun.Close() })
	return tun
}

// roundTrip dials addr through tun and checks one echoed message.
func roundTrip(t *testing.T, tun *SSHTunnel, addr string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := tun.Dial(ctx, "tcp", addr)
	if err != nil {
		t.Fatalf("dial through gateway: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("Sync")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "Sync" {
		t.Errorf("echo = %q", buf)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSSHTunnel_DialThroughGateway(t *testing.T) {
	gw := sshtest.NewGateway(t)
	tun := gatewayTunnel(t, gw)

	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !tun.IsAlive() {
		t.Fatal("tunnel should be alive after connect")
	}
	roundTrip(t, tun, echoServer(t))
}

func TestSSHTunnel_ReconnectReleasesPrevious(t *testing.T) {
	gw := sshtest.NewGateway(t)
	tun := gatewayTunnel(t, gw)

	for i := 0; i < 2; i++ {
		if err := tun.Connect(context.Background()); err != nil {
			t.Fatalf("connect %d: %v", i+1, err)
		}
	}
	waitFor(t, "the first gateway session to close", func() bool {
		return gw.Accepted() == 2 && gw.Sessions() == 1
	})
	roundTrip(t, tun, echoServer(t))
}

func TestSSHTunnel_GatewayDrop(t *testing.T) {
	gw := sshtest.NewGateway(t)
	tun := gatewayTunnel(t, gw)
	echo := echoServer(t)

	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	gw.Drop()
	waitFor(t, "the tunnel to notice the drop", func() bool { return !tun.IsAlive() })

	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !tun.IsAlive() {
		t.Fatal("tunnel should be alive after reconnect")
	}
	roundTrip(t, tun, echo)
}

func TestSSHTunnel_CloseStopsKeepAlive(t *testing.T) {
	gw := sshtest.NewGateway(t)
	tun := NewSSHTunnel(&SSHConfig{
		User:      "pi",
		Host:      gw.Host,
		Port:      gw.Port,
		KeyPath:   sshtest.ClientKey(t),
		KeepAlive: 20 * time.Millisecond,
	}, util.NewLogger(0))

	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if !tun.IsAlive() {
		t.Fatal("answered keepalives should keep the tunnel up")
	}
	if err := tun.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitFor(t, "the gateway session to end", func() bool { return gw.Sessions() == 0 })
}
