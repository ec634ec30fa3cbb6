package core

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"drinksync/util"
)

func quietLogger() *util.Logger { return util.NewLogger(0) }

// blockingStdin returns a reader that never yields a line, standing in
// for an interactive terminal nobody types into.
func blockingStdin(t *testing.T) io.Reader {
	t.Helper()
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	return pr
}

// loopback listens on an ephemeral 127.0.0.1 port.
func loopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

// dialWhenReady dials addr until a listener comes up.
func dialWhenReady(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("listener on %s never came up: %v", addr, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// readChunk reads one chunk from conn within a deadline.
func readChunk(t *testing.T, conn net.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

// syncBuffer is a goroutine-safe output sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	port, err := util.FindFreePort()
	require.NoError(t, err)
	return util.FormatAddr("127.0.0.1", port)
}
