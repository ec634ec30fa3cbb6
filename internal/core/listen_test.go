package core

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinksync/config"
	"drinksync/internal/hydration"
	"drinksync/internal/transport"
)

func listenMode(t *testing.T, addr, reply string, keepOpen bool) (*ListenMode, *syncBuffer) {
	t.Helper()
	svc := transport.DefaultService()
	svc.BindAddr = addr
	out := &syncBuffer{}
	return &ListenMode{
		Transport: &transport.TCP{},
		Service:   svc,
		KeepOpen:  keepOpen,
		Reply:     reply,
		Tracker:   hydration.NewTracker(hydration.NewMemStore()),
		Logger:    quietLogger(),
		Stdin:     blockingStdin(t),
		Stdout:    out,
	}, out
}

func runAsync(ctx context.Context, m Mode) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("mode did not return")
		return nil
	}
}

func TestListenMode_EchoesAndTracks(t *testing.T) {
	addr := freeAddr(t)
	mode, out := listenMode(t, addr, config.ReplyEcho, false)
	done := runAsync(context.Background(), mode)

	conn := dialWhenReady(t, addr)
	_, err := conn.Write([]byte("8"))
	require.NoError(t, err)
	assert.Equal(t, "Received: 8", readChunk(t, conn))
	conn.Close()

	require.NoError(t, waitDone(t, done))
	assert.Equal(t, "8\n", out.String())
	assert.Equal(t, 8, mode.Tracker.Intake())
}

func TestListenMode_SyncHandshake(t *testing.T) {
	addr := freeAddr(t)
	mode, _ := listenMode(t, addr, config.ReplySync, false)
	done := runAsync(context.Background(), mode)

	conn := dialWhenReady(t, addr)
	_, err := conn.Write([]byte("Sync"))
	require.NoError(t, err)
	assert.Equal(t, "Sync Confirmed", readChunk(t, conn))

	// Anything else goes unanswered under the sync policy.
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, err = conn.Read(make([]byte, 16))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())

	conn.Close()
	require.NoError(t, waitDone(t, done))
}

func TestListenMode_KeepOpenServesPeersInTurn(t *testing.T) {
	addr := freeAddr(t)
	mode, out := listenMode(t, addr, config.ReplyEcho, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, mode)

	for _, msg := range []string{"True", "16"} {
		conn := dialWhenReady(t, addr)
		_, err := conn.Write([]byte(msg))
		require.NoError(t, err)
		assert.Equal(t, "Received: "+msg, readChunk(t, conn))
		conn.Close()
	}

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, "True\n16\n", out.String())
	assert.Equal(t, 24, mode.Tracker.Intake())
}

func TestListenMode_CancelWhileWaiting(t *testing.T) {
	mode, _ := listenMode(t, freeAddr(t), config.ReplyNone, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, mode)

	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestListenMode_BindFailure(t *testing.T) {
	ln := loopback(t)
	mode, _ := listenMode(t, ln.Addr().String(), config.ReplyNone, false)

	err := waitDone(t, runAsync(context.Background(), mode))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

func TestListenMode_ForwardsStdin(t *testing.T) {
	addr := freeAddr(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	mode, _ := listenMode(t, addr, config.ReplyNone, false)
	mode.Stdin = pr
	done := runAsync(context.Background(), mode)

	conn := dialWhenReady(t, addr)
	go pw.Write([]byte("Average weight: 512.25 grams\n")) //nolint:errcheck
	assert.Equal(t, "Average weight: 512.25 grams", readChunk(t, conn))
	conn.Close()

	require.NoError(t, waitDone(t, done))
}
