package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinksync/util"
)

func TestSerialQueue_Order(t *testing.T) {
	q := newSerialQueue(util.NewLogger(0))

	var (
		mu      sync.Mutex
		got     []int
		running int
		overlap bool
	)
	done := make(chan struct{})
	const n = 200
	for i := 0; i < n; i++ {
		i := i
		q.Dispatch(func() {
			mu.Lock()
			running++
			if running > 1 {
				overlap = true
			}
			got = append(got, i)
			mu.Unlock()

			mu.Lock()
			running--
			mu.Unlock()
			if i == n-1 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n)
	for i, v := range got {
		require.Equal(t, i, v)
	}
	assert.False(t, overlap, "callbacks ran concurrently")
}

func TestSerialQueue_ReentrantDispatch(t *testing.T) {
	q := newSerialQueue(util.NewLogger(0))
	done := make(chan struct{})
	q.Dispatch(func() {
		q.Dispatch(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested dispatch never ran")
	}
}

func TestSerialQueue_PanicIsolated(t *testing.T) {
	q := newSerialQueue(util.NewLogger(0))
	done := make(chan struct{})
	q.Dispatch(func() { panic(errors.New("listener bug")) })
	q.Dispatch(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stopped after a panicking callback")
	}
}

func TestListenerFuncs_NilFields(t *testing.T) {
	var f ListenerFuncs
	assert.NotPanics(t, func() {
		f.OnConnected("x")
		f.OnConnectionFailed(nil)
		f.OnMessageReceived("x")
		f.OnMessageSent("x")
		f.OnSendFailed("x", nil)
		f.OnDisconnected(nil)
	})
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Kind: EventConnected, Peer: "AA:BB:CC:DD:EE:FF"}, "connected AA:BB:CC:DD:EE:FF"},
		{Event{Kind: EventMessageReceived, Text: "True"}, `message-received "True"`},
		{Event{Kind: EventSendFailed, Text: "8", Err: errors.New("not connected")}, `send-failed "8": not connected`},
		{Event{Kind: EventDisconnected}, "disconnected"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.String())
	}
}
