package session

import "fmt"

// Listener receives the outcomes of a Controller.  Calls for one
// controller are totally ordered and never concurrent.  Implementations
// may call back into the controller.
type Listener interface {
	// OnConnected fires once per successful connect or accept.
	OnConnected(peer string)
	// OnConnectionFailed fires once per failed attempt, never after
	// OnConnected for the same attempt.
	OnConnectionFailed(err error)
	// OnMessageReceived fires for each non-empty chunk read from the peer.
	OnMessageReceived(text string)
	// OnMessageSent fires once per send whose bytes were written.
	OnMessageSent(text string)
	// OnSendFailed fires once per send that was rejected or failed.
	OnSendFailed(text string, err error)
	// OnDisconnected is the terminal event of a connection.  err is nil
	// for a local close, ErrPeerClosed for end-of-stream and the read
	// error otherwise.
	OnDisconnected(err error)
}

// ListenerFuncs adapts optional functions to Listener.  Nil fields are
// ignored.
type ListenerFuncs struct {
	Connected        func(peer string)
	ConnectionFailed func(err error)
	MessageReceived  func(text string)
	MessageSent      func(text string)
	SendFailed       func(text string, err error)
	Disconnected     func(err error)
}

func (f ListenerFuncs) OnConnected(peer string) {
	if f.Connected != nil {
		f.Connected(peer)
	}
}

func (f ListenerFuncs) OnConnectionFailed(err error) {
	if f.ConnectionFailed != nil {
		f.ConnectionFailed(err)
	}
}

func (f ListenerFuncs) OnMessageReceived(text string) {
	if f.MessageReceived != nil {
		f.MessageReceived(text)
	}
}

func (f ListenerFuncs) OnMessageSent(text string) {
	if f.MessageSent != nil {
		f.MessageSent(text)
	}
}

func (f ListenerFuncs) OnSendFailed(text string, err error) {
	if f.SendFailed != nil {
		f.SendFailed(text, err)
	}
}

func (f ListenerFuncs) OnDisconnected(err error) {
	if f.Disconnected != nil {
		f.Disconnected(err)
	}
}

// NopListener discards every event.
type NopListener struct{}

func (NopListener) OnConnected(string) {}
func (NopListener) OnConnectionFailed(error) {}
func (NopListener) OnMessageReceived(string) {}
func (NopListener) OnMessageSent(string) {}
func (NopListener) OnSendFailed(string, error) {}
func (NopListener) OnDisconnected(error) {}

// ── Channel adapter ──────────────────────────────────────────────────

// EventKind identifies which callback produced an Event.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventConnectionFailed
	EventMessageReceived
	EventMessageSent
	EventSendFailed
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectionFailed:
		return "connection-failed"
	case EventMessageReceived:
		return "message-received"
	case EventMessageSent:
		return "message-sent"
	case EventSendFailed:
		return "send-failed"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one listener callback captured as a value.
type Event struct {
	Kind EventKind
	Peer string // EventConnected
	Text string // message events
	Err  error  // failure and disconnect events
}

func (e Event) String() string {
	switch {
	case e.Peer != "":
		return fmt.Sprintf("%s %s", e.Kind, e.Peer)
	case e.Err != nil && e.Text != "":
		return fmt.Sprintf("%s %q: %v", e.Kind, e.Text, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Text != "":
		return fmt.Sprintf("%s %q", e.Kind, e.Text)
	default:
		return e.Kind.String()
	}
}

// EventStream is a Listener that forwards every callback to a channel.
// Delivery blocks the controller's dispatcher until the event is
// consumed, so readers must keep draining C.
type EventStream struct {
	C chan Event
}

// NewEventStream returns an EventStream whose channel holds up to
// buffer events.
func NewEventStream(buffer int) *EventStream {
	return &EventStream{C: make(chan Event, buffer)}
}

func (s *EventStream) OnConnected(peer string) {
	s.C <- Event{Kind: EventConnected, Peer: peer}
}

func (s *EventStream) OnConnectionFailed(err error) {
	s.C <- Event{Kind: EventConnectionFailed, Err: err}
}

func (s *EventStream) OnMessageReceived(text string) {
	s.C <- Event{Kind: EventMessageReceived, Text: text}
}

func (s *EventStream) OnMessageSent(text string) {
	s.C <- Event{Kind: EventMessageSent, Text: text}
}

func (s *EventStream) OnSendFailed(text string, err error) {
	s.C <- Event{Kind: EventSendFailed, Text: text, Err: err}
}

func (s *EventStream) OnDisconnected(err error) {
	s.C <- Event{Kind: EventDisconnected, Err: err}
}
