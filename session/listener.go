package session

// Listener receives session notifications.
//
// All methods are called from a single dispatcher goroutine owned by the
// Session, in the order the events happened, so implementations need no
// locking of their own. A slow listener delays later notifications but never
// the link. A listener may call Connect, Send and Disconnect; it must not
// call Close.
type Listener interface {
	// OnConnected is called once a link is up. name is the target's display name.
	OnConnected(name string)
	// OnDisconnected is called once per Disconnect call and once per failed
	// or dropped link.
	OnDisconnected()
	// OnMessage is called for every inbound frame.
	OnMessage(frame string)
	// OnError is called with a *ConnectionError or *IOError before the
	// matching OnDisconnected.
	OnError(err error)
}

// ListenerFuncs adapts optional functions to the Listener interface.
// Nil fields are ignored.
type ListenerFuncs struct {
	Connected    func(name string)
	Disconnected func()
	Message      func(frame string)
	Error        func(err error)
}

func (f ListenerFuncs) OnConnected(name string) {
	if f.Connected != nil {
		f.Connected(name)
	}
}

func (f ListenerFuncs) OnDisconnected() {
	if f.Disconnected != nil {
		f.Disconnected()
	}
}

func (f ListenerFuncs) OnMessage(frame string) {
	if f.Message != nil {
		f.Message(frame)
	}
}

func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// EventKind identifies a notification.
type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventMessage
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one notification as a value.
type Event struct {
	Kind EventKind
	// Name is set for EventConnected.
	Name string
	// Frame is set for EventMessage.
	Frame string
	// Err is set for EventError.
	Err error
}

// Deliver calls the Listener method matching the event kind.
func (ev Event) Deliver(l Listener) {
	switch ev.Kind {
	case EventConnected:
		l.OnConnected(ev.Name)
	case EventDisconnected:
		l.OnDisconnected()
	case EventMessage:
		l.OnMessage(ev.Frame)
	case EventError:
		l.OnError(ev.Err)
	}
}

// EventChannel is a Listener that forwards every notification to a channel.
// When the channel is full the dispatcher waits, which delays later
// notifications but never the link.
type EventChannel chan Event

// NewEventChannel creates an EventChannel with the given buffer size.
func NewEventChannel(size int) EventChannel {
	return make(EventChannel, size)
}

func (c EventChannel) OnConnected(name string) { c <- Event{Kind: EventConnected, Name: name} }
func (c EventChannel) OnDisconnected()         { c <- Event{Kind: EventDisconnected} }
func (c EventChannel) OnMessage(frame string)  { c <- Event{Kind: EventMessage, Frame: frame} }
func (c EventChannel) OnError(err error)       { c <- Event{Kind: EventError, Err: err} }

// MultiListener fans every notification out to each listener in order.
type MultiListener []Listener

func (m MultiListener) OnConnected(name string) {
	for _, l := range m {
		l.OnConnected(name)
	}
}

func (m MultiListener) OnDisconnected() {
	for _, l := range m {
		l.OnDisconnected()
	}
}

func (m MultiListener) OnMessage(frame string) {
	for _, l := range m {
		l.OnMessage(frame)
	}
}

func (m MultiListener) OnError(err error) {
	for _, l := range m {
		l.OnError(err)
	}
}

type nopListener struct{}

func (nopListener) OnConnected(string) {}
func (nopListener) OnDisconnected()    {}
func (nopListener) OnMessage(string)   {}
func (nopListener) OnError(error)      {}
