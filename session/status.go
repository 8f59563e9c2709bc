package session

// Status is the client's connection state. The Client stores it and updates
// it on connect, after HELLO, when requests are added or resolved, on
// transport loss, and on Close.
type Status int

const (
	// StatusNotConnected is the initial state, and the state entered again
	// after a transport loss: the client holds no live handle and is not
	// attempting one.
	StatusNotConnected Status = iota
	// StatusConnecting means a transport dial is in flight.
	StatusConnecting
	// StatusOpen means the transport is open and the HELLO handshake has
	// completed, with no outstanding request.
	StatusOpen
	// StatusActive is StatusOpen with at least one outstanding request.
	StatusActive
	// StatusClosing means Close has been called and is rejecting
	// outstanding requests and closing the transport.
	StatusClosing
	// StatusClosed is terminal: the client will never reconnect.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusNotConnected:
		return "not_connected"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusActive:
		return "active"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
