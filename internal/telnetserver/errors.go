package telnetserver

import "fmt"

// ConnectionClosed is the single error kind raised from the receive or
// send paths of a session: a clean peer close, a socket error, a
// client claiming WILL ECHO, or a sub-negotiation buffer overflow. The
// server recovers from it by deactivating and reaping the session; it
// never propagates past the drive loop.
type ConnectionClosed struct {
	Reason string
	Err    error
}

func (e *ConnectionClosed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection closed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("connection closed: %s", e.Reason)
}

func (e *ConnectionClosed) Unwrap() error {
	return e.Err
}

func errConnectionClosed(reason string) *ConnectionClosed {
	return &ConnectionClosed{Reason: reason}
}

func errConnectionClosedf(reason string, err error) *ConnectionClosed {
	return &ConnectionClosed{Reason: reason, Err: err}
}
