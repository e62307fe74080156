package client

import "fmt"

// ErrorKind says which stage of a run failed.
type ErrorKind int

const (
	SetupFailed ErrorKind = iota + 1
	ConnectionFailed
	StreamFailed
	DatagramFailed
)

func (k ErrorKind) String() string {
	switch k {
	case SetupFailed:
		return "setup"
	case ConnectionFailed:
		return "connection"
	case StreamFailed:
		return "stream"
	case DatagramFailed:
		return "datagram"
	default:
		return "unknown"
	}
}

// ClientError wraps the failure that ended a SendMessage call. Err is a
// *transport.ConnectionError, *transport.DatagramError, *stream.ReadError or
// *stream.WriteError depending on Kind.
type ClientError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client %s error: %v", e.Kind, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }
