package transport

import (
	"errors"
	"fmt"
)

// Stream level conditions. Stream reads and writes wrap one of these so the
// stream codec can classify failures with errors.Is.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrStreamStopped    = errors.New("stream stopped")
)

// ConnectionErrorKind enumerates why a connection could not be established or
// stopped working.
type ConnectionErrorKind int

const (
	ClosedByPeer ConnectionErrorKind = iota + 1
	ClosedLocally
	TimedOut
	Protocol
	MaxRetriesReached
)

func (k ConnectionErrorKind) String() string {
	switch k {
	case ClosedByPeer:
		return "closed by peer"
	case ClosedLocally:
		return "closed locally"
	case TimedOut:
		return "timed out"
	case Protocol:
		return "protocol error"
	case MaxRetriesReached:
		return "max retries reached"
	default:
		return "unknown connection error"
	}
}

// ConnectionError describes a connection failure. Code and Reason are set for
// ClosedByPeer and, when the transport reports them, Protocol. RetryCount is
// set for MaxRetriesReached.
type ConnectionError struct {
	Kind       ConnectionErrorKind
	Code       uint64
	Reason     string
	RetryCount uint32
	Err        error
}

func (e *ConnectionError) Error() string {
	switch e.Kind {
	case ClosedByPeer:
		return fmt.Sprintf("connection closed by peer with code %d: %q", e.Code, e.Reason)
	case Protocol:
		if e.Err != nil {
			return fmt.Sprintf("transport protocol error: %v", e.Err)
		}
		return fmt.Sprintf("transport protocol error %d: %q", e.Code, e.Reason)
	case MaxRetriesReached:
		return fmt.Sprintf("maximum retries (%d) reached", e.RetryCount)
	default:
		return "connection " + e.Kind.String()
	}
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsClosed reports whether err means the connection is gone, whichever side
// closed it.
func IsClosed(err error) bool {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Kind == ClosedByPeer || ce.Kind == ClosedLocally || ce.Kind == TimedOut
	}
	var de *DatagramError
	if errors.As(err, &de) {
		return de.Kind == DatagramConnectionClosed
	}
	return errors.Is(err, ErrConnectionClosed)
}

// DatagramErrorKind enumerates datagram failures.
type DatagramErrorKind int

const (
	DatagramDeserializationFailed DatagramErrorKind = iota + 1
	DatagramConnectionClosed
	DatagramUnsupportedByPeer
	DatagramProtocol
)

func (k DatagramErrorKind) String() string {
	switch k {
	case DatagramDeserializationFailed:
		return "datagram deserialization failed"
	case DatagramConnectionClosed:
		return "connection closed by peer"
	case DatagramUnsupportedByPeer:
		return "datagrams are not supported by peer"
	case DatagramProtocol:
		return "datagram protocol error"
	default:
		return "unknown datagram error"
	}
}

type DatagramError struct {
	Kind DatagramErrorKind
	Err  error
}

func (e *DatagramError) Error() string {
	if e.Err != nil && e.Kind != DatagramConnectionClosed {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *DatagramError) Unwrap() error { return e.Err }
