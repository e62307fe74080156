package stream

import (
	"errors"
	"fmt"
	"io"

	"pingpong/internal/message"
	"pingpong/internal/transport"
)

// ErrorKind classifies stream read and write failures.
type ErrorKind int

const (
	ConnectionClosed ErrorKind = iota + 1
	StreamStopped
	SerializationFailed
	DeserializationFailed
	FrameTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionClosed:
		return "connection closed"
	case StreamStopped:
		return "stream stopped"
	case SerializationFailed:
		return "serialization failed"
	case DeserializationFailed:
		return "deserialization failed"
	case FrameTooLarge:
		return "frame too large"
	default:
		return "unknown stream error"
	}
}

// ReadError is returned by ReadExact and ReadNextMessage. Size is the number
// of bytes the failed read asked for.
type ReadError struct {
	Kind ErrorKind
	Size uint64
	Err  error
}

func (e *ReadError) Error() string {
	if e.Err == nil {
		return "read: " + e.Kind.String()
	}
	return fmt.Sprintf("read: %s: %v", e.Kind, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// EndOfStream reports whether the peer finished the stream cleanly between
// two frames.
func (e *ReadError) EndOfStream() bool {
	return e.Kind == StreamStopped && errors.Is(e.Err, io.EOF)
}

type WriteError struct {
	Kind ErrorKind
	Err  error
}

func (e *WriteError) Error() string {
	if e.Err == nil {
		return "write: " + e.Kind.String()
	}
	return fmt.Sprintf("write: %s: %v", e.Kind, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsEndOfStream reports whether err is a clean end of stream at a frame
// boundary.
func IsEndOfStream(err error) bool {
	var re *ReadError
	return errors.As(err, &re) && re.EndOfStream()
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, transport.ErrStreamStopped):
		return StreamStopped
	default:
		return ConnectionClosed
	}
}

func serializationKind(err error) ErrorKind {
	var serr *message.SerializationError
	if errors.As(err, &serr) && serr.Kind == message.DeserializationFailed {
		return DeserializationFailed
	}
	return SerializationFailed
}
