// Package transport is the boundary to the secure multiplexed transport the
// ping/pong protocol runs on. It exposes bidirectional streams,
// unidirectional streams and unreliable datagrams, and translates the
// underlying implementation's failures into the error kinds in errors.go.
package transport

import (
	"context"
	"io"
	"net"
)

// ALPN is the application protocol negotiated during the TLS handshake.
const ALPN = "pingpong"

// SendStream is the writing half of a stream. Close ends the stream cleanly.
type SendStream interface {
	io.Writer
	Close() error
}

// ReceiveStream is the reading half of a stream. Read returns io.EOF after
// the peer closed its side cleanly.
type ReceiveStream interface {
	io.Reader
}

// Stream is an ordered, reliable, bidirectional byte stream.
type Stream interface {
	SendStream
	ReceiveStream
}

// Conn is an established connection.
type Conn interface {
	OpenStream(ctx context.Context) (Stream, error)
	AcceptStream(ctx context.Context) (Stream, error)
	OpenUniStream(ctx context.Context) (SendStream, error)
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)

	// SendDatagram queues b for unreliable delivery. It never blocks.
	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)

	RemoteAddr() net.Addr
	CloseWithError(code uint64, reason string) error
}

// Listener hands out connections accepted from peers.
type Listener interface {
	// Accept returns a *ConnectionError of kind ClosedLocally once the
	// listener has been closed.
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Dialer establishes connections to a listener.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}
