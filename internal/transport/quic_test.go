package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateConnectionError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   ConnectionErrorKind
		code   uint64
		reason string
	}{
		{
			name:   "remote application close",
			err:    &quic.ApplicationError{Remote: true, ErrorCode: 42, ErrorMessage: "done"},
			kind:   ClosedByPeer,
			code:   42,
			reason: "done",
		},
		{
			name: "local application close",
			err:  &quic.ApplicationError{ErrorCode: 0},
			kind: ClosedLocally,
		},
		{
			name: "idle timeout",
			err:  &quic.IdleTimeoutError{},
			kind: TimedOut,
		},
		{
			name: "handshake timeout",
			err:  &quic.HandshakeTimeoutError{},
			kind: TimedOut,
		},
		{
			name: "deadline",
			err:  fmt.Errorf("dial: %w", context.DeadlineExceeded),
			kind: TimedOut,
		},
		{
			name:   "remote transport close without error",
			err:    &quic.TransportError{Remote: true, ErrorCode: quic.NoError},
			kind:   ClosedByPeer,
			reason: "",
		},
		{
			name:   "transport error",
			err:    &quic.TransportError{ErrorCode: quic.TransportErrorCode(0xa), ErrorMessage: "bad frame"},
			kind:   Protocol,
			code:   uint64(quic.TransportErrorCode(0xa)),
			reason: "bad frame",
		},
		{
			name: "canceled",
			err:  context.Canceled,
			kind: ClosedLocally,
		},
		{
			name: "socket closed",
			err:  net.ErrClosed,
			kind: ClosedLocally,
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			kind: Protocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TranslateConnectionError(tt.err)

			var ce *ConnectionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.reason, ce.Reason)
		})
	}
}

func TestTranslateConnectionError_Passthrough(t *testing.T) {
	assert.NoError(t, TranslateConnectionError(nil))

	orig := &ConnectionError{Kind: MaxRetriesReached, RetryCount: 3}
	assert.Same(t, orig, TranslateConnectionError(orig))
}

func TestTranslateDatagramError(t *testing.T) {
	assert.NoError(t, TranslateDatagramError(nil))
	assert.ErrorIs(t, TranslateDatagramError(context.DeadlineExceeded), context.DeadlineExceeded)

	var de *DatagramError
	require.ErrorAs(t, TranslateDatagramError(&quic.ApplicationError{Remote: true}), &de)
	assert.Equal(t, DatagramConnectionClosed, de.Kind)

	require.ErrorAs(t, TranslateDatagramError(errors.New("too large")), &de)
	assert.Equal(t, DatagramProtocol, de.Kind)
}

func TestTranslateStreamError(t *testing.T) {
	assert.NoError(t, translateStreamError(nil))
	assert.Equal(t, io.EOF, translateStreamError(io.EOF))

	stopped := translateStreamError(&quic.StreamError{StreamID: 4, ErrorCode: 1})
	assert.ErrorIs(t, stopped, ErrStreamStopped)

	closed := translateStreamError(&quic.ApplicationError{Remote: true, ErrorCode: 3})
	assert.ErrorIs(t, closed, ErrConnectionClosed)
	var ce *ConnectionError
	require.ErrorAs(t, closed, &ce)
	assert.Equal(t, ClosedByPeer, ce.Kind)
	assert.True(t, IsClosed(closed))
}

func TestConnectionError_Messages(t *testing.T) {
	assert.Equal(t, `connection closed by peer with code 0: ""`, (&ConnectionError{Kind: ClosedByPeer}).Error())
	assert.Equal(t, "maximum retries (4) reached", (&ConnectionError{Kind: MaxRetriesReached, RetryCount: 4}).Error())
	assert.Equal(t, "connection timed out", (&ConnectionError{Kind: TimedOut}).Error())
	assert.False(t, IsClosed(&ConnectionError{Kind: MaxRetriesReached}))
	assert.False(t, IsClosed(errors.New("other")))
}

func TestQUICDialer_ResolveFailure(t *testing.T) {
	d := NewQUICDialer(QUICOptions{})

	_, err := d.Dial(context.Background(), "not a valid address")

	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, Protocol, ce.Kind)
}

func TestQUICOptions_Config(t *testing.T) {
	cfg := QUICOptions{IdleTimeout: 10 * time.Second}.config()

	assert.True(t, cfg.EnableDatagrams)
	assert.Equal(t, cfg.MaxIdleTimeout/2, cfg.KeepAlivePeriod)
	assert.Equal(t, []string{ALPN}, InsecureClientTLSConfig().NextProtos)
}
