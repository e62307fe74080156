package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICOptions tunes the QUIC connections created by DialQUIC and ListenQUIC.
// Zero values keep quic-go's defaults.
type QUICOptions struct {
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
}

func (o QUICOptions) config() *quic.Config {
	cfg := &quic.Config{
		EnableDatagrams:      true,
		HandshakeIdleTimeout: o.HandshakeTimeout,
		MaxIdleTimeout:       o.IdleTimeout,
	}
	if o.IdleTimeout > 0 {
		cfg.KeepAlivePeriod = o.IdleTimeout / 2
	}
	return cfg
}

// ServerTLSConfig returns the TLS configuration the server listens with.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}
}

// InsecureClientTLSConfig skips verification of the server certificate. The
// server is expected to run with a throwaway self-signed certificate.
func InsecureClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // peers use self-signed certificates
		ServerName:         "localhost",
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
	}
}

// QUICDialer dials QUIC servers without validating their certificate.
type QUICDialer struct {
	tlsConfig *tls.Config
	config    *quic.Config
}

// constructor for QUICDialer
func NewQUICDialer(opts QUICOptions) *QUICDialer {
	return &QUICDialer{
		tlsConfig: InsecureClientTLSConfig(),
		config:    opts.config(),
	}
}

// Dial performs the QUIC handshake with addr (host:port).
func (d *QUICDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	if _, err := net.ResolveUDPAddr("udp", addr); err != nil {
		return nil, &ConnectionError{Kind: Protocol, Err: fmt.Errorf("resolve %s: %w", addr, err)}
	}
	conn, err := quic.DialAddr(ctx, addr, d.tlsConfig, d.config)
	if err != nil {
		return nil, TranslateConnectionError(err)
	}
	return &quicConn{conn: conn}, nil
}

// ListenQUIC starts a QUIC listener on addr (host:port).
func ListenQUIC(addr string, cert tls.Certificate, opts QUICOptions) (Listener, error) {
	ln, err := quic.ListenAddr(addr, ServerTLSConfig(cert), opts.config())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &quicListener{ln: ln}, nil
}

type quicListener struct {
	ln     *quic.Listener
	closed atomic.Bool
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		if l.closed.Load() {
			return nil, &ConnectionError{Kind: ClosedLocally, Err: err}
		}
		return nil, TranslateConnectionError(err)
	}
	return &quicConn{conn: conn}, nil
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

func (l *quicListener) Close() error {
	l.closed.Store(true)
	return l.ln.Close()
}

type quicConn struct {
	conn *quic.Conn
}

func (c *quicConn) OpenStream(ctx context.Context) (Stream, error) {
	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, TranslateConnectionError(err)
	}
	return &quicStream{stream: s}, nil
}

func (c *quicConn) AcceptStream(ctx context.Context) (Stream, error) {
	s, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, TranslateConnectionError(err)
	}
	return &quicStream{stream: s}, nil
}

func (c *quicConn) OpenUniStream(ctx context.Context) (SendStream, error) {
	s, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, TranslateConnectionError(err)
	}
	return &quicSendStream{stream: s}, nil
}

func (c *quicConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	s, err := c.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, TranslateConnectionError(err)
	}
	return &quicReceiveStream{stream: s}, nil
}

func (c *quicConn) SendDatagram(b []byte) error {
	if !c.conn.ConnectionState().SupportsDatagrams {
		return &DatagramError{Kind: DatagramUnsupportedByPeer}
	}
	if err := c.conn.SendDatagram(b); err != nil {
		return TranslateDatagramError(err)
	}
	return nil
}

func (c *quicConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	b, err := c.conn.ReceiveDatagram(ctx)
	if err != nil {
		return nil, TranslateDatagramError(err)
	}
	return b, nil
}

func (c *quicConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *quicConn) CloseWithError(code uint64, reason string) error {
	return c.conn.CloseWithError(quic.ApplicationErrorCode(code), reason)
}

type quicStream struct {
	stream *quic.Stream
}

func (s *quicStream) Read(p []byte) (int, error) {
	n, err := s.stream.Read(p)
	return n, translateStreamError(err)
}

func (s *quicStream) Write(p []byte) (int, error) {
	n, err := s.stream.Write(p)
	return n, translateStreamError(err)
}

func (s *quicStream) Close() error { return s.stream.Close() }

type quicSendStream struct {
	stream *quic.SendStream
}

func (s *quicSendStream) Write(p []byte) (int, error) {
	n, err := s.stream.Write(p)
	return n, translateStreamError(err)
}

func (s *quicSendStream) Close() error { return s.stream.Close() }

type quicReceiveStream struct {
	stream *quic.ReceiveStream
}

func (s *quicReceiveStream) Read(p []byte) (int, error) {
	n, err := s.stream.Read(p)
	return n, translateStreamError(err)
}

// TranslateConnectionError maps a quic-go connection failure onto a
// *ConnectionError. Errors that already are one are returned unchanged.
func TranslateConnectionError(err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}

	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		if appErr.Remote {
			return &ConnectionError{
				Kind:   ClosedByPeer,
				Code:   uint64(appErr.ErrorCode),
				Reason: appErr.ErrorMessage,
				Err:    err,
			}
		}
		return &ConnectionError{Kind: ClosedLocally, Err: err}
	}

	var idleErr *quic.IdleTimeoutError
	var handshakeErr *quic.HandshakeTimeoutError
	if errors.As(err, &idleErr) || errors.As(err, &handshakeErr) || errors.Is(err, context.DeadlineExceeded) {
		return &ConnectionError{Kind: TimedOut, Err: err}
	}

	var transportErr *quic.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Remote && transportErr.ErrorCode == quic.NoError {
			return &ConnectionError{Kind: ClosedByPeer, Reason: transportErr.ErrorMessage, Err: err}
		}
		return &ConnectionError{
			Kind:   Protocol,
			Code:   uint64(transportErr.ErrorCode),
			Reason: transportErr.ErrorMessage,
			Err:    err,
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return &ConnectionError{Kind: ClosedLocally, Err: err}
	}
	return &ConnectionError{Kind: Protocol, Err: err}
}

// TranslateDatagramError maps a quic-go datagram failure onto a
// *DatagramError. Context errors are passed through so callers polling with
// a deadline can tell an idle poll from a failure.
func TranslateDatagramError(err error) error {
	if err == nil {
		return nil
	}
	var de *DatagramError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if IsClosed(TranslateConnectionError(err)) {
		return &DatagramError{Kind: DatagramConnectionClosed, Err: err}
	}
	return &DatagramError{Kind: DatagramProtocol, Err: err}
}

func translateStreamError(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) {
		return fmt.Errorf("%w: %w", ErrStreamStopped, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, TranslateConnectionError(err))
}
