package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"pingpong/internal/certs"
	"pingpong/internal/metrics"
	"pingpong/internal/transport"
)

const DefaultPong = "Pong!"

type Config struct {
	Host            string
	Port            int
	CertificatePath string
	KeyPath         string

	// PongText is the data of every response. Empty means DefaultPong.
	PongText string
	// RequestRate caps requests per second per connection; 0 is unlimited.
	RequestRate float64

	QUIC transport.QUICOptions
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SetupError is returned when the server cannot start listening.
type SetupError struct {
	CertificatePath string
	KeyPath         string
	Err             error
}

func (e *SetupError) Error() string {
	if e.CertificatePath != "" {
		return fmt.Sprintf("server setup failed (certificate %s, key %s): %v", e.CertificatePath, e.KeyPath, e.Err)
	}
	return fmt.Sprintf("server setup failed: %v", e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Listen loads the configured certificate and opens a QUIC listener.
func Listen(config Config) (transport.Listener, error) {
	cert, err := certs.Load(config.CertificatePath, config.KeyPath)
	if err != nil {
		return nil, &SetupError{CertificatePath: config.CertificatePath, KeyPath: config.KeyPath, Err: err}
	}
	ln, err := transport.ListenQUIC(config.Addr(), cert, config.QUIC)
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	return ln, nil
}

type Option func(*PongServer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *PongServer) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PongServer) { s.metrics = m }
}

// ServeOnce makes Serve return after the first connection has been served.
func ServeOnce() Option {
	return func(s *PongServer) { s.once = true }
}

// server struct and methods
type PongServer struct {
	listener transport.Listener
	config   Config
	Manager  *SessionManager
	logger   *slog.Logger
	metrics  *metrics.Metrics
	once     bool

	wg sync.WaitGroup
	// per-connection goroutines
}

// constructor for PongServer
func NewPongServer(listener transport.Listener, config Config, opts ...Option) *PongServer {
	if config.PongText == "" {
		config.PongText = DefaultPong
	}
	s := &PongServer{
		listener: listener,
		config:   config,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Manager = NewSessionManager(s.logger)
	return s
}

func (s *PongServer) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed, serving each on
// its own goroutine. It returns a *transport.ConnectionError of kind
// ClosedLocally once no more connections can be accepted, or nil in
// ServeOnce mode.
func (s *PongServer) Serve(ctx context.Context) error {
	s.logger.Info("server_listening", "addr", s.listener.Addr().String())

	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			var ce *transport.ConnectionError
			if errors.As(err, &ce) && ce.Kind == transport.ClosedLocally {
				s.logger.Info("listener_closed")
				s.wg.Wait()
				return err
			}
			if ctx.Err() != nil {
				s.logger.Info("serve_canceled")
				s.wg.Wait()
				return &transport.ConnectionError{Kind: transport.ClosedLocally, Err: ctx.Err()}
			}
			// a single failed handshake does not stop the server
			s.logger.Warn("accept_failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func(conn transport.Conn) {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}(conn)

		if s.once {
			s.wg.Wait()
			return nil
		}
	}
}

// handle lifecycle of a single connection
func (s *PongServer) handleConnection(ctx context.Context, conn transport.Conn) {
	session := NewSession(conn, s.config.PongText, rate.Limit(s.config.RequestRate), s.logger, s.metrics)
	s.Manager.AddSession(session)
	s.metrics.SessionOpened()
	defer func() {
		s.Manager.RemoveSession(session)
		s.metrics.SessionClosed()
	}()

	err := session.Run(ctx)
	info := session.Info()
	if !endedNormally(err) {
		s.logger.Warn("session_failed",
			"session_id", session.ID,
			"requests", info.Requests,
			"error", err,
		)
		return
	}
	s.logger.Info("session_ended",
		"session_id", session.ID,
		"requests", info.Requests,
		"datagrams", info.Datagrams,
	)
}

// Shutdown closes the listener and every live connection, then waits for
// the connection goroutines or for ctx to be done.
func (s *PongServer) Shutdown(ctx context.Context) error {
	if err := s.listener.Close(); err != nil {
		s.logger.Warn("listener_close_failed", "error", err)
	}
	s.Manager.CloseAllSessions("server shutting down")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("server_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
