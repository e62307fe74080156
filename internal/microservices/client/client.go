package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"pingpong/internal/message"
	"pingpong/internal/metrics"
	"pingpong/internal/shared"
	"pingpong/internal/stream"
	"pingpong/internal/transport"
)

// Forever makes SendMessage repeat until the session fails or is closed.
const Forever uint32 = 0

const defaultPollInterval = 100 * time.Millisecond

var errClosed = errors.New("client closed")

// Config for a PingClient.
type Config struct {
	Host string
	Port int
	Mode shared.Mode

	// MaxRetries is the number of failed connection attempts tolerated
	// before giving up; the client dials at most MaxRetries+1 times.
	MaxRetries    int
	RetryInterval time.Duration

	// DatagramPollInterval paces polls for a datagram reply.
	DatagramPollInterval time.Duration
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// State of a PingClient.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Sending
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Sending:
		return "sending"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Option func(*PingClient)

func WithLogger(logger *slog.Logger) Option {
	return func(c *PingClient) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *PingClient) { c.metrics = m }
}

// PingClient connects to a pong server and exchanges requests over one mode.
type PingClient struct {
	config  Config
	dialer  transport.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
	runID   string

	state atomic.Int32
	inbox Inbox

	mu      sync.Mutex
	conn    transport.Conn
	cancel  context.CancelFunc // cancels the running SendMessage
	closing bool
}

// constructor for PingClient
func NewPingClient(config Config, dialer transport.Dialer, opts ...Option) *PingClient {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.DatagramPollInterval <= 0 {
		config.DatagramPollInterval = defaultPollInterval
	}
	c := &PingClient{
		config: config,
		dialer: dialer,
		logger: slog.Default(),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("run_id", c.runID, "mode", config.Mode.String())
	return c
}

func (c *PingClient) State() State { return State(c.state.Load()) }

func (c *PingClient) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("client_state", "state", s.String())
}

// Inbox holds every message received so far.
func (c *PingClient) Inbox() *Inbox { return &c.inbox }

// SendMessage connects, then sends req and waits for its response, times
// times over the configured mode (Forever repeats until failure or Close).
// The connection is closed when the exchange ends.
func (c *PingClient) SendMessage(parent context.Context, req *message.Request, times uint32) error {
	if c.dialer == nil {
		c.setState(Failed)
		return &ClientError{Kind: SetupFailed, Err: errors.New("no dialer configured")}
	}
	if req == nil {
		c.setState(Failed)
		return &ClientError{Kind: SetupFailed, Err: errors.New("nil request")}
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.closing = false
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	conn, err := c.connect(ctx)
	if err != nil {
		if c.isClosing() {
			c.setState(Closed)
			c.logger.Info("connect_aborted")
			return nil
		}
		c.setState(Failed)
		c.logger.Error("connect_failed", "addr", c.config.Addr(), "error", err)
		return &ClientError{Kind: ConnectionFailed, Err: err}
	}
	defer c.closeConn(conn)

	// a canceled context tears the connection down, which unblocks any
	// pending stream read
	stop := context.AfterFunc(ctx, func() { conn.CloseWithError(0, "canceled") })
	defer stop()

	c.setState(Sending)
	s := &session{
		conn:         conn,
		inbox:        &c.inbox,
		logger:       c.logger,
		metrics:      c.metrics,
		mode:         c.config.Mode,
		pollInterval: c.config.DatagramPollInterval,
	}

	switch c.config.Mode {
	case shared.Bidirectional:
		err = s.sendBidirectional(ctx, req, times)
	case shared.Unidirectional:
		err = s.sendUnidirectional(ctx, req, times)
	case shared.Datagram:
		err = s.sendDatagram(ctx, req, times)
	default:
		err = &ClientError{Kind: SetupFailed, Err: fmt.Errorf("unsupported mode %s", c.config.Mode)}
	}

	if err != nil {
		if c.isClosing() {
			c.setState(Closed)
			c.logger.Info("session_closed", "responses", c.inbox.Len())
			return nil
		}
		if parent.Err() != nil {
			c.setState(Closed)
			c.logger.Info("session_canceled", "responses", c.inbox.Len())
			return parent.Err()
		}
		c.setState(Failed)
		c.metrics.HandlerError(metrics.SideClient, c.config.Mode.String())
		c.logger.Error("session_failed", "error", err)
		return classify(err)
	}

	c.setState(Closed)
	c.logger.Info("session_completed", "responses", c.inbox.Len())
	return nil
}

func (c *PingClient) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// connect dials with a constant retry interval. Every failed attempt counts
// against MaxRetries; the run fails once the count exceeds it.
func (c *PingClient) connect(ctx context.Context) (transport.Conn, error) {
	c.setState(Connecting)
	addr := c.config.Addr()

	var (
		attempts uint32
		conn     transport.Conn
	)
	operation := func() error {
		if c.isClosing() {
			return backoff.Permanent(errClosed)
		}
		attempts++
		cn, err := c.dialer.Dial(ctx, addr)
		c.metrics.ConnectAttempt(err)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		conn = cn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("connect_attempt_failed",
			"addr", addr,
			"attempt", attempts,
			"retry_in", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.config.RetryInterval), uint64(c.config.MaxRetries)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, &transport.ConnectionError{Kind: transport.ClosedLocally, Err: ctx.Err()}
		}
		return nil, &transport.ConnectionError{
			Kind:       transport.MaxRetriesReached,
			RetryCount: attempts,
			Err:        err,
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected)
	c.logger.Info("connected", "addr", addr, "remote_addr", conn.RemoteAddr().String(), "attempts", attempts)
	return conn, nil
}

func (c *PingClient) closeConn(conn transport.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	if err := conn.CloseWithError(0, ""); err != nil {
		c.logger.Debug("close_failed", "error", err)
	}
}

// Close aborts a running SendMessage, whether it is still dialing or
// already exchanging messages, and closes its connection with application
// code 0. The aborted SendMessage returns nil. It is safe to call at any time.
func (c *PingClient) Close() error {
	c.mu.Lock()
	c.closing = true
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.setState(Closed)
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	return conn.CloseWithError(0, "")
}

func classify(err error) error {
	var ce *ClientError
	if errors.As(err, &ce) {
		return err
	}
	var re *stream.ReadError
	var we *stream.WriteError
	if errors.As(err, &re) || errors.As(err, &we) {
		return &ClientError{Kind: StreamFailed, Err: err}
	}
	var de *transport.DatagramError
	if errors.As(err, &de) {
		return &ClientError{Kind: DatagramFailed, Err: err}
	}
	var connErr *transport.ConnectionError
	if errors.As(err, &connErr) {
		return &ClientError{Kind: ConnectionFailed, Err: err}
	}
	return &ClientError{Kind: StreamFailed, Err: err}
}
