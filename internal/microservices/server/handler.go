package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pingpong/internal/message"
	"pingpong/internal/metrics"
	"pingpong/internal/shared"
	"pingpong/internal/stream"
	"pingpong/internal/transport"
)

// Session serves one accepted connection.
type Session struct {
	ID          string
	conn        transport.Conn
	connectedAt time.Time
	pong        string
	limiter     *rate.Limiter
	logger      *slog.Logger
	metrics     *metrics.Metrics

	requests  atomic.Uint64
	datagrams atomic.Uint64
}

// constructor for Session. A zero limit means requests are not throttled.
func NewSession(conn transport.Conn, pong string, limit rate.Limit, logger *slog.Logger, m *metrics.Metrics) *Session {
	if limit <= 0 {
		limit = rate.Inf
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		ID:          id,
		conn:        conn,
		connectedAt: time.Now(),
		pong:        pong,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger.With("session_id", id, "remote_addr", conn.RemoteAddr().String()),
		metrics:     m,
	}
}

func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

func (s *Session) Info() shared.SessionInfo {
	return shared.SessionInfo{
		ID:          s.ID,
		RemoteAddr:  s.RemoteAddr(),
		ConnectedAt: s.connectedAt,
		Requests:    s.requests.Load(),
		Datagrams:   s.datagrams.Load(),
	}
}

func (s *Session) Close(reason string) error {
	return s.conn.CloseWithError(0, reason)
}

// respond builds the reply to m, or returns nil if m is not a request.
func (s *Session) respond(ctx context.Context, m message.Message, mode shared.Mode) (*message.Response, error) {
	req, ok := m.(*message.Request)
	if !ok {
		s.metrics.IgnoredMessage()
		s.logger.Debug("non_request_ignored", "mode", mode.String(), "kind", m.Kind().String())
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s.requests.Add(1)
	s.metrics.RoundTrip(metrics.SideServer, mode.String(), 0)
	s.logger.Debug("request_received", "mode", mode.String(), "data", req.Data)
	return message.NewResponse(req.ID, s.pong), nil
}

// HandleBidirectional accepts one bidirectional stream and answers every
// request on it until the client finishes the stream.
func (s *Session) HandleBidirectional(ctx context.Context) error {
	st, err := s.conn.AcceptStream(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	s.logger.Debug("stream_accepted", "mode", shared.Bidirectional.String())

	for {
		m, err := stream.ReadNextMessage(st)
		if err != nil {
			if stream.IsEndOfStream(err) {
				return nil
			}
			return err
		}
		resp, err := s.respond(ctx, m, shared.Bidirectional)
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}
		if err := stream.WriteMessage(st, resp); err != nil {
			return err
		}
	}
}

// HandleUnidirectional accepts the client's outgoing stream, opens one back
// and answers every request until the client finishes its stream.
func (s *Session) HandleUnidirectional(ctx context.Context) error {
	in, err := s.conn.AcceptUniStream(ctx)
	if err != nil {
		return err
	}
	out, err := s.conn.OpenUniStream(ctx)
	if err != nil {
		return err
	}
	defer out.Close()
	s.logger.Debug("stream_accepted", "mode", shared.Unidirectional.String())

	for {
		m, err := stream.ReadNextMessage(in)
		if err != nil {
			if stream.IsEndOfStream(err) {
				return nil
			}
			return err
		}
		resp, err := s.respond(ctx, m, shared.Unidirectional)
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}
		if err := stream.WriteMessage(out, resp); err != nil {
			return err
		}
	}
}

// HandleDatagram answers a single datagram. A lost reply is not retried.
func (s *Session) HandleDatagram(ctx context.Context) error {
	b, err := s.conn.ReceiveDatagram(ctx)
	if err != nil {
		return err
	}
	m, err := message.Unmarshal(b)
	if err != nil {
		return &transport.DatagramError{Kind: transport.DatagramDeserializationFailed, Err: err}
	}
	resp, err := s.respond(ctx, m, shared.Datagram)
	if err != nil || resp == nil {
		return err
	}
	payload, err := message.Marshal(resp)
	if err != nil {
		return &transport.DatagramError{Kind: transport.DatagramProtocol, Err: err}
	}
	if err := s.conn.SendDatagram(payload); err != nil {
		return err
	}
	s.datagrams.Add(1)
	return nil
}

type branch int

const (
	branchBidirectional branch = iota
	branchUnidirectional
	branchDatagram
)

func (b branch) String() string {
	return [...]string{"bidirectional", "unidirectional", "datagram"}[b]
}

type event struct {
	branch branch
	err    error
}

// Run drives the three handlers concurrently. The datagram handler is
// restarted after every datagram; the session ends as soon as either stream
// handler returns, and the connection is closed with code 0.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// at most one goroutine per branch is in flight
	events := make(chan event, 3)
	var wg sync.WaitGroup
	launch := func(b branch, handle func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events <- event{branch: b, err: handle(ctx)}
		}()
	}

	launch(branchBidirectional, s.HandleBidirectional)
	launch(branchUnidirectional, s.HandleUnidirectional)
	launch(branchDatagram, s.HandleDatagram)

	var result error
loop:
	for {
		select {
		case ev := <-events:
			if ev.branch != branchDatagram {
				result = ev.err
				s.logger.Debug("stream_handler_finished", "mode", ev.branch.String(), "error", ev.err)
				break loop
			}
			if ev.err != nil {
				s.metrics.HandlerError(metrics.SideServer, ev.branch.String())
				s.logger.Warn("datagram_handler_failed", "error", ev.err)
			}
			if rearmDatagram(ev.err) && ctx.Err() == nil {
				launch(branchDatagram, s.HandleDatagram)
			}
		case <-ctx.Done():
			result = ctx.Err()
			break loop
		}
	}

	cancel()
	if err := s.conn.CloseWithError(0, ""); err != nil {
		s.logger.Debug("close_failed", "error", err)
	}
	wg.Wait()
	return result
}

// rearmDatagram reports whether the datagram branch should keep running
// after returning err.
func rearmDatagram(err error) bool {
	if err == nil {
		return true
	}
	var de *transport.DatagramError
	return errors.As(err, &de) && de.Kind == transport.DatagramDeserializationFailed
}

// endedNormally reports whether err only says the peer went away.
func endedNormally(err error) bool {
	return err == nil ||
		stream.IsEndOfStream(err) ||
		transport.IsClosed(err) ||
		errors.Is(err, context.Canceled)
}
