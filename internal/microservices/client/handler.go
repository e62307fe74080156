package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"pingpong/internal/message"
	"pingpong/internal/metrics"
	"pingpong/internal/shared"
	"pingpong/internal/stream"
	"pingpong/internal/transport"
)

// session drives one mode over an established connection.
type session struct {
	conn         transport.Conn
	inbox        *Inbox
	logger       *slog.Logger
	metrics      *metrics.Metrics
	mode         shared.Mode
	pollInterval time.Duration
}

func done(sent, times uint32) bool {
	return times != Forever && sent >= times
}

func (s *session) received(m message.Message, started time.Time) {
	s.inbox.push(m)
	s.metrics.RoundTrip(metrics.SideClient, s.mode.String(), time.Since(started))
	s.logger.Debug("response_received", "data", m.Payload(), "inbox_size", s.inbox.Len())
}

// sendBidirectional writes req and reads one reply on a single stream,
// times times.
func (s *session) sendBidirectional(ctx context.Context, req *message.Request, times uint32) error {
	st, err := s.conn.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	for sent := uint32(0); !done(sent, times); sent++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := time.Now()
		if err := stream.WriteMessage(st, req); err != nil {
			return err
		}
		resp, err := stream.ReadNextMessage(st)
		if err != nil {
			return err
		}
		s.received(resp, started)
	}
	return nil
}

// sendUnidirectional writes requests on an outgoing stream and reads replies
// from the stream the server opens back. The outgoing stream only becomes
// visible to the server once it carries data, so the first request goes out
// before the incoming stream is accepted.
func (s *session) sendUnidirectional(ctx context.Context, req *message.Request, times uint32) error {
	out, err := s.conn.OpenUniStream(ctx)
	if err != nil {
		return err
	}
	defer out.Close()

	var in transport.ReceiveStream
	for sent := uint32(0); !done(sent, times); sent++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := time.Now()
		if err := stream.WriteMessage(out, req); err != nil {
			return err
		}
		if in == nil {
			if in, err = s.conn.AcceptUniStream(ctx); err != nil {
				return err
			}
		}
		resp, err := stream.ReadNextMessage(in)
		if err != nil {
			return err
		}
		s.received(resp, started)
	}
	return nil
}

// sendDatagram sends req as one datagram and polls until any datagram comes
// back, times times. The reply is not matched against the request: whatever
// arrives first is taken as the answer.
func (s *session) sendDatagram(ctx context.Context, req *message.Request, times uint32) error {
	payload, err := message.Marshal(req)
	if err != nil {
		return &stream.WriteError{Kind: stream.SerializationFailed, Err: err}
	}
	limiter := rate.NewLimiter(rate.Every(s.pollInterval), 1)

	for sent := uint32(0); !done(sent, times); sent++ {
		started := time.Now()
		if err := s.conn.SendDatagram(payload); err != nil {
			return err
		}

		reply, err := s.awaitDatagram(ctx, limiter)
		if err != nil {
			return err
		}
		m, err := message.Unmarshal(reply)
		if err != nil {
			return &transport.DatagramError{Kind: transport.DatagramDeserializationFailed, Err: err}
		}
		s.received(m, started)
	}
	return nil
}

func (s *session) awaitDatagram(ctx context.Context, limiter *rate.Limiter) ([]byte, error) {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		pollCtx, cancel := context.WithTimeout(ctx, s.pollInterval)
		b, err := s.conn.ReceiveDatagram(pollCtx)
		cancel()
		if err == nil {
			return b, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Debug("datagram_poll_idle")
	}
}
