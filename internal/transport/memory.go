package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

const memoryDatagramQueue = 32

// MemoryNetwork is an in-process transport. Streams are synchronous pipes and
// datagrams are dropped when the receiver's queue is full, which mirrors the
// delivery guarantees of the real transport closely enough for tests.
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
	dials     int
}

// constructor for MemoryNetwork
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{listeners: make(map[string]*memoryListener)}
}

// Listen registers a listener under addr.
func (n *MemoryNetwork) Listen(addr string) (Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[addr]; ok {
		return nil, fmt.Errorf("address %s already in use", addr)
	}
	l := &memoryListener{
		network:  n,
		addr:     memoryAddr(addr),
		incoming: make(chan *memoryConn, 16),
		done:     make(chan struct{}),
	}
	n.listeners[addr] = l
	return l, nil
}

// Dial connects to the listener registered under addr. Dialing an address
// nobody listens on fails the way an unanswered handshake does.
func (n *MemoryNetwork) Dial(ctx context.Context, addr string) (Conn, error) {
	n.mu.Lock()
	n.dials++
	l, ok := n.listeners[addr]
	n.mu.Unlock()
	if !ok {
		return nil, &ConnectionError{Kind: TimedOut, Err: fmt.Errorf("no listener on %s", addr)}
	}

	client, server := newMemoryPair(memoryAddr("client->"+addr), l.addr)
	select {
	case l.incoming <- server:
		return client, nil
	case <-l.done:
		return nil, &ConnectionError{Kind: ClosedByPeer, Reason: "listener closed"}
	case <-ctx.Done():
		return nil, &ConnectionError{Kind: TimedOut, Err: ctx.Err()}
	}
}

// Dials reports how many times Dial was called.
func (n *MemoryNetwork) Dials() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials
}

type memoryAddr string

func (a memoryAddr) Network() string { return "memory" }
func (a memoryAddr) String() string  { return string(a) }

type memoryListener struct {
	network  *MemoryNetwork
	addr     memoryAddr
	incoming chan *memoryConn
	done     chan struct{}
	once     sync.Once
}

func (l *memoryListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.done:
		return nil, &ConnectionError{Kind: ClosedLocally}
	case <-ctx.Done():
		return nil, &ConnectionError{Kind: ClosedLocally, Err: ctx.Err()}
	}
}

func (l *memoryListener) Addr() net.Addr { return l.addr }

func (l *memoryListener) Close() error {
	l.once.Do(func() {
		l.network.mu.Lock()
		delete(l.network.listeners, string(l.addr))
		l.network.mu.Unlock()
		close(l.done)
	})
	return nil
}

// memoryLink is the state shared by both ends of a connection.
type memoryLink struct {
	mu       sync.Mutex
	closed   chan struct{}
	closedBy *memoryConn
	code     uint64
	reason   string
	writers  []*io.PipeWriter
	readers  []*io.PipeReader
}

type memoryConn struct {
	link      *memoryLink
	peer      *memoryConn
	local     memoryAddr
	remote    memoryAddr
	streams   chan Stream
	uni       chan ReceiveStream
	datagrams chan []byte
}

func newMemoryPair(clientAddr, serverAddr memoryAddr) (*memoryConn, *memoryConn) {
	link := &memoryLink{closed: make(chan struct{})}
	client := &memoryConn{
		link:      link,
		local:     clientAddr,
		remote:    serverAddr,
		streams:   make(chan Stream, 8),
		uni:       make(chan ReceiveStream, 8),
		datagrams: make(chan []byte, memoryDatagramQueue),
	}
	server := &memoryConn{
		link:      link,
		local:     serverAddr,
		remote:    clientAddr,
		streams:   make(chan Stream, 8),
		uni:       make(chan ReceiveStream, 8),
		datagrams: make(chan []byte, memoryDatagramQueue),
	}
	client.peer, server.peer = server, client
	return client, server
}

// closeError is the error this end observes once the link is closed.
func (c *memoryConn) closeError() error {
	c.link.mu.Lock()
	defer c.link.mu.Unlock()
	if c.link.closedBy == c {
		return &ConnectionError{Kind: ClosedLocally}
	}
	return &ConnectionError{Kind: ClosedByPeer, Code: c.link.code, Reason: c.link.reason}
}

func (c *memoryConn) isClosed() bool {
	select {
	case <-c.link.closed:
		return true
	default:
		return false
	}
}

func (c *memoryConn) newPipe() (*io.PipeReader, *io.PipeWriter, error) {
	r, w := io.Pipe()
	c.link.mu.Lock()
	defer c.link.mu.Unlock()
	select {
	case <-c.link.closed:
		return nil, nil, c.closeErrorLocked()
	default:
	}
	c.link.writers = append(c.link.writers, w)
	c.link.readers = append(c.link.readers, r)
	return r, w, nil
}

func (c *memoryConn) closeErrorLocked() error {
	if c.link.closedBy == c {
		return &ConnectionError{Kind: ClosedLocally}
	}
	return &ConnectionError{Kind: ClosedByPeer, Code: c.link.code, Reason: c.link.reason}
}

func (c *memoryConn) OpenStream(ctx context.Context) (Stream, error) {
	inR, inW, err := c.newPipe()
	if err != nil {
		return nil, err
	}
	outR, outW, err := c.newPipe()
	if err != nil {
		return nil, err
	}
	local := &memoryStream{conn: c, r: inR, w: outW}
	remote := &memoryStream{conn: c.peer, r: outR, w: inW}
	select {
	case c.peer.streams <- remote:
		return local, nil
	case <-c.link.closed:
		return nil, c.closeError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memoryConn) AcceptStream(ctx context.Context) (Stream, error) {
	if c.isClosed() {
		return nil, c.closeError()
	}
	select {
	case s := <-c.streams:
		return s, nil
	case <-c.link.closed:
		return nil, c.closeError()
	case <-ctx.Done():
		return nil, &ConnectionError{Kind: ClosedLocally, Err: ctx.Err()}
	}
}

func (c *memoryConn) OpenUniStream(ctx context.Context) (SendStream, error) {
	r, w, err := c.newPipe()
	if err != nil {
		return nil, err
	}
	select {
	case c.peer.uni <- &memoryStream{conn: c.peer, r: r}:
		return &memoryStream{conn: c, w: w}, nil
	case <-c.link.closed:
		return nil, c.closeError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memoryConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	if c.isClosed() {
		return nil, c.closeError()
	}
	select {
	case s := <-c.uni:
		return s, nil
	case <-c.link.closed:
		return nil, c.closeError()
	case <-ctx.Done():
		return nil, &ConnectionError{Kind: ClosedLocally, Err: ctx.Err()}
	}
}

func (c *memoryConn) SendDatagram(b []byte) error {
	select {
	case <-c.link.closed:
		return &DatagramError{Kind: DatagramConnectionClosed, Err: c.closeError()}
	default:
	}
	select {
	case c.peer.datagrams <- append([]byte(nil), b...):
	default:
		// queue full, the datagram is lost
	}
	return nil
}

func (c *memoryConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	if c.isClosed() {
		return nil, &DatagramError{Kind: DatagramConnectionClosed, Err: c.closeError()}
	}
	select {
	case b := <-c.datagrams:
		return b, nil
	case <-c.link.closed:
		return nil, &DatagramError{Kind: DatagramConnectionClosed, Err: c.closeError()}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memoryConn) RemoteAddr() net.Addr { return c.remote }

func (c *memoryConn) CloseWithError(code uint64, reason string) error {
	c.link.mu.Lock()
	defer c.link.mu.Unlock()
	select {
	case <-c.link.closed:
		return nil
	default:
	}
	c.link.closedBy = c
	c.link.code = code
	c.link.reason = reason
	close(c.link.closed)
	for _, w := range c.link.writers {
		w.CloseWithError(ErrConnectionClosed)
	}
	for _, r := range c.link.readers {
		r.CloseWithError(ErrConnectionClosed)
	}
	return nil
}

type memoryStream struct {
	conn *memoryConn
	r    *io.PipeReader
	w    *io.PipeWriter
}

// streamError reports pipe failures caused by the connection closing as
// ErrConnectionClosed, wrapping the close error seen by this end. A clean
// EOF is passed through.
func (s *memoryStream) streamError(err error) error {
	if err == nil || errors.Is(err, io.EOF) || !s.conn.isClosed() {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, s.conn.closeError())
}

func (s *memoryStream) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, fmt.Errorf("%w: stream is send-only", ErrStreamStopped)
	}
	n, err := s.r.Read(p)
	return n, s.streamError(err)
}

func (s *memoryStream) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, fmt.Errorf("%w: stream is receive-only", ErrStreamStopped)
	}
	n, err := s.w.Write(p)
	return n, s.streamError(err)
}

func (s *memoryStream) Close() error {
	if s.w == nil {
		return nil
	}
	return s.w.Close()
}
