// Package conn implements the per-node connection state machine: a single
// TCP connection multiplexing many concurrent requests by stream id, with
// a writer goroutine and a reader goroutine coordinated through an error
// channel in the style of a bidirectional relay.
package conn

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/alvaro7rlz/cql-go/frame"
)

// Result is a decoded response frame, or the terminal error that closed
// the Connection before a response arrived.
type Result struct {
	Header frame.Header
	Body   []byte
	Err    error
}

type writeJob struct {
	streamID int16
	payload  []byte
}

// Connection owns one TCP socket speaking the CQL frame format at a fixed,
// already-negotiated protocol version. It has no opinion about message
// opcodes or bodies; Submit takes a ready-to-send opcode+body and returns
// a channel the caller receives exactly one Result from.
type Connection struct {
	nc      net.Conn
	version frame.Version

	mu      sync.Mutex
	pending map[int16]chan Result
	closed  bool

	freeIDs  chan int16
	writeCh  chan writeJob
	eventCh  chan Result
	doneCh   chan struct{}
	closeErr error
}

// streamCapacity returns how many concurrently in-flight stream ids a
// connection at version v may allocate: 128 for v1/v2 (1-byte signed
// stream id, 0..127 reserved for client use) and 32768 for v3 (2-byte
// signed stream id, 0..32767 for client use; negative ids are reserved
// for server-pushed events).
func streamCapacity(v frame.Version) int {
	if v >= frame.V3 {
		return 32768
	}
	return 128
}

// Connect dials addr and wraps the resulting TCP connection. It does not
// perform protocol handshake (STARTUP/READY); that is node's job.
func Connect(ctx context.Context, addr string, v frame.Version) (*Connection, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newError(KindIO, "connect", err)
	}
	return New(nc, v), nil
}

// New wraps an already-established net.Conn as a Connection at version v
// and starts its writer/reader goroutines.
func New(nc net.Conn, v frame.Version) *Connection {
	cap := streamCapacity(v)
	c := &Connection{
		nc:      nc,
		version: v,
		pending: make(map[int16]chan Result),
		freeIDs: make(chan int16, cap),
		writeCh: make(chan writeJob, cap),
		eventCh: make(chan Result, 32),
		doneCh:  make(chan struct{}),
	}
	for i := 0; i < cap; i++ {
		c.freeIDs <- int16(i)
	}
	go c.relay()
	return c
}

// Version reports the connection's negotiated protocol version.
func (c *Connection) Version() frame.Version { return c.version }

// Events returns the channel server-pushed EVENT frames (negative stream
// id) are delivered on.
func (c *Connection) Events() <-chan Result { return c.eventCh }

// Submit sends a fully-formed request body under a freshly allocated
// stream id and returns a channel that receives exactly one Result.
// It fails immediately with ErrBusy if no stream id is free, and with
// ErrClosed if the connection has already failed or been closed.
func (c *Connection) Submit(opcode byte, body []byte) (<-chan Result, error) {
	var streamID int16
	select {
	case streamID = <-c.freeIDs:
	default:
		return nil, newError(KindBusy, "submit", nil)
	}

	ch := make(chan Result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.freeIDs <- streamID
		return nil, newError(KindClosed, "submit", c.closeErr)
	}
	c.pending[streamID] = ch
	c.mu.Unlock()

	h := frame.Header{
		Version:    c.version,
		Response:   false,
		StreamID:   streamID,
		Opcode:     opcode,
		BodyLength: uint32(len(body)),
	}
	buf := frame.EncodeHeader(make([]byte, 0, frame.HeaderLen(c.version)+4+len(body)), h)
	buf = append(buf, body...)

	select {
	case c.writeCh <- writeJob{streamID: streamID, payload: buf}:
		return ch, nil
	case <-c.doneCh:
		c.mu.Lock()
		delete(c.pending, streamID)
		c.mu.Unlock()
		return nil, newError(KindClosed, "submit", c.closeErr)
	}
}

// Close tears down the connection, failing every pending request with
// ErrClosed.
func (c *Connection) Close() error {
	return c.fail(newError(KindClosed, "close", nil))
}

// relay runs the writer and reader halves concurrently and, on the first
// failure from either, stops both and propagates the failure to every
// pending request.
func (c *Connection) relay() {
	errCh := make(chan error, 2)
	stopCh := make(chan struct{})

	go func() { errCh <- c.writeLoop(stopCh) }()
	go func() { errCh <- c.readLoop() }()

	// Wait for the first goroutine to finish (connection closed or error).
	err := <-errCh
	// Unblock the writer and force the reader's in-flight Read to fail.
	close(stopCh)
	_ = c.nc.Close()
	// Wait for the second goroutine. Both writer and reader have now
	// returned, so it is safe to close eventCh: deliver (called only from
	// readLoop) can no longer race a send against this close.
	<-errCh

	c.fail(newError(KindIO, "relay", err))
	close(c.eventCh)
}

func (c *Connection) writeLoop(stopCh <-chan struct{}) error {
	for {
		select {
		case job := <-c.writeCh:
			if _, err := c.nc.Write(job.payload); err != nil {
				return fmt.Errorf("conn: write stream %d: %w", job.streamID, err)
			}
		case <-stopCh:
			return nil
		}
	}
}

func (c *Connection) readLoop() error {
	for {
		h, err := frame.DecodeHeader(c.nc, c.version)
		if err != nil {
			return fmt.Errorf("conn: read header: %w", err)
		}
		body := make([]byte, h.BodyLength)
		if h.BodyLength > 0 {
			if _, err := io.ReadFull(c.nc, body); err != nil {
				return fmt.Errorf("conn: read body: %w", err)
			}
		}
		c.deliver(Result{Header: h, Body: body})
	}
}

func (c *Connection) deliver(res Result) {
	if res.Header.StreamID < 0 {
		select {
		case c.eventCh <- res:
		default:
			// Event backlog full: drop rather than block the reader loop.
		}
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[res.Header.StreamID]
	if ok {
		delete(c.pending, res.Header.StreamID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	ch <- res
	c.freeIDs <- res.Header.StreamID
}

func (c *Connection) fail(failErr *Error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeErr = failErr
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	close(c.doneCh)
	_ = c.nc.Close()

	for id, ch := range pending {
		ch <- Result{Err: failErr}
		c.freeIDs <- id
	}
	return nil
}
