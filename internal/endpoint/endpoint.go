// Package endpoint wraps one established TCP connection with the
// single-reader / serialized-writer discipline described in §4.2 and §5:
// reads are never concurrent with other reads on the same connection, and
// writes are emitted as one atomic length-prefix-then-body pair under a
// per-connection mutex so frames from distinct producers never interleave.
package endpoint

import (
	"context"
	"net"
	"sync"
	"time"

	"filetransfer/internal/protocol"
)

// Endpoint is one peer's duplex byte channel plus its identity and
// lifecycle. The id and display name are mutable (assigned post-accept,
// updated on CLIENT_CONNECT) so they live behind their own RWMutex, separate
// from the write mutex.
type Endpoint struct {
	conn        net.Conn
	connectedAt time.Time

	writeMu sync.Mutex

	mu          sync.RWMutex
	id          string
	displayName string

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// New wraps conn. The returned Endpoint owns conn: Close tears it down.
func New(conn net.Conn) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	return &Endpoint{
		conn:        conn,
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the peer's assigned short id, empty until SetID is called.
func (e *Endpoint) ID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.id
}

// SetID assigns the peer's hub-issued id.
func (e *Endpoint) SetID(id string) {
	e.mu.Lock()
	e.id = id
	e.mu.Unlock()
}

// DisplayName returns the peer's chosen name, empty until CLIENT_CONNECT.
func (e *Endpoint) DisplayName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.displayName
}

// SetDisplayName updates the peer's chosen name.
func (e *Endpoint) SetDisplayName(name string) {
	e.mu.Lock()
	e.displayName = name
	e.mu.Unlock()
}

// ConnectedAt is when this endpoint was constructed.
func (e *Endpoint) ConnectedAt() time.Time { return e.connectedAt }

// RemoteAddr is the underlying connection's remote address, for logging.
func (e *Endpoint) RemoteAddr() net.Addr { return e.conn.RemoteAddr() }

// Done returns a channel closed once this endpoint's cancellation signal
// has tripped (on I/O error, framing error, or explicit Close).
func (e *Endpoint) Done() <-chan struct{} { return e.ctx.Done() }

// Send serializes and emits one frame. On any I/O error the endpoint is
// considered dead: the cancellation signal is raised and the error is
// returned to the caller.
func (e *Endpoint) Send(m protocol.Message) error {
	payload := protocol.Encode(m)

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.conn.SetWriteDeadline(time.Time{}); err != nil {
		// Non-fatal: some conn implementations (e.g. net.Pipe) don't
		// support deadlines at all.
		_ = err
	}
	if err := protocol.WriteFrame(e.conn, payload); err != nil {
		e.trip()
		return err
	}
	return nil
}

// Receive returns the next decoded message, io.EOF on orderly close, or a
// framing/transport error. Receive must not be called concurrently with
// itself on the same Endpoint.
func (e *Endpoint) Receive() (protocol.Message, error) {
	payload, err := protocol.ReadFrame(e.conn)
	if err != nil {
		e.trip()
		return nil, err
	}
	msg, err := protocol.Decode(payload)
	if err != nil {
		e.trip()
		return nil, err
	}
	return msg, nil
}

// trip raises the cancellation signal if it is not already raised. It does
// not close the connection; only Close does that.
func (e *Endpoint) trip() {
	select {
	case <-e.ctx.Done():
	default:
		e.cancel()
	}
}

// Close is idempotent: it releases the channel and unblocks any blocked
// I/O. Safe to call from any goroutine, any number of times.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.cancel()
		err = e.conn.Close()
	})
	return err
}
