package messenger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"dprint-nvim/internal/contracts"
)

// ErrConnClosed is returned for calls on, or pending on, a closed connection.
var ErrConnClosed = errors.New("editor service connection closed")

// ResponseError is an error reported by the editor service itself. It is a
// final answer for the request and is never worth retrying.
type ResponseError struct {
	Message string
}

func (e *ResponseError) Error() string {
	return e.Message
}

// Conn multiplexes concurrent requests over one editor-service stream.
//
// Responses carry the id of the message they answer as the first body
// field; the read loop strips it and hands the rest to the waiting caller.
type Conn struct {
	r   io.Reader
	w   io.Writer
	log logr.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint32]chan Message

	nextID atomic.Uint32

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewConn creates a connection reading responses from r and writing requests
// to w. Start must be called before any Call.
func NewConn(r io.Reader, w io.Writer, log logr.Logger) *Conn {
	return &Conn{
		r:       r,
		w:       w,
		log:     log,
		pending: make(map[uint32]chan Message),
		done:    make(chan struct{}),
	}
}

// Start launches the read loop.
func (c *Conn) Start() {
	go c.readLoop()
}

// Done is closed once the connection can no longer be used.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection closed, or nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close fails every pending call with ErrConnClosed. It does not close the
// underlying stream; the owner of the process does that.
func (c *Conn) Close() {
	c.closeWithError(ErrConnClosed)
}

// Send writes a message that expects no response and returns its id.
func (c *Conn) Send(kind contracts.MessageKind, body []byte) (uint32, error) {
	if err := c.Err(); err != nil {
		return 0, err
	}
	id := c.nextID.Add(1)
	if err := c.write(Message{ID: id, Kind: kind, Body: body}); err != nil {
		return 0, err
	}
	return id, nil
}

// Call writes a request and waits for its response. The returned message has
// the id of the request and a body with the echoed id already removed.
//
// When ctx ends while a FormatFile request is in flight, a CancelFormat for
// it is sent before returning ctx.Err().
func (c *Conn) Call(ctx context.Context, kind contracts.MessageKind, body []byte) (Message, error) {
	if err := c.Err(); err != nil {
		return Message{}, err
	}

	id := c.nextID.Add(1)
	ch := make(chan Message, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(Message{ID: id, Kind: kind, Body: body}); err != nil {
		return Message{}, err
	}

	select {
	case <-ctx.Done():
		if kind == contracts.MessageKindFormatFile {
			cancelBody := (&BodyWriter{}).WriteUint32(id).Bytes()
			if _, err := c.Send(contracts.MessageKindCancelFormat, cancelBody); err != nil {
				c.log.V(1).Info("could not send cancellation", "id", id, "error", err.Error())
			}
		}
		return Message{}, ctx.Err()
	case <-c.done:
		// The read loop delivers before it closes, so a reply read just
		// ahead of EOF is already buffered.
		select {
		case resp := <-ch:
			return decodeResponse(resp)
		default:
			return Message{}, c.err
		}
	case resp := <-ch:
		return decodeResponse(resp)
	}
}

func decodeResponse(resp Message) (Message, error) {
	if resp.Kind == contracts.MessageKindErrorResponse {
		r := NewBodyReader(resp.Body)
		text := r.ReadString()
		if err := r.Err(); err != nil {
			return Message{}, err
		}
		return Message{}, &ResponseError{Message: text}
	}
	return resp, nil
}

func (c *Conn) write(m Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := WriteMessage(c.w, m); err != nil {
		err = fmt.Errorf("%w: write %s: %w", ErrConnClosed, m.Kind, err)
		c.closeWithError(err)
		return err
	}
	return nil
}

func (c *Conn) readLoop() {
	for {
		m, err := ReadMessage(c.r)
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				c.closeWithError(err)
			} else {
				c.closeWithError(fmt.Errorf("%w: %w", ErrConnClosed, err))
			}
			return
		}
		c.dispatch(m)
	}
}

func (c *Conn) dispatch(m Message) {
	if m.Kind.IsResponse() {
		r := NewBodyReader(m.Body)
		originalID := r.ReadUint32()
		if err := r.Err(); err != nil {
			c.log.Error(err, "dropping response without message id", "kind", m.Kind.String())
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[originalID]
		delete(c.pending, originalID)
		c.mu.Unlock()

		if !ok {
			// Cancelled or timed out callers are already gone.
			c.log.V(1).Info("dropping response for unknown request", "id", originalID, "kind", m.Kind.String())
			return
		}
		ch <- Message{ID: originalID, Kind: m.Kind, Body: m.Body[4:]}
		return
	}

	switch m.Kind {
	case contracts.MessageKindActive:
		body := (&BodyWriter{}).WriteUint32(m.ID).Bytes()
		if _, err := c.Send(contracts.MessageKindSuccessResponse, body); err != nil {
			c.log.V(1).Info("could not answer active probe", "error", err.Error())
		}
	default:
		c.log.V(1).Info("ignoring unexpected message", "id", m.ID, "kind", m.Kind.String())
	}
}

func (c *Conn) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}
