package messenger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dprint-nvim/internal/contracts"
)

// peer is the editor-service side of an in-memory connection.
type peer struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *peer) read(t *testing.T) Message {
	t.Helper()
	m, err := ReadMessage(p.r)
	require.NoError(t, err)
	return m
}

func (p *peer) reply(t *testing.T, id uint32, kind contracts.MessageKind, to uint32, fields func(*BodyWriter)) {
	t.Helper()
	body := (&BodyWriter{}).WriteUint32(to)
	if fields != nil {
		fields(body)
	}
	require.NoError(t, WriteMessage(p.w, Message{ID: id, Kind: kind, Body: body.Bytes()}))
}

func newTestConn(t *testing.T) (*Conn, *peer) {
	t.Helper()
	toClientR, toClientW := io.Pipe()
	toPeerR, toPeerW := io.Pipe()

	conn := NewConn(toClientR, toPeerW, logr.Discard())
	conn.Start()

	t.Cleanup(func() {
		conn.Close()
		_ = toClientW.Close()
		_ = toPeerR.Close()
	})
	return conn, &peer{r: toPeerR, w: toClientW}
}

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := (&BodyWriter{}).WriteString("/tmp/a.ts").WriteUint32(7).WriteBool(true).Bytes()
	require.NoError(t, WriteMessage(&buf, Message{ID: 3, Kind: contracts.MessageKindCanFormat, Body: body}))

	m, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), m.ID)
	assert.Equal(t, contracts.MessageKindCanFormat, m.Kind)

	r := NewBodyReader(m.Body)
	assert.Equal(t, "/tmp/a.ts", r.ReadString())
	assert.Equal(t, uint32(7), r.ReadUint32())
	assert.True(t, r.ReadBool())
	assert.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}

func TestReadMessageRejectsBadSuccessBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Message{ID: 1, Kind: contracts.MessageKindActive}))
	raw := buf.Bytes()
	raw[len(raw)-1] = 0x00

	_, err := ReadMessage(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestReadMessageTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Message{ID: 1, Kind: contracts.MessageKindCanFormat, Body: []byte("abcdef")}))
	raw := buf.Bytes()[:14]

	_, err := ReadMessage(bytes.NewReader(raw))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestBodyReaderTruncatedString(t *testing.T) {
	body := (&BodyWriter{}).WriteUint32(10).Bytes()
	r := NewBodyReader(append(body, 'x'))

	assert.Equal(t, "", r.ReadString())
	assert.ErrorIs(t, r.Err(), ErrProtocol)
	assert.Zero(t, r.ReadUint32())
}

func TestCallCorrelatesOutOfOrderResponses(t *testing.T) {
	conn, p := newTestConn(t)

	type result struct {
		msg Message
		err error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		m, err := conn.Call(context.Background(), contracts.MessageKindCanFormat, (&BodyWriter{}).WriteString("a.ts").Bytes())
		first <- result{m, err}
	}()
	req1 := p.read(t)

	go func() {
		m, err := conn.Call(context.Background(), contracts.MessageKindCanFormat, (&BodyWriter{}).WriteString("b.md").Bytes())
		second <- result{m, err}
	}()
	req2 := p.read(t)
	require.NotEqual(t, req1.ID, req2.ID)

	p.reply(t, 100, contracts.MessageKindCanFormatResponse, req2.ID, func(b *BodyWriter) { b.WriteBool(false) })
	p.reply(t, 101, contracts.MessageKindCanFormatResponse, req1.ID, func(b *BodyWriter) { b.WriteBool(true) })

	r1 := <-first
	require.NoError(t, r1.err)
	assert.Equal(t, req1.ID, r1.msg.ID)
	assert.True(t, NewBodyReader(r1.msg.Body).ReadBool())

	r2 := <-second
	require.NoError(t, r2.err)
	assert.Equal(t, req2.ID, r2.msg.ID)
	assert.False(t, NewBodyReader(r2.msg.Body).ReadBool())
}

func TestCallReturnsResponseError(t *testing.T) {
	conn, p := newTestConn(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), contracts.MessageKindFormatFile, nil)
		errCh <- err
	}()

	req := p.read(t)
	p.reply(t, 50, contracts.MessageKindErrorResponse, req.ID, func(b *BodyWriter) { b.WriteString("syntax error on line 3") })

	err := <-errCh
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "syntax error on line 3", respErr.Message)
}

func TestCallCancelSendsCancelFormat(t *testing.T) {
	conn, p := newTestConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(ctx, contracts.MessageKindFormatFile, nil)
		errCh <- err
	}()

	req := p.read(t)
	cancel()

	cancelMsg := p.read(t)
	assert.Equal(t, contracts.MessageKindCancelFormat, cancelMsg.Kind)
	assert.Equal(t, req.ID, NewBodyReader(cancelMsg.Body).ReadUint32())
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// A late response for the cancelled request is dropped without blocking.
	p.reply(t, 60, contracts.MessageKindFormatFileResponse, req.ID, func(b *BodyWriter) { b.WriteBool(false) })
}

func TestPendingCallFailsWhenPeerExits(t *testing.T) {
	conn, p := newTestConn(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), contracts.MessageKindCanFormat, nil)
		errCh <- err
	}()

	p.read(t)
	require.NoError(t, p.w.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call did not fail after peer exit")
	}

	_, err := conn.Call(context.Background(), contracts.MessageKindCanFormat, nil)
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestResponseWrittenBeforePeerExitIsDelivered(t *testing.T) {
	for i := 0; i < 100; i++ {
		conn, p := newTestConn(t)

		type result struct {
			resp Message
			err  error
		}
		done := make(chan result, 1)
		go func() {
			resp, err := conn.Call(context.Background(), contracts.MessageKindCanFormat, nil)
			done <- result{resp, err}
		}()

		req := p.read(t)
		p.reply(t, 1, contracts.MessageKindCanFormatResponse, req.ID, func(b *BodyWriter) { b.WriteBool(true) })
		require.NoError(t, p.w.Close())

		select {
		case r := <-done:
			require.NoError(t, r.err, "iteration %d", i)
			assert.True(t, NewBodyReader(r.resp.Body).ReadBool())
		case <-time.After(2 * time.Second):
			t.Fatal("call did not return")
		}
	}
}

func TestProtocolErrorClosesConn(t *testing.T) {
	conn, p := newTestConn(t)

	go func() {
		_, _ = p.w.Write([]byte{0, 0, 0, 1, 0, 0, 0, 3, 0, 0, 0, 0, 1, 2, 3, 4})
	}()

	select {
	case <-conn.Done():
		assert.True(t, errors.Is(conn.Err(), ErrProtocol))
	case <-time.After(2 * time.Second):
		t.Fatal("connection stayed open after malformed frame")
	}
}

func TestActiveProbeIsAcknowledged(t *testing.T) {
	_, p := newTestConn(t)

	require.NoError(t, WriteMessage(p.w, Message{ID: 42, Kind: contracts.MessageKindActive}))

	ack := p.read(t)
	assert.Equal(t, contracts.MessageKindSuccessResponse, ack.Kind)
	assert.Equal(t, uint32(42), NewBodyReader(ack.Body).ReadUint32())
}
