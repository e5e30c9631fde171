// Package messenger speaks the dprint editor-service wire protocol: framed
// binary messages over the child process stdio, with request/response
// correlation by message id.
package messenger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"dprint-nvim/internal/contracts"
)

// maxBodyLen bounds a single message body. Formatted files larger than this
// are rejected instead of allocating unbounded buffers off a corrupt header.
const maxBodyLen = 512 << 20

var successBytes = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

// ErrProtocol is returned when the peer sends malformed data.
var ErrProtocol = errors.New("editor service protocol error")

// Message is a single framed editor-service message.
type Message struct {
	ID   uint32
	Kind contracts.MessageKind
	Body []byte
}

// WriteMessage writes m in a single Write call so concurrent writers guarded
// by one mutex never interleave partial frames.
func WriteMessage(w io.Writer, m Message) error {
	if len(m.Body) > maxBodyLen {
		return fmt.Errorf("message body of %d bytes exceeds limit", len(m.Body))
	}

	buf := make([]byte, 12, 12+len(m.Body)+len(successBytes))
	binary.BigEndian.PutUint32(buf[0:4], m.ID)
	binary.BigEndian.PutUint32(buf[4:8], uint32(m.Kind))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(m.Body)))
	buf = append(buf, m.Body...)
	buf = append(buf, successBytes[:]...)

	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one framed message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}

	m := Message{
		ID:   binary.BigEndian.Uint32(header[0:4]),
		Kind: contracts.MessageKind(binary.BigEndian.Uint32(header[4:8])),
	}

	bodyLen := binary.BigEndian.Uint32(header[8:12])
	if bodyLen > maxBodyLen {
		return Message{}, fmt.Errorf("%w: body length %d exceeds limit", ErrProtocol, bodyLen)
	}

	m.Body = make([]byte, bodyLen)
	if _, err := io.ReadFull(r, m.Body); err != nil {
		return Message{}, unexpectedEOF(err)
	}

	var trailer [4]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return Message{}, unexpectedEOF(err)
	}
	if !bytes.Equal(trailer[:], successBytes[:]) {
		return Message{}, fmt.Errorf("%w: bad success bytes %x after message %d", ErrProtocol, trailer, m.ID)
	}

	return m, nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
