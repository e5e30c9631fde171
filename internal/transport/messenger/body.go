package messenger

import (
	"encoding/binary"
	"fmt"
)

// BodyWriter builds a message body out of u32 and length-prefixed string
// fields.
type BodyWriter struct {
	buf []byte
}

func (b *BodyWriter) WriteUint32(v uint32) *BodyWriter {
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
	return b
}

func (b *BodyWriter) WriteBool(v bool) *BodyWriter {
	if v {
		return b.WriteUint32(1)
	}
	return b.WriteUint32(0)
}

func (b *BodyWriter) WriteString(s string) *BodyWriter {
	b.WriteUint32(uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// Bytes returns the encoded body.
func (b *BodyWriter) Bytes() []byte {
	return b.buf
}

// BodyReader decodes fields written by BodyWriter. The first decoding error
// sticks; later reads return zero values and Err reports it.
type BodyReader struct {
	buf []byte
	off int
	err error
}

func NewBodyReader(body []byte) *BodyReader {
	return &BodyReader{buf: body}
}

func (r *BodyReader) ReadUint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.buf)-r.off < 4 {
		r.err = fmt.Errorf("%w: body truncated at offset %d", ErrProtocol, r.off)
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *BodyReader) ReadBool() bool {
	return r.ReadUint32() != 0
}

func (r *BodyReader) ReadString() string {
	n := int(r.ReadUint32())
	if r.err != nil {
		return ""
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: string of %d bytes overruns body at offset %d", ErrProtocol, n, r.off)
		return ""
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s
}

// Remaining reports whether unread bytes are left.
func (r *BodyReader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *BodyReader) Err() error {
	return r.err
}
