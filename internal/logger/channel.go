package logger

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// channelWriter adapts an OutputChannel to the io.Writer zap writes encoded
// entries to. Each entry may span several lines when the message or an
// attached error contains newlines.
type channelWriter struct {
	out OutputChannel
}

func (w channelWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\r\n")
	for _, line := range strings.Split(text, "\n") {
		w.out.AppendLine(strings.TrimRight(line, "\r"))
	}
	return len(p), nil
}

// WriterChannel is an OutputChannel over a plain writer, used when there is
// no editor to host the output (CLI mode, stderr before the host is up).
type WriterChannel struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterChannel(w io.Writer) *WriterChannel {
	return &WriterChannel{w: w}
}

func (c *WriterChannel) AppendLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.w.Write(append([]byte(line), '\n'))
}

// Show is a no-op; a plain writer is always in view.
func (c *WriterChannel) Show() {}

// MemoryChannel records lines in memory.
type MemoryChannel struct {
	mu    sync.Mutex
	lines []string
	shown int
}

func (c *MemoryChannel) AppendLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *MemoryChannel) Show() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown++
}

func (c *MemoryChannel) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *MemoryChannel) ShowCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shown
}

func (c *MemoryChannel) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var buf bytes.Buffer
	for _, line := range c.lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}
