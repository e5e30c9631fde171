package host

import (
	"log"
	"strings"
	"sync"

	"github.com/neovim/go-client/nvim"
)

const outputBufferName = "dprint://output"

const showOutputLua = `
local buf = ...
for _, win in ipairs(vim.api.nvim_list_wins()) do
  if vim.api.nvim_win_get_buf(win) == buf then
    return
  end
end
vim.cmd("botright sbuffer " .. buf)
`

// BufferChannel is an output channel backed by a hidden scratch buffer.
// The buffer is created on first use and recreated if the user wipes it.
type BufferChannel struct {
	v    *nvim.Nvim
	name string

	mu     sync.Mutex
	buf    nvim.Buffer
	hasBuf bool
	lines  int
}

func NewBufferChannel(v *nvim.Nvim, name string) *BufferChannel {
	return &BufferChannel{v: v, name: name}
}

// AppendLine appends line to the buffer. Neovim lines cannot contain
// newlines, so any embedded ones are flattened.
func (c *BufferChannel) AppendLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, err := c.ensureLocked()
	if err != nil {
		log.Printf("[dprint] %s (output buffer unavailable: %v)", line, err)
		return
	}

	start := -1
	if c.lines == 0 {
		// A fresh buffer holds one empty line; replace it.
		start = 0
	}
	line = strings.ReplaceAll(line, "\n", " ")
	if err := c.v.SetBufferLines(buf, start, -1, true, [][]byte{[]byte(line)}); err != nil {
		log.Printf("[dprint] %s (append failed: %v)", line, err)
		return
	}
	c.lines++
}

// Show opens the buffer in a split unless a window already displays it.
func (c *BufferChannel) Show() {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, err := c.ensureLocked()
	if err != nil {
		log.Printf("[dprint] cannot show output: %v", err)
		return
	}
	if err := c.v.ExecLua(showOutputLua, nil, int(buf)); err != nil {
		log.Printf("[dprint] cannot show output: %v", err)
	}
}

func (c *BufferChannel) ensureLocked() (nvim.Buffer, error) {
	if c.hasBuf {
		valid, err := c.v.IsBufferValid(c.buf)
		if err == nil && valid {
			return c.buf, nil
		}
		c.hasBuf = false
	}

	buf, err := c.v.CreateBuffer(false, true)
	if err != nil {
		return 0, err
	}
	if err := c.v.SetBufferName(buf, c.name); err != nil {
		return 0, err
	}

	c.buf = buf
	c.hasBuf = true
	c.lines = 0
	return buf, nil
}
