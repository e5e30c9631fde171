package host

import (
	"time"

	"dprint-nvim/internal/logger"
)

const persistentErrorLua = `
local msg = ...
vim.notify(msg, vim.log.levels.ERROR, { title = "dprint" })
`

const transientLua = `
local text, ms = ...
vim.api.nvim_echo({ { text, "WarningMsg" } }, false, {})
vim.defer_fn(function()
  vim.api.nvim_echo({ { "", "" } }, false, {})
end, ms)
`

// luaExecutor is satisfied by *nvim.Nvim.
type luaExecutor interface {
	ExecLua(code string, result any, args ...any) error
}

// Notifier shows integration messages in Neovim. Messages that cannot be
// shown are written to the log instead.
type Notifier struct {
	v   luaExecutor
	log *logger.Logger
}

func NewNotifier(v luaExecutor, log *logger.Logger) *Notifier {
	return &Notifier{v: v, log: log}
}

func (n *Notifier) ShowError(message string) {
	if err := n.v.ExecLua(persistentErrorLua, nil, message); err != nil {
		n.log.Error("Could not show notification:", err.Error()+";", message)
	}
}

func (n *Notifier) ShowTransient(title, message string, timeout time.Duration) {
	text := "[dprint] " + title + ": " + message
	if err := n.v.ExecLua(transientLua, nil, text, timeout.Milliseconds()); err != nil {
		n.log.Error("Could not show notification:", err.Error()+";", text)
	}
}
