package host

import (
	"sync"

	"github.com/neovim/go-client/nvim"

	"dprint-nvim/internal/app"
	"dprint-nvim/internal/selector"
)

const augroupName = "DprintFormatting"

const registerLua = `
local name, patterns, format_on_save = ...
local group = vim.api.nvim_create_augroup(name, { clear = true })
if format_on_save and #patterns > 0 then
  vim.api.nvim_create_autocmd("BufWritePre", {
    group = group,
    pattern = patterns,
    command = "DprintFormat",
  })
end
return group
`

const disposeLua = `
local group = ...
pcall(vim.api.nvim_del_augroup_by_id, group)
`

// Registry registers the formatting provider as an augroup holding its
// autocmds. Deleting the augroup is the disposal.
type Registry struct {
	v            *nvim.Nvim
	formatOnSave bool
}

func NewRegistry(v *nvim.Nvim, formatOnSave bool) *Registry {
	return &Registry{v: v, formatOnSave: formatOnSave}
}

func (r *Registry) RegisterFormattingProvider(sel selector.Selector) (app.Registration, error) {
	var group int
	if err := r.v.ExecLua(registerLua, &group, augroupName, sel.AutocmdPatterns(), r.formatOnSave); err != nil {
		return nil, err
	}
	return &augroupRegistration{v: r.v, group: group}, nil
}

type augroupRegistration struct {
	v     *nvim.Nvim
	group int
	once  sync.Once
}

// Dispose deletes the augroup. Only the first call reaches Neovim.
func (r *augroupRegistration) Dispose() error {
	var err error
	r.once.Do(func() {
		err = r.v.ExecLua(disposeLua, nil, r.group)
	})
	return err
}
