package host

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"

	"dprint-nvim/internal/app"
	"dprint-nvim/internal/config"
	"dprint-nvim/internal/logger"
	"dprint-nvim/internal/metrics"
	"dprint-nvim/internal/service"
	"dprint-nvim/internal/shell"
	"dprint-nvim/internal/watch"
)

const echoLua = `
local text, hl = ...
vim.api.nvim_echo({ { text, hl } }, true, {})
`

// initTimeout bounds the presence check and editor-info query.
const initTimeout = 30 * time.Second

// Commands is a state container for Neovim command handlers.
// Activation is lazy: the first handler call reads g:dprint, opens the
// output buffer and registers the formatting provider.
type Commands struct {
	// mu serializes activation, resets and shutdown.
	mu sync.Mutex

	opts     config.Options
	output   *BufferChannel
	logger   *logger.Logger
	metrics  *metrics.Metrics
	engine   *shell.Shell
	app      *app.Integration
	watcher  *watch.ConfigWatcher
	shutdown bool

	// watchGen identifies the current watcher. A callback from a replaced
	// watcher may already be waiting on mu and is ignored.
	watchGen uint64
}

func NewCommands() *Commands {
	return &Commands{}
}

// Register registers Neovim command/function/autocmd handlers.
func Register(p *plugin.Plugin) error {
	commands := NewCommands()

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})

	p.HandleCommand(&plugin.CommandOptions{Name: "DprintFormat"}, commands.DprintFormat)
	p.HandleCommand(&plugin.CommandOptions{Name: "DprintReset"}, commands.DprintReset)
	p.HandleCommand(&plugin.CommandOptions{Name: "DprintToggleVerbose"}, commands.DprintToggleVerbose)
	p.HandleCommand(&plugin.CommandOptions{Name: "DprintOutput"}, commands.DprintOutput)
	p.HandleCommand(&plugin.CommandOptions{Name: "DprintStatus"}, commands.DprintStatus)

	p.HandleFunction(&plugin.FunctionOptions{Name: "DprintCanFormat"}, commands.DprintCanFormat)

	p.HandleAutocmd(&plugin.AutocmdOptions{
		Event:   "DirChanged",
		Pattern: "*",
		Eval:    "getcwd()",
	}, commands.DirChanged)
	p.HandleAutocmd(&plugin.AutocmdOptions{
		Event:   "VimLeavePre",
		Pattern: "*",
	}, commands.VimLeavePre)

	return nil
}

// DprintFormat formats the current buffer.
func (c *Commands) DprintFormat(v *nvim.Nvim) error {
	integration, opts, err := c.activate(v)
	if err != nil || integration == nil {
		return err
	}

	buf, err := v.CurrentBuffer()
	if err != nil {
		return err
	}
	path, err := bufferPath(v, buf)
	if err != nil {
		return err
	}

	var tick int
	if err := v.BufferVar(buf, "changedtick", &tick); err != nil {
		return err
	}
	lines, err := v.BufferLines(buf, 0, -1, true)
	if err != nil {
		return err
	}

	text := joinLines(lines)
	ctx, cancel := context.WithTimeout(context.Background(), opts.FormatTimeout)
	defer cancel()

	edits := integration.ProvideFormattingEdits(ctx, app.Document{Path: path, Text: text})
	if len(edits) == 0 {
		return nil
	}

	formatted, err := app.ApplyEdits(text, edits)
	if err != nil {
		return err
	}

	var tickAfter int
	if err := v.BufferVar(buf, "changedtick", &tickAfter); err != nil {
		return err
	}
	if tickAfter != tick {
		c.logger.Warn("Buffer changed while formatting; discarding result for", path)
		return nil
	}

	span, changed := changedSpan(lines, splitLines(formatted))
	if !changed {
		return nil
	}
	return v.SetBufferLines(buf, span.Start, span.End, true, span.Lines)
}

// DprintReset tears the integration down and initializes it again.
func (c *Commands) DprintReset(v *nvim.Nvim) error {
	if _, _, err := c.activate(v); err != nil {
		return err
	}
	c.reset("reset requested")
	return nil
}

func (c *Commands) DprintToggleVerbose(v *nvim.Nvim) error {
	if _, _, err := c.activate(v); err != nil {
		return err
	}
	enabled := !c.logger.IsVerbose()
	c.logger.SetVerbose(enabled)
	return echo(v, fmt.Sprintf("[dprint] verbose logging %s", onOff(enabled)), "None")
}

func (c *Commands) DprintOutput(v *nvim.Nvim) error {
	if _, _, err := c.activate(v); err != nil {
		return err
	}
	c.output.Show()
	return nil
}

// DprintStatus echoes the active registration and request counters.
func (c *Commands) DprintStatus(v *nvim.Nvim) error {
	integration, opts, err := c.activate(v)
	if err != nil || integration == nil {
		return err
	}

	status := integration.Status()
	var sb strings.Builder
	fmt.Fprintf(&sb, "dprint: %s in %s\n", opts.Path, opts.Dir)
	if status.Registered {
		fmt.Fprintf(&sb, "formatting provider: %s\n", status.Pattern)
	} else {
		sb.WriteString("formatting provider: none\n")
	}
	fmt.Fprintf(&sb, "verbose: %s, format on save: %s\n", onOff(c.logger.IsVerbose()), onOff(opts.FormatOnSave))

	summary, err := c.metrics.Summary()
	if err != nil {
		return err
	}
	for _, line := range summary {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return echo(v, strings.TrimSuffix(sb.String(), "\n"), "None")
}

// DprintCanFormat reports whether the current buffer is covered by the
// active formatting provider.
func (c *Commands) DprintCanFormat(v *nvim.Nvim) (bool, error) {
	integration, _, err := c.activate(v)
	if err != nil || integration == nil {
		return false, err
	}
	buf, err := v.CurrentBuffer()
	if err != nil {
		return false, err
	}
	path, err := bufferPath(v, buf)
	if err != nil {
		return false, err
	}
	return integration.Matches(path), nil
}

// DirChanged follows the editor into a new workspace directory.
func (c *Commands) DirChanged(v *nvim.Nvim, cwd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil || c.shutdown || cwd == c.opts.Dir {
		return nil
	}
	c.opts.Dir = cwd
	c.engine.Dir = cwd
	c.startWatcherLocked()
	c.resetLocked("workspace changed to " + cwd)
	return nil
}

// VimLeavePre stops the editor service before Neovim exits.
func (c *Commands) VimLeavePre(v *nvim.Nvim) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil || c.shutdown {
		return nil
	}
	c.shutdown = true
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	err := c.app.Close()
	c.logger.Sync()
	return err
}

// activate builds the integration on first use and returns it with the
// options it was built from. A nil integration means Neovim is exiting.
func (c *Commands) activate(v *nvim.Nvim) (*app.Integration, config.Options, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil, c.opts, nil
	}
	if c.app != nil {
		return c.app, c.opts, nil
	}

	opts, err := readOptions(v)
	if err != nil {
		return nil, opts, err
	}
	c.opts = opts

	c.output = NewBufferChannel(v, outputBufferName)
	c.logger = logger.New(c.output)
	c.logger.SetVerbose(opts.Verbose)
	c.metrics = metrics.New()

	log := c.logger.Logr()
	c.engine = shell.New(opts.Path, opts.Dir, log.WithName("shell"))
	c.app = app.New(app.Options{
		Engine: c.engine,
		NewService: func() app.Service {
			// Runs under c.mu, from activate or reset.
			return service.New(service.Config{
				Launcher: service.NewExecLauncher(c.opts.Path, c.opts.Dir, log.WithName("editor-service")),
				Log:      log.WithName("service"),
				Metrics:  c.metrics,
			})
		},
		Registry:            NewRegistry(v, opts.FormatOnSave),
		Notifier:            NewNotifier(v, c.logger),
		Logger:              c.logger,
		NotificationTimeout: opts.NotificationTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	// Failures were already shown to the user; commands keep working and
	// :DprintReset retries.
	_ = c.app.Initialize(ctx)

	c.startWatcherLocked()
	c.logger.Info("Extension active!")
	return c.app, c.opts, nil
}

func (c *Commands) reset(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(reason)
}

func (c *Commands) configChanged(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.watchGen {
		return
	}
	c.resetLocked("dprint configuration changed")
}

func (c *Commands) resetLocked(reason string) {
	if c.app == nil || c.shutdown {
		return
	}
	c.logger.Info("Reinitializing:", reason)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	_ = c.app.Reset(ctx)
}

func (c *Commands) startWatcherLocked() {
	c.watchGen++
	gen := c.watchGen
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	if !c.opts.WatchConfig || c.opts.Dir == "" {
		return
	}

	w, err := watch.New(c.opts.Dir, 0, func() {
		c.configChanged(gen)
	}, c.logger.Logr().WithName("watch"))
	if err != nil {
		c.logger.Warn("Not watching dprint configuration:", err)
		return
	}
	c.watcher = w
}

func readOptions(v *nvim.Nvim) (config.Options, error) {
	var raw map[string]any
	if err := v.Eval(fmt.Sprintf("get(g:, '%s', {})", config.VarName), &raw); err != nil {
		return config.Default(), err
	}
	opts, err := config.FromMap(raw)
	if err != nil {
		return opts, err
	}
	if err := v.Eval("getcwd()", &opts.Dir); err != nil {
		return opts, err
	}
	return opts, nil
}

func bufferPath(v *nvim.Nvim, buf nvim.Buffer) (string, error) {
	var path string
	if err := v.Eval(fmt.Sprintf("fnamemodify(bufname(%d), ':p')", int(buf)), &path); err != nil {
		return "", err
	}
	return path, nil
}

func echo(v *nvim.Nvim, text, hl string) error {
	return v.ExecLua(echoLua, nil, text, hl)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
