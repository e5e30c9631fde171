// Package app coordinates the engine, its editor service and the host
// editor's formatting-provider registration.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"dprint-nvim/internal/contracts"
	"dprint-nvim/internal/logger"
	"dprint-nvim/internal/selector"
)

const (
	notInstalledMessage  = "Error initializing dprint. Ensure it is globally installed on the path (see https://dprint.dev/install)."
	initFailedMessage    = "Error initializing dprint."
	formatFailedTitle    = "Error formatting text"
	defaultNotifyTimeout = 6 * time.Second
)

// ErrNotInstalled is returned by Initialize when the engine cannot be run.
var ErrNotInstalled = errors.New("dprint is not installed")

// Service formats text through the engine.
type Service interface {
	CanFormat(ctx context.Context, path string) (bool, error)
	FormatText(ctx context.Context, path string, text string) (string, error)
	Kill() error
}

// Engine answers the one-shot questions asked while initializing.
type Engine interface {
	CheckInstalled(ctx context.Context) bool
	PluginInfos(ctx context.Context) ([]contracts.PluginInfo, error)
}

// Notifier shows messages in the host editor UI.
type Notifier interface {
	// ShowError shows a message that stays until the user dismisses it.
	ShowError(message string)
	// ShowTransient shows a message that dismisses itself after timeout.
	ShowTransient(title, message string, timeout time.Duration)
}

// Registration is the host-side handle of an active formatting provider.
type Registration interface {
	Dispose() error
}

// ProviderRegistry registers the formatting provider with the host editor.
type ProviderRegistry interface {
	RegisterFormattingProvider(sel selector.Selector) (Registration, error)
}

type Options struct {
	Engine     Engine
	NewService func() Service
	Registry   ProviderRegistry
	Notifier   Notifier
	Logger     *logger.Logger
	// NotificationTimeout defaults to six seconds.
	NotificationTimeout time.Duration
}

// Status describes the active registration.
type Status struct {
	Registered bool
	Pattern    string
	Extensions []string
}

// Integration is the format provider the host delegates to. It holds at
// most one registration and one service handle; Reset releases both before
// creating replacements.
type Integration struct {
	engine     Engine
	newService func() Service
	registry   ProviderRegistry
	notifier   Notifier
	log        *logger.Logger
	timeout    time.Duration

	mu           sync.Mutex
	service      Service
	registration Registration
	selector     selector.Selector
	closed       bool
}

func New(opts Options) *Integration {
	if opts.NotificationTimeout <= 0 {
		opts.NotificationTimeout = defaultNotifyTimeout
	}
	return &Integration{
		engine:     opts.Engine,
		newService: opts.NewService,
		registry:   opts.Registry,
		notifier:   opts.Notifier,
		log:        opts.Logger,
		timeout:    opts.NotificationTimeout,
		service:    opts.NewService(),
	}
}

// Initialize checks the engine is reachable and registers the formatting
// provider for the file extensions its plugins support.
func (i *Integration) Initialize(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.initializeLocked(ctx)
}

// Reset disposes the registration, replaces the service and initializes
// again. It runs on :DprintReset, workspace changes and config edits.
func (i *Integration) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.log.Verbose("Resetting")

	i.clearRegistrationLocked()
	if err := i.service.Kill(); err != nil {
		i.log.Warn("Error stopping editor service:", err)
	}
	i.service = i.newService()

	return i.initializeLocked(ctx)
}

// ProvideFormattingEdits formats doc. Failures are reported to the user and
// yield no edits; they are never returned to the host.
func (i *Integration) ProvideFormattingEdits(ctx context.Context, doc Document) []TextEdit {
	i.mu.Lock()
	svc, sel, registered := i.service, i.selector, i.registration != nil
	i.mu.Unlock()

	if !registered || !sel.Match(doc.Path) {
		i.log.Verbose("No formatting provider for", doc.Path)
		return nil
	}

	ok, err := svc.CanFormat(ctx, doc.Path)
	if err != nil {
		i.reportFormatError(err)
		return nil
	}
	if !ok {
		i.log.Verbose("dprint cannot format", doc.Path)
		return nil
	}

	newText, err := svc.FormatText(ctx, doc.Path, doc.Text)
	if err != nil {
		i.reportFormatError(err)
		return nil
	}
	if newText == doc.Text {
		i.log.Verbose("Already formatted:", doc.Path)
		return nil
	}

	return []TextEdit{{Range: FullRange(doc.Text), NewText: newText}}
}

// Matches reports whether path falls under the active registration.
func (i *Integration) Matches(path string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.registration != nil && i.selector.Match(path)
}

func (i *Integration) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Status{
		Registered: i.registration != nil,
		Pattern:    i.selector.Pattern,
		Extensions: i.selector.Extensions(),
	}
}

// Close disposes the registration and kills the service for good.
func (i *Integration) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	i.clearRegistrationLocked()
	return i.service.Kill()
}

func (i *Integration) initializeLocked(ctx context.Context) error {
	if i.closed {
		return nil
	}
	if !i.engine.CheckInstalled(ctx) {
		i.notifier.ShowError(notInstalledMessage)
		i.log.Error(notInstalledMessage)
		return ErrNotInstalled
	}

	i.clearRegistrationLocked()

	infos, err := i.engine.PluginInfos(ctx)
	if err != nil {
		i.reportInitError(err)
		return err
	}

	sel := selector.FromPlugins(infos)
	i.log.Info("Supporting file extensions", strings.Join(sel.Extensions(), ","))
	if sel.Empty() {
		return nil
	}

	reg, err := i.registry.RegisterFormattingProvider(sel)
	if err != nil {
		i.reportInitError(err)
		return err
	}
	i.registration = reg
	i.selector = sel
	return nil
}

func (i *Integration) clearRegistrationLocked() {
	if i.registration == nil {
		return
	}
	if err := i.registration.Dispose(); err != nil {
		i.log.Warn("Error disposing formatting provider:", err)
	}
	i.registration = nil
	i.selector = selector.Selector{}
}

func (i *Integration) reportInitError(err error) {
	i.notifier.ShowError(initFailedMessage + " " + err.Error())
	i.log.ErrorAndFocus(initFailedMessage, err)
}

func (i *Integration) reportFormatError(err error) {
	if errors.Is(err, context.Canceled) {
		i.log.Verbose("Formatting cancelled")
		return
	}
	i.notifier.ShowTransient(formatFailedTitle, err.Error(), i.timeout)
	i.log.Error(formatFailedTitle+":", err)
}
