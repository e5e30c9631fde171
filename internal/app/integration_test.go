package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dprint-nvim/internal/contracts"
	"dprint-nvim/internal/logger"
	"dprint-nvim/internal/selector"
)

type fakeEngine struct {
	installed bool
	infos     []contracts.PluginInfo
	infoErr   error
}

func (e *fakeEngine) CheckInstalled(context.Context) bool { return e.installed }

func (e *fakeEngine) PluginInfos(context.Context) ([]contracts.PluginInfo, error) {
	return e.infos, e.infoErr
}

type fakeService struct {
	canFormat bool
	format    func(text string) (string, error)
	killed    int
}

func (s *fakeService) CanFormat(context.Context, string) (bool, error) { return s.canFormat, nil }

func (s *fakeService) FormatText(_ context.Context, _ string, text string) (string, error) {
	return s.format(text)
}

func (s *fakeService) Kill() error {
	s.killed++
	return nil
}

type fakeRegistration struct {
	registry *fakeRegistry
	sel      selector.Selector
	disposed int
}

func (r *fakeRegistration) Dispose() error {
	r.disposed++
	r.registry.active--
	return nil
}

type fakeRegistry struct {
	registrations []*fakeRegistration
	active        int
	err           error
}

func (r *fakeRegistry) RegisterFormattingProvider(sel selector.Selector) (Registration, error) {
	if r.err != nil {
		return nil, r.err
	}
	reg := &fakeRegistration{registry: r, sel: sel}
	r.registrations = append(r.registrations, reg)
	r.active++
	return reg, nil
}

type transient struct {
	title, message string
	timeout        time.Duration
}

type fakeNotifier struct {
	mu         sync.Mutex
	errors     []string
	transients []transient
}

func (n *fakeNotifier) ShowError(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *fakeNotifier) ShowTransient(title, message string, timeout time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transients = append(n.transients, transient{title, message, timeout})
}

type fixture struct {
	engine   *fakeEngine
	services []*fakeService
	registry *fakeRegistry
	notifier *fakeNotifier
	out      *logger.MemoryChannel
	app      *Integration
}

func newFixture(t *testing.T, engine *fakeEngine) *fixture {
	t.Helper()
	f := &fixture{
		engine:   engine,
		registry: &fakeRegistry{},
		notifier: &fakeNotifier{},
		out:      &logger.MemoryChannel{},
	}
	f.app = New(Options{
		Engine: engine,
		NewService: func() Service {
			svc := &fakeService{canFormat: true, format: func(text string) (string, error) { return text + "// formatted\n", nil }}
			f.services = append(f.services, svc)
			return svc
		},
		Registry:            f.registry,
		Notifier:            f.notifier,
		Logger:              logger.New(f.out),
		NotificationTimeout: 3 * time.Second,
	})
	return f
}

var twoPlugins = []contracts.PluginInfo{
	{Name: "typescript", FileExtensions: []string{"ts", "js"}},
	{Name: "json", FileExtensions: []string{"json", "js"}},
}

func TestInitializeNotInstalled(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: false, infos: twoPlugins})

	err := f.app.Initialize(context.Background())

	assert.ErrorIs(t, err, ErrNotInstalled)
	assert.Empty(t, f.registry.registrations, "no provider registered")
	require.Len(t, f.notifier.errors, 1, "error shown exactly once")
	assert.Contains(t, f.notifier.errors[0], "https://dprint.dev/install")
	assert.False(t, f.app.Status().Registered)
}

func TestInitializeRegistersUnionOfExtensions(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})

	require.NoError(t, f.app.Initialize(context.Background()))

	require.Len(t, f.registry.registrations, 1)
	sel := f.registry.registrations[0].sel
	assert.Equal(t, []string{"ts", "js", "json"}, sel.Extensions())
	assert.Equal(t, "**/*.{ts,js,json}", sel.Pattern)
	assert.Contains(t, f.out.Lines(), "[INFO] Supporting file extensions ts,js,json")

	status := f.app.Status()
	assert.True(t, status.Registered)
	assert.Equal(t, sel.Pattern, status.Pattern)
}

func TestInitializeNoExtensionsRegistersNothing(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: []contracts.PluginInfo{{Name: "empty"}}})

	require.NoError(t, f.app.Initialize(context.Background()))
	assert.Empty(t, f.registry.registrations)
	assert.Empty(t, f.notifier.errors)
}

func TestInitializePluginInfoFailure(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infoErr: errors.New("No config file found")})

	err := f.app.Initialize(context.Background())

	assert.Error(t, err)
	assert.Empty(t, f.registry.registrations)
	require.Len(t, f.notifier.errors, 1)
	assert.Contains(t, f.notifier.errors[0], "Error initializing dprint.")
	assert.Contains(t, f.out.Lines(), "[ERROR] Error initializing dprint. No config file found")
	assert.Equal(t, 1, f.out.ShowCount())
}

func TestInitializeTwiceKeepsOneRegistration(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})

	require.NoError(t, f.app.Initialize(context.Background()))
	require.NoError(t, f.app.Initialize(context.Background()))

	require.Len(t, f.registry.registrations, 2)
	assert.Equal(t, 1, f.registry.registrations[0].disposed)
	assert.Equal(t, 1, f.registry.active)
}

func TestResetDisposesExactlyThePreviousRegistration(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})
	require.NoError(t, f.app.Initialize(context.Background()))

	require.NoError(t, f.app.Reset(context.Background()))
	require.NoError(t, f.app.Reset(context.Background()))

	require.Len(t, f.registry.registrations, 3)
	assert.Equal(t, 1, f.registry.registrations[0].disposed)
	assert.Equal(t, 1, f.registry.registrations[1].disposed)
	assert.Equal(t, 0, f.registry.registrations[2].disposed)
	assert.Equal(t, 1, f.registry.active, "never more than one live registration")

	require.Len(t, f.services, 3)
	assert.Equal(t, 1, f.services[0].killed)
	assert.Equal(t, 1, f.services[1].killed)
	assert.Equal(t, 0, f.services[2].killed)
}

func TestResetWhenEngineDisappears(t *testing.T) {
	engine := &fakeEngine{installed: true, infos: twoPlugins}
	f := newFixture(t, engine)
	require.NoError(t, f.app.Initialize(context.Background()))

	engine.installed = false
	assert.ErrorIs(t, f.app.Reset(context.Background()), ErrNotInstalled)

	assert.Equal(t, 0, f.registry.active, "old registration released")
	assert.Equal(t, 1, f.registry.registrations[0].disposed)
	assert.Len(t, f.notifier.errors, 1)
}

func TestProvideFormattingEdits(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})
	require.NoError(t, f.app.Initialize(context.Background()))

	doc := Document{Path: "/work/src/a.ts", Text: "let a = 1;\nlet b = 2;"}
	edits := f.app.ProvideFormattingEdits(context.Background(), doc)

	require.Len(t, edits, 1)
	assert.Equal(t, Range{Start: Position{0, 0}, End: Position{1, 10}}, edits[0].Range)

	out, err := ApplyEdits(doc.Text, edits)
	require.NoError(t, err)
	assert.Equal(t, doc.Text+"// formatted\n", out)
}

func TestProvideFormattingEditsFailureLeavesDocumentUnchanged(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})
	require.NoError(t, f.app.Initialize(context.Background()))
	f.services[0].format = func(string) (string, error) { return "", errors.New("Expected ';'") }

	doc := Document{Path: "/work/a.ts", Text: "let a ="}
	edits := f.app.ProvideFormattingEdits(context.Background(), doc)

	assert.Empty(t, edits)
	out, err := ApplyEdits(doc.Text, edits)
	require.NoError(t, err)
	assert.Equal(t, doc.Text, out)

	require.Len(t, f.notifier.transients, 1)
	assert.Equal(t, transient{"Error formatting text", "Expected ';'", 3 * time.Second}, f.notifier.transients[0])
	assert.Empty(t, f.notifier.errors, "no persistent dialog for format failures")
	assert.Contains(t, f.out.Lines(), "[ERROR] Error formatting text: Expected ';'")
}

func TestProvideFormattingEditsCancelledIsQuiet(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})
	require.NoError(t, f.app.Initialize(context.Background()))
	f.services[0].format = func(string) (string, error) { return "", context.Canceled }

	assert.Empty(t, f.app.ProvideFormattingEdits(context.Background(), Document{Path: "/a.ts", Text: "x"}))
	assert.Empty(t, f.notifier.transients)
}

func TestProvideFormattingEditsSkips(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})

	doc := Document{Path: "/work/a.ts", Text: "x"}
	assert.Empty(t, f.app.ProvideFormattingEdits(context.Background(), doc), "nothing registered yet")

	require.NoError(t, f.app.Initialize(context.Background()))
	assert.Empty(t, f.app.ProvideFormattingEdits(context.Background(), Document{Path: "/work/a.go", Text: "x"}), "unmatched extension")
	assert.False(t, f.app.Matches("/work/a.go"))
	assert.True(t, f.app.Matches("/work/a.ts"))

	f.services[0].canFormat = false
	assert.Empty(t, f.app.ProvideFormattingEdits(context.Background(), doc), "engine declines")

	f.services[0].canFormat = true
	f.services[0].format = func(text string) (string, error) { return text, nil }
	assert.Empty(t, f.app.ProvideFormattingEdits(context.Background(), doc), "already formatted")
	assert.Empty(t, f.notifier.transients)
}

func TestRegistrationFailure(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})
	f.registry.err = errors.New("augroup failed")

	assert.Error(t, f.app.Initialize(context.Background()))
	assert.False(t, f.app.Status().Registered)
	assert.Len(t, f.notifier.errors, 1)
}

func TestClose(t *testing.T) {
	f := newFixture(t, &fakeEngine{installed: true, infos: twoPlugins})
	require.NoError(t, f.app.Initialize(context.Background()))

	require.NoError(t, f.app.Close())
	require.NoError(t, f.app.Close())
	require.NoError(t, f.app.Reset(context.Background()))

	assert.Equal(t, 0, f.registry.active)
	assert.Equal(t, 1, f.services[0].killed)
	assert.Len(t, f.services, 1, "no service created after close")
}
