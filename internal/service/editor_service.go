// Package service owns the long-lived dprint editor-service process and
// routes format requests to it.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"dprint-nvim/internal/contracts"
	"dprint-nvim/internal/metrics"
	"dprint-nvim/internal/transport/messenger"
)

// ErrServiceKilled is returned by calls made on, or in flight during, Kill.
var ErrServiceKilled = errors.New("editor service was killed")

// Config configures an EditorService.
type Config struct {
	Launcher Launcher
	Log      logr.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics

	// MaxAttempts bounds how often a request is tried when the process dies
	// underneath it. Default: 3
	MaxAttempts uint64
	// InitialBackoff is the wait before the first relaunch. Default: 100ms
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between relaunches. Default: 2s
	MaxBackoff time.Duration
	// ShutdownGrace is how long Kill waits for a clean exit. Default: 1s
	ShutdownGrace time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = time.Second
	}
}

// EditorService routes requests to a lazily launched engine process and
// relaunches it after crashes.
//
// Thread Safety: EditorService is safe for concurrent use. Requests share
// one process; the messenger correlates their responses.
type EditorService struct {
	cfg Config
	log logr.Logger

	mu      sync.Mutex
	current *instance
	killed  bool
}

type instance struct {
	proc Process
	conn *messenger.Conn
}

func (i *instance) alive() bool {
	select {
	case <-i.conn.Done():
		return false
	case <-i.proc.Done():
		return false
	default:
		return true
	}
}

func New(cfg Config) *EditorService {
	cfg.setDefaults()
	return &EditorService{cfg: cfg, log: cfg.Log}
}

// CanFormat asks the engine whether it has a plugin and configuration for
// the file at path.
func (s *EditorService) CanFormat(ctx context.Context, path string) (bool, error) {
	body := (&messenger.BodyWriter{}).WriteString(path).Bytes()
	resp, err := s.call(ctx, contracts.MessageKindCanFormat, body)
	if err != nil {
		return false, err
	}
	if resp.Kind != contracts.MessageKindCanFormatResponse {
		return false, fmt.Errorf("%w: expected %s, got %s", messenger.ErrProtocol, contracts.MessageKindCanFormatResponse, resp.Kind)
	}

	r := messenger.NewBodyReader(resp.Body)
	ok := r.ReadBool()
	return ok, r.Err()
}

// FormatText formats the whole of text as the file at path and returns the
// result. Unchanged text is returned as is.
func (s *EditorService) FormatText(ctx context.Context, path string, text string) (string, error) {
	if len(text) > math.MaxUint32 {
		return "", fmt.Errorf("%s is too large to format", path)
	}

	body := (&messenger.BodyWriter{}).
		WriteString(path).
		WriteUint32(0).
		WriteUint32(uint32(len(text))).
		WriteString("").
		WriteString(text).
		Bytes()

	start := time.Now()
	resp, err := s.call(ctx, contracts.MessageKindFormatFile, body)
	if err != nil {
		return "", err
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveFormat(time.Since(start))
	}
	if resp.Kind != contracts.MessageKindFormatFileResponse {
		return "", fmt.Errorf("%w: expected %s, got %s", messenger.ErrProtocol, contracts.MessageKindFormatFileResponse, resp.Kind)
	}

	r := messenger.NewBodyReader(resp.Body)
	changed := r.ReadBool()
	if !changed {
		return text, r.Err()
	}
	formatted := r.ReadString()
	if err := r.Err(); err != nil {
		return "", err
	}
	return formatted, nil
}

// Kill shuts the engine process down and fails in-flight requests. The
// service is unusable afterwards. Calling Kill again is a no-op.
func (s *EditorService) Kill() error {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return nil
	}
	s.killed = true
	inst := s.current
	s.current = nil
	s.mu.Unlock()

	if inst == nil {
		return nil
	}
	s.log.V(1).Info("killing editor service")
	return s.shutdown(inst)
}

func (s *EditorService) isKilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

func (s *EditorService) call(ctx context.Context, kind contracts.MessageKind, body []byte) (messenger.Message, error) {
	attempt := 0
	op := func() (messenger.Message, error) {
		attempt++
		inst, err := s.acquire(ctx)
		if err != nil {
			if errors.Is(err, ErrServiceKilled) {
				return messenger.Message{}, backoff.Permanent(err)
			}
			return messenger.Message{}, err
		}

		resp, err := inst.conn.Call(ctx, kind, body)
		switch {
		case err == nil:
			return resp, nil
		case ctx.Err() != nil:
			return messenger.Message{}, backoff.Permanent(err)
		case errors.Is(err, messenger.ErrConnClosed) && s.isKilled():
			return messenger.Message{}, backoff.Permanent(ErrServiceKilled)
		case errors.Is(err, messenger.ErrConnClosed):
			return messenger.Message{}, err
		default:
			return messenger.Message{}, backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.cfg.InitialBackoff),
		backoff.WithMaxInterval(s.cfg.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)
	resp, err := backoff.RetryNotifyWithData(
		op,
		backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.MaxAttempts-1), ctx),
		func(err error, next time.Duration) {
			s.log.Info("editor service request failed; retrying", "kind", kind.String(), "attempt", attempt, "retryIn", next, "error", err.Error())
		},
	)

	s.observe(kind, err)
	if err != nil {
		return messenger.Message{}, err
	}
	return resp, nil
}

func (s *EditorService) observe(kind contracts.MessageKind, err error) {
	if s.cfg.Metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeError
	}
	s.cfg.Metrics.ObserveRequest(kind.String(), outcome)
}

// acquire returns the running instance, launching a new one if there is
// none or the previous one died.
func (s *EditorService) acquire(ctx context.Context) (*instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.killed {
		return nil, ErrServiceKilled
	}
	if s.current != nil {
		if s.current.alive() {
			return s.current, nil
		}
		s.log.Info("editor service is not running; restarting", "reason", describeExit(s.current))
		s.current.conn.Close()
		_ = s.current.proc.Kill()
		s.current = nil
	}

	proc, err := s.cfg.Launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch editor service: %w", err)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Launches.Inc()
	}

	conn := messenger.NewConn(proc.Stdout(), proc.Stdin(), s.log.WithName("messenger"))
	conn.Start()
	go func() {
		select {
		case <-proc.Done():
			conn.Close()
		case <-conn.Done():
		}
	}()

	s.current = &instance{proc: proc, conn: conn}
	s.log.V(1).Info("editor service started")
	return s.current, nil
}

func (s *EditorService) shutdown(inst *instance) error {
	if inst.alive() {
		if _, err := inst.conn.Send(contracts.MessageKindShutDownProcess, nil); err != nil {
			s.log.V(1).Info("could not request shutdown", "error", err.Error())
		}
	}
	inst.conn.Close()
	_ = inst.proc.Stdin().Close()

	select {
	case <-inst.proc.Done():
		return nil
	case <-time.After(s.cfg.ShutdownGrace):
		s.log.Info("editor service did not exit in time; killing it")
		return inst.proc.Kill()
	}
}

func describeExit(inst *instance) string {
	if err := inst.conn.Err(); err != nil {
		return err.Error()
	}
	return "process exited"
}
