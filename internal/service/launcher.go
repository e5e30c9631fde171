package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/go-logr/logr"
)

// Process is a running editor-service child.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	Kill() error
}

// Launcher starts editor-service processes.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher runs `<Path> editor-service --parent-pid <pid>` in Dir. The
// engine exits on its own once the parent pid disappears.
type ExecLauncher struct {
	Path      string
	Dir       string
	ParentPID int
	Log       logr.Logger
}

func NewExecLauncher(path, dir string, log logr.Logger) *ExecLauncher {
	if path == "" {
		path = "dprint"
	}
	return &ExecLauncher{Path: path, Dir: dir, ParentPID: os.Getpid(), Log: log}
}

func (l *ExecLauncher) Launch(_ context.Context) (Process, error) {
	// The process outlives the request that happened to start it, so it is
	// not bound to the request context.
	cmd := exec.Command(l.Path, "editor-service", "--parent-pid", strconv.Itoa(l.ParentPID))
	cmd.Dir = l.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	// Wait closes pipes made by StdoutPipe even while they are being read.
	// Replies written just before the engine exits must stay readable, so
	// the read end of stdout is ours to close.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("start %s editor-service: %w", l.Path, err)
	}
	// The child holds its own copy; ours would keep EOF from ever arriving.
	_ = stdoutW.Close()

	p := &execProcess{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdoutR,
		drained: make(chan struct{}),
		done:    make(chan struct{}),
	}

	log := l.Log.WithValues("pid", cmd.Process.Pid)
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.V(1).Info(scanner.Text())
		}
	}()

	go func() {
		// Wait closes the stderr pipe, so drain it first.
		<-stderrDone
		err := cmd.Wait()
		if err != nil {
			log.V(1).Info("editor service exited", "error", err.Error())
		} else {
			log.V(1).Info("editor service exited")
		}
		<-p.drained
		_ = p.stdout.Close()
		close(p.done)
	}()

	return p, nil
}

// execProcess is done once the child has exited and its stdout has been
// read to the end or released by Kill.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File

	drained     chan struct{}
	drainedOnce sync.Once
	done        chan struct{}
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return stdoutReader{p} }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) markDrained() {
	p.drainedOnce.Do(func() { close(p.drained) })
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	err := p.cmd.Process.Kill()
	// Unblocks a reader that is not going to see EOF, e.g. when the
	// connection gave up after a protocol error.
	_ = p.stdout.Close()
	p.markDrained()

	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill editor service: %w", err)
	}
	return nil
}

type stdoutReader struct {
	p *execProcess
}

func (r stdoutReader) Read(b []byte) (int, error) {
	n, err := r.p.stdout.Read(b)
	if err != nil {
		r.p.markDrained()
	}
	return n, err
}
