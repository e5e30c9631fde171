// Package shell runs one-shot dprint CLI invocations: the presence check and
// the editor-info query.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"

	"dprint-nvim/internal/contracts"
)

// Shell invokes the dprint executable at Path from directory Dir.
type Shell struct {
	Path string
	Dir  string
	Log  logr.Logger
}

func New(path, dir string, log logr.Logger) *Shell {
	if path == "" {
		path = "dprint"
	}
	return &Shell{Path: path, Dir: dir, Log: log}
}

// CheckInstalled reports whether the executable runs and exits cleanly.
func (s *Shell) CheckInstalled(ctx context.Context) bool {
	out, err := s.run(ctx, "-v")
	if err != nil {
		s.Log.V(1).Info("dprint presence check failed", "path", s.Path, "error", err.Error())
		return false
	}
	s.Log.V(1).Info("found dprint", "version", strings.TrimSpace(string(out)))
	return true
}

// EditorInfo queries the plugins the workspace configuration resolves to.
func (s *Shell) EditorInfo(ctx context.Context) (*contracts.EditorInfo, error) {
	out, err := s.run(ctx, "editor-info")
	if err != nil {
		return nil, err
	}

	var info contracts.EditorInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("decode editor-info output: %w", err)
	}

	if info.SchemaVersion != contracts.SchemaVersion {
		if info.SchemaVersion > contracts.SchemaVersion {
			return nil, fmt.Errorf("dprint editor schema version %d is newer than supported version %d; please upgrade this plugin",
				info.SchemaVersion, contracts.SchemaVersion)
		}
		return nil, fmt.Errorf("dprint editor schema version %d is older than supported version %d; please upgrade dprint",
			info.SchemaVersion, contracts.SchemaVersion)
	}
	return &info, nil
}

// PluginInfos returns the engine plugins for the workspace.
func (s *Shell) PluginInfos(ctx context.Context) ([]contracts.PluginInfo, error) {
	info, err := s.EditorInfo(ctx)
	if err != nil {
		return nil, err
	}
	return info.Plugins, nil
}

func (s *Shell) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.Path, args...)
	cmd.Dir = s.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("run %s %s: %w", s.Path, strings.Join(args, " "), err)
		}
		return nil, fmt.Errorf("run %s %s: %w: %s", s.Path, strings.Join(args, " "), err, msg)
	}
	return stdout.Bytes(), nil
}
