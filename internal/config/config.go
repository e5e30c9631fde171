// Package config holds plugin options read from the g:dprint dictionary or
// from command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// VarName is the Neovim global dictionary options are read from.
const VarName = "dprint"

const (
	defaultPath                = "dprint"
	defaultNotificationTimeout = 6 * time.Second
	defaultFormatTimeout       = 10 * time.Second
)

// Options configures the integration.
type Options struct {
	// Path is the dprint executable.
	Path string
	// Verbose enables [VERBOSE] output lines.
	Verbose bool
	// FormatOnSave formats matching buffers on BufWritePre.
	FormatOnSave bool
	// NotificationTimeout is how long transient notifications stay visible.
	NotificationTimeout time.Duration
	// FormatTimeout bounds a single format request.
	FormatTimeout time.Duration
	// WatchConfig resets the integration when a dprint config file changes.
	WatchConfig bool
	// Dir is the workspace directory; the engine runs there.
	Dir string
}

func Default() Options {
	return Options{
		Path:                defaultPath,
		NotificationTimeout: defaultNotificationTimeout,
		FormatTimeout:       defaultFormatTimeout,
		WatchConfig:         true,
	}
}

// FromMap applies the keys of a decoded g:dprint dictionary on top of the
// defaults. Unknown keys are ignored so newer configs keep working.
func FromMap(m map[string]any) (Options, error) {
	o := Default()
	for key, raw := range m {
		var err error
		switch key {
		case "path":
			o.Path, err = asString(key, raw)
			if err == nil && o.Path == "" {
				o.Path = defaultPath
			}
		case "verbose":
			o.Verbose, err = asBool(key, raw)
		case "format_on_save":
			o.FormatOnSave, err = asBool(key, raw)
		case "watch_config":
			o.WatchConfig, err = asBool(key, raw)
		case "notification_timeout_ms":
			o.NotificationTimeout, err = asMillis(key, raw)
		case "format_timeout_ms":
			o.FormatTimeout, err = asMillis(key, raw)
		}
		if err != nil {
			return Default(), err
		}
	}
	return o, nil
}

// BindFlags registers flags that override o.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Path, "dprint-path", o.Path, "Path to the dprint executable")
	fs.BoolVarP(&o.Verbose, "verbose", "v", o.Verbose, "Enable verbose output")
	fs.StringVar(&o.Dir, "cwd", o.Dir, "Workspace directory dprint runs in (defaults to the current directory)")
	fs.DurationVar(&o.FormatTimeout, "format-timeout", o.FormatTimeout, "Timeout for a single format request")
}

func asString(key string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("g:%s.%s: expected a string, got %T", VarName, key, v)
	}
}

// asBool accepts Vim's numeric booleans as well as v:true/v:false.
func asBool(key string, v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, err := asInt(key, v)
	if err != nil {
		return false, fmt.Errorf("g:%s.%s: expected a boolean, got %T", VarName, key, v)
	}
	return n != 0, nil
}

func asMillis(key string, v any) (time.Duration, error) {
	n, err := asInt(key, v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("g:%s.%s: must be positive, got %d", VarName, key, n)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func asInt(key string, v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("g:%s.%s: expected a number, got %T", VarName, key, v)
	}
}
