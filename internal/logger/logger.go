// Package logger writes leveled, bracket-tagged lines into an append-only
// output channel provided by the host editor.
package logger

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OutputChannel is an append-only text sink that can be brought into view.
type OutputChannel interface {
	AppendLine(line string)
	Show()
}

// Logger formats messages for an OutputChannel.
//
// Verbose lines are written at zap's debug level and are dropped unless
// verbose mode is on. The level enabler reads the flag on every write, so
// SetVerbose takes effect immediately for every derived logr.Logger too.
type Logger struct {
	out     OutputChannel
	verbose atomic.Bool
	zap     *zap.Logger
}

func New(out OutputChannel) *Logger {
	l := &Logger{out: out}

	encoderConfig := zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		NameKey:          "logger",
		LineEnding:       "\n",
		EncodeLevel:      encodeBracketLevel,
		EncodeName:       encodeBracketName,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}

	enabled := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level > zapcore.DebugLevel || l.verbose.Load()
	})

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(channelWriter{out: out}), enabled)
	l.zap = zap.New(core)
	return l
}

// SetVerbose toggles verbose output.
func (l *Logger) SetVerbose(enabled bool) {
	l.verbose.Store(enabled)
}

func (l *Logger) IsVerbose() bool {
	return l.verbose.Load()
}

// Log appends an untagged line.
func (l *Logger) Log(message string, args ...any) {
	l.out.AppendLine(formatArgs(message, args))
}

func (l *Logger) Verbose(message string, args ...any) {
	l.zap.Debug(formatArgs(message, args))
}

func (l *Logger) Info(message string, args ...any) {
	l.zap.Info(formatArgs(message, args))
}

func (l *Logger) Warn(message string, args ...any) {
	l.zap.Warn(formatArgs(message, args))
}

func (l *Logger) Error(message string, args ...any) {
	l.zap.Error(formatArgs(message, args))
}

// ErrorAndFocus logs at error level and brings the output channel into view.
func (l *Logger) ErrorAndFocus(message string, args ...any) {
	l.Error(message, args...)
	l.out.Show()
}

// Logr returns a structured view for library packages. V(1) is verbose.
func (l *Logger) Logr() logr.Logger {
	return zapr.NewLogger(l.zap)
}

// Sync flushes the underlying zap core.
func (l *Logger) Sync() {
	_ = l.zap.Sync()
}

func formatArgs(message string, args []any) string {
	if len(args) == 0 {
		return message
	}
	var sb strings.Builder
	sb.WriteString(message)
	for _, arg := range args {
		sb.WriteByte(' ')
		sb.WriteString(fmt.Sprint(arg))
	}
	return sb.String()
}

func encodeBracketLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + levelTag(level) + "]")
}

func encodeBracketName(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("(" + name + ")")
}

func levelTag(level zapcore.Level) string {
	switch {
	case level <= zapcore.DebugLevel:
		return "VERBOSE"
	case level == zapcore.InfoLevel:
		return "INFO"
	case level == zapcore.WarnLevel:
		return "WARN"
	default:
		return "ERROR"
	}
}
