package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type loggers struct {
	outW, errW io.Writer
	out, err   *slog.Logger
}

var (
	level   = new(slog.LevelVar)
	format  atomic.Value
	current atomic.Pointer[loggers]
)

func init() {
	format.Store("text")
	SetOutput(os.Stdout, os.Stderr)
}

// Setup switches the minimal level and the output format ("text" or "json").
func Setup(lvl string, fmtName string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		return fmt.Errorf("error parse log level %q. %w", lvl, err)
	}
	switch strings.ToLower(fmtName) {
	case "", "text":
		format.Store("text")
	case "json":
		format.Store("json")
	default:
		return fmt.Errorf("error unknown log format %q", fmtName)
	}
	level.Set(l)
	cur := current.Load()
	SetOutput(cur.outW, cur.errW)
	return nil
}

// SetOutput redirects informational and error lines.
func SetOutput(out, errOut io.Writer) {
	current.Store(&loggers{
		outW: out,
		errW: errOut,
		out:  slog.New(newHandler(out)),
		err:  slog.New(newHandler(errOut)),
	})
}

func newHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format.Load() == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func Debug(msg string, args ...any) {
	current.Load().out.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	current.Load().out.Info(msg, args...)
}

func Err(msg string, args ...any) {
	current.Load().err.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	Err(msg, args...)
	os.Exit(1)
}
