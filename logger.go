package dof

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/dof/internal/pipeline"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for dof and its internal packages.
// By default, dof produces no log output. Pass nil to restore the silent
// default.
//
// Devices that accept a logger receive it on the next Initialize.
//
// Log levels used by dof:
//   - [slog.LevelDebug]: pipeline state, buffer sizes, dispatch grids
//   - [slog.LevelInfo]: lifecycle events (adapter selected)
//   - [slog.LevelWarn]: non-fatal issues (skipped parameter upload, leaked descriptor)
//
// Example:
//
//	dof.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	pipeline.SetLogger(l)
}

// Logger returns the current logger used by dof.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a device if it implements
// loggerSetter.
func propagateLogger(dev any, l *slog.Logger) {
	if ls, ok := dev.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
