//go:build !nogpu

package native

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger configures the logger of the native device and of the hal
// layer beneath it. Pass nil to restore silent behavior.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
	hal.SetLogger(l)
}

// SetLogger implements the logger propagation hook used by dof.Initialize.
func (d *Device) SetLogger(l *slog.Logger) {
	SetLogger(l)
}
