package backend

import (
	"errors"
	"log/slog"

	"github.com/gogpu/dof/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or could not be opened.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// Software is the name of the CPU reference device.
	Software = "software"
	// Native is the name of the Vulkan device on gogpu/wgpu.
	Native = "native"
)

// Device is an open compute device together with its immediate context.
type Device struct {
	gpucore.Device

	// Context records work for Device.
	Context gpucore.Context

	name  string
	close func() error
}

// NewDevice wraps an opened device. closeFn is called once by Close.
func NewDevice(name string, dev gpucore.Device, ctx gpucore.Context, closeFn func() error) *Device {
	return &Device{Device: dev, Context: ctx, name: name, close: closeFn}
}

// Name returns the backend the device was opened from.
func (d *Device) Name() string {
	return d.name
}

// Close releases the device. Further calls return nil.
func (d *Device) Close() error {
	if d.close == nil {
		return nil
	}
	fn := d.close
	d.close = nil
	return fn()
}

// SetLogger forwards l to the wrapped device if it accepts a logger.
func (d *Device) SetLogger(l *slog.Logger) {
	if ls, ok := d.Device.(interface{ SetLogger(*slog.Logger) }); ok {
		ls.SetLogger(l)
	}
}
