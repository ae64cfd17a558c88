package dof

import (
	"errors"
	"runtime"

	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/pipeline"
)

// Desc is the effect descriptor. Callers set the public fields between
// calls; the effect never modifies them.
//
// A Desc must be created with NewDesc. It is not safe for concurrent use,
// but independent descriptors may be used from different goroutines.
type Desc struct {
	// ScreenWidth and ScreenHeight are the size of the colour, CoC and
	// result surfaces in pixels. At most 16384 each.
	ScreenWidth  int
	ScreenHeight int

	// ScaleFactor is the fixed-point exponent: colours are accumulated
	// as integers scaled by 2^ScaleFactor.
	ScaleFactor int

	// MaxBlurRadius bounds the circle of confusion in pixels. At most 64.
	MaxBlurRadius int

	Device  gpucore.Device
	Context gpucore.Context

	// Color is an RGBA32Float shader resource view, CoC an R32Float
	// shader resource view and Result an RGBA32Float unordered access
	// view. All are ScreenWidth x ScreenHeight.
	Color  gpucore.ViewID
	CoC    gpucore.ViewID
	Result gpucore.ViewID

	state *pipeline.State
}

// Lifecycle is the state of a descriptor.
type Lifecycle int

// Lifecycle states.
const (
	StateUninitialized Lifecycle = iota
	StateInitialized
	StateResized
)

// String returns the state name.
func (l Lifecycle) String() string {
	switch l {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateResized:
		return "resized"
	default:
		return "unknown"
	}
}

// NewDesc returns a descriptor with its own pipeline state.
//
// If the descriptor becomes unreachable while it still owns device
// objects, a warning is logged. Call Release or Close when done.
func NewDesc() *Desc {
	d := &Desc{state: new(pipeline.State)}
	runtime.AddCleanup(d, reportLeak, d.state)
	return d
}

func reportLeak(s *pipeline.State) {
	if n := s.LiveHandles(); n > 0 {
		Logger().Warn("dof: descriptor collected without Release", "live_handles", n)
	}
}

// Close releases the descriptor's device objects. It is equivalent to
// Release and always returns nil.
func (d *Desc) Close() error {
	Release(d)
	return nil
}

// State returns the lifecycle state of the descriptor.
func (d *Desc) State() Lifecycle {
	switch {
	case d == nil || d.state == nil || !d.state.Initialized():
		return StateUninitialized
	case d.state.Resized():
		return StateResized
	default:
		return StateInitialized
	}
}

// Degraded returns how many parameter uploads were skipped because the
// device could not map the constant buffer. Renders affected by a skipped
// upload still report Success.
func (d *Desc) Degraded() uint64 {
	if d == nil || d.state == nil {
		return 0
	}
	return d.state.Degraded()
}

// Padding returns the accumulation padding of the last successful Resize.
func (d *Desc) Padding() int {
	if d == nil || d.state == nil {
		return 0
	}
	return d.state.Padding()
}

// BufferSize returns the padded accumulation size of the last successful
// Resize.
func (d *Desc) BufferSize() (width, height int) {
	if d == nil || d.state == nil {
		return 0, 0
	}
	return d.state.BufferSize()
}

// Initialize creates the kernels, the parameter buffer and the sampler on
// d.Device. Calling it again releases and recreates everything.
func Initialize(d *Desc) ReturnCode {
	if d == nil || d.state == nil {
		return InvalidParams
	}
	if d.Device == nil {
		return InvalidDevice
	}
	if d.Context == nil {
		return InvalidDeviceContext
	}
	propagateLogger(d.Device, Logger())

	if err := d.state.Initialize(d.Device); err != nil {
		Logger().Warn("dof: initialize failed", "err", err)
		return Fail
	}
	return Success
}

// Resize validates the screen size and blur radius and reallocates the
// accumulation buffers. Invalid parameters leave existing buffers valid.
func Resize(d *Desc) ReturnCode {
	if d == nil || d.state == nil {
		return InvalidParams
	}
	err := d.state.Resize(d.ScreenWidth, d.ScreenHeight, d.MaxBlurRadius)
	switch {
	case err == nil:
		return Success
	case errors.Is(err, pipeline.ErrInvalidParams):
		return InvalidParams
	default:
		Logger().Warn("dof: resize failed", "err", err)
		return Fail
	}
}

// Render applies the full resolution tent filter.
func Render(d *Desc) ReturnCode {
	return render(d, pipeline.VariantFullRes)
}

// RenderQuarterRes applies the tent filter with one impulse set per 2x2
// pixel block.
func RenderQuarterRes(d *Desc) ReturnCode {
	return render(d, pipeline.VariantQuarterRes)
}

// RenderBox applies the full resolution box filter.
func RenderBox(d *Desc) ReturnCode {
	return render(d, pipeline.VariantBox)
}

func render(d *Desc, v pipeline.Variant) ReturnCode {
	if d == nil || d.state == nil {
		return InvalidParams
	}
	f := &pipeline.Frame{
		Width:         d.ScreenWidth,
		Height:        d.ScreenHeight,
		ScaleFactor:   d.ScaleFactor,
		MaxBlurRadius: d.MaxBlurRadius,
		Color:         d.Color,
		CoC:           d.CoC,
		Result:        d.Result,
	}
	err := d.state.Render(d.Context, f, v)
	switch {
	case err == nil:
		return Success
	case errors.Is(err, pipeline.ErrNoContext):
		return InvalidDeviceContext
	case errors.Is(err, pipeline.ErrInvalidSurface):
		return InvalidSurface
	case errors.Is(err, pipeline.ErrInvalidParams):
		return InvalidParams
	default:
		Logger().Warn("dof: render failed", "variant", v, "err", err)
		return Fail
	}
}

// Release destroys every device object owned by the descriptor. It is
// valid in any state and always succeeds.
func Release(d *Desc) ReturnCode {
	if d == nil || d.state == nil {
		return Success
	}
	d.state.Release()
	return Success
}
