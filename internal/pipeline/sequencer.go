package pipeline

import (
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/kernels"
)

// Variant selects one of the three blur variants.
type Variant int

// Blur variants.
const (
	VariantFullRes Variant = iota
	VariantQuarterRes
	VariantBox
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantFullRes:
		return "full-res"
	case VariantQuarterRes:
		return "quarter-res"
	case VariantBox:
		return "box"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// plan is one row of the variant table.
type plan struct {
	setup     kernelSlot
	integrate kernelSlot
	halfRes   bool
}

var plans = [...]plan{
	VariantFullRes:    {setup: kernelSetup, integrate: kernelDoubleIntegrate},
	VariantQuarterRes: {setup: kernelSetupQuarter, integrate: kernelDoubleIntegrate, halfRes: true},
	VariantBox:        {setup: kernelSetupBox, integrate: kernelIntegrate},
}

func divRoundUp[T constraints.Integer](n, d T) T {
	return (n + d - 1) / d
}

// Render records the five passes of variant v on ctx.
//
// The request is rejected with ErrInvalidSurface, before any call on ctx,
// when no buffers are allocated or when the padded area of the frame
// exceeds the allocation. A rejected request does not touch bindings.
func (s *State) Render(ctx gpucore.Context, f *Frame, v Variant) error {
	if ctx == nil {
		return ErrNoContext
	}
	if v < 0 || int(v) >= len(plans) {
		return fmt.Errorf("render variant %d: %w", int(v), ErrInvalidParams)
	}
	if err := s.checkSurface(f); err != nil {
		return err
	}
	pl := plans[v]

	// Bind.
	ctx.SetSamplers(0, []gpucore.SamplerID{s.sampler})
	ctx.SetConstantBuffers(0, []gpucore.BufferID{s.constants})
	ctx.SetShaderResources(0, []gpucore.ViewID{f.Color, f.CoC})
	ctx.ClearUnorderedAccessViewUint(s.accumView, [4]uint32{})

	// Setup: scatter tent or box impulses into the padded accumulator.
	s.updateParams(ctx, f, s.bufferWidth, s.bufferHeight)
	ctx.SetUnorderedAccessViews(0, []gpucore.ViewID{s.accumView, gpucore.InvalidID, gpucore.InvalidID})
	ctx.SetKernel(s.kernels[pl.setup])
	gw, gh := uint32(f.Width), uint32(f.Height) //nolint:gosec // validated non-negative
	if pl.halfRes {
		gw, gh = gw/2, gh/2
	}
	ctx.Dispatch(divRoundUp(gw, kernels.TileSize), divRoundUp(gh, kernels.TileSize), 1)

	// Integrate columns, storing transposed.
	s.updateParams(ctx, f, s.bufferWidth, s.bufferHeight)
	ctx.SetUnorderedAccessViews(0, []gpucore.ViewID{s.accumView, s.transposedView, gpucore.InvalidID})
	ctx.SetKernel(s.kernels[pl.integrate])
	ctx.Dispatch(divRoundUp(uint32(s.bufferWidth), kernels.ColumnGroupSize), 1, 1) //nolint:gosec // bounded by MaxScreenSize

	// Integrate the other axis and transpose back.
	s.updateParams(ctx, f, s.bufferHeight, s.bufferWidth)
	ctx.SetUnorderedAccessViews(0, []gpucore.ViewID{s.transposedView, s.accumView, gpucore.InvalidID})
	ctx.Dispatch(divRoundUp(uint32(s.bufferHeight), kernels.ColumnGroupSize), 1, 1) //nolint:gosec // bounded by MaxScreenSize

	// Resolve.
	s.updateParams(ctx, f, s.bufferWidth, s.bufferHeight)
	ctx.SetUnorderedAccessViews(0, []gpucore.ViewID{s.accumView, gpucore.InvalidID, f.Result})
	ctx.SetKernel(s.kernels[kernelResolve])
	ctx.Dispatch(divRoundUp(uint32(f.Width), kernels.TileSize), divRoundUp(uint32(f.Height), kernels.TileSize), 1) //nolint:gosec // validated non-negative

	// Unbind.
	ctx.SetUnorderedAccessViews(0, make([]gpucore.ViewID, gpucore.MaxUnorderedAccess))
	ctx.SetShaderResources(0, make([]gpucore.ViewID, gpucore.MaxShaderResources))
	ctx.SetConstantBuffers(0, make([]gpucore.BufferID, gpucore.MaxConstantBuffers))
	ctx.SetSamplers(0, make([]gpucore.SamplerID, gpucore.MaxSamplers))

	slogger().Debug("dof: rendered", "variant", v, "width", f.Width, "height", f.Height)
	return nil
}

// checkSurface verifies that the frame fits the last allocation.
func (s *State) checkSurface(f *Frame) error {
	if !s.Initialized() || !s.Resized() {
		return fmt.Errorf("no buffers allocated: %w", ErrInvalidSurface)
	}
	if f.Width < 0 || f.Height < 0 || f.MaxBlurRadius < 0 {
		return fmt.Errorf("frame %dx%d radius %d: %w", f.Width, f.Height, f.MaxBlurRadius, ErrInvalidSurface)
	}
	need := uint64(f.Width+2*f.MaxBlurRadius) * uint64(f.Height+2*f.MaxBlurRadius)
	have := uint64(s.bufferWidth) * uint64(s.bufferHeight)
	if need > have {
		return fmt.Errorf("frame needs %d elements, %d allocated: %w", need, have, ErrInvalidSurface)
	}
	return nil
}
