package pipeline

import (
	"math"

	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/kernels"
)

// tentWeights is the 3x3 tent impulse table: (dx, dy, weight, unused).
// The outer product of (1, -2, 1) with itself.
var tentWeights = [9][4]int32{
	{-1, -1, 1, 0}, {0, -1, -2, 0}, {1, -1, 1, 0},
	{-1, 0, -2, 0}, {0, 0, 4, 0}, {1, 0, -2, 0},
	{-1, 1, 1, 0}, {0, 1, -2, 0}, {1, 1, 1, 0},
}

// boxWeights is the 2x2 box impulse table: (dx, dy, weight, unused).
var boxWeights = [4][4]int32{
	{-1, -1, 1, 0}, {1, -1, -1, 0},
	{-1, 1, -1, 0}, {1, 1, 1, 0},
}

// Frame is the per-call view of the effect descriptor.
type Frame struct {
	Width         int
	Height        int
	ScaleFactor   int
	MaxBlurRadius int

	Color  gpucore.ViewID
	CoC    gpucore.ViewID
	Result gpucore.ViewID
}

// buildParams fills a parameter block for the given buffer orientation.
func buildParams(f *Frame, padding, bufferWidth, bufferHeight int) kernels.Params {
	// Sizes are bounded by MaxScreenSize and MaxBlurRadius.
	src := [2]int32{int32(f.Width), int32(f.Height)}         //nolint:gosec
	buf := [2]int32{int32(bufferWidth), int32(bufferHeight)} //nolint:gosec
	pad := int32(padding)                                    //nolint:gosec
	p := kernels.Params{
		SourceResolution: src,
		BufferResolution: buf,
		ScaleFactor:      float32(math.Ldexp(1, f.ScaleFactor)),
		Padding:          pad,
		Tent:             tentWeights,
		Box:              boxWeights,
	}
	if f.Width > 0 {
		p.InvSourceResolution[0] = 1 / float32(f.Width)
	}
	if f.Height > 0 {
		p.InvSourceResolution[1] = 1 / float32(f.Height)
	}
	return p
}

// updateParams rewrites the whole constant buffer with write-discard
// semantics. When the buffer cannot be mapped the write is skipped and
// counted in the degraded counter; the stale block only affects the image
// of this dispatch.
func (s *State) updateParams(ctx gpucore.Context, f *Frame, bufferWidth, bufferHeight int) {
	data := ctx.Map(s.constants, gpucore.MapWriteDiscard)
	if data == nil {
		s.degraded++
		slogger().Warn("dof: constant buffer map failed, parameter upload skipped",
			"buffer_width", bufferWidth, "buffer_height", bufferHeight, "degraded", s.degraded)
		return
	}

	p := buildParams(f, s.padding, bufferWidth, bufferHeight)
	copy(data, p.Bytes())
	ctx.Unmap(s.constants)
}
