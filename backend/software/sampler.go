package software

import (
	"math"

	"github.com/gogpu/dof/gpucore"
)

// sampleMin samples s at normalized coordinates (u, v) as a minifying
// fetch, using the sampler's min filter and address modes.
func sampleMin(s surface, smp gpucore.SamplerDesc, u, v float32) [4]float32 {
	if smp.MinFilter == gpucore.FilterModePoint {
		x := address(int(math.Floor(float64(u)*float64(s.width))), s.width, smp.AddressU)
		y := address(int(math.Floor(float64(v)*float64(s.height))), s.height, smp.AddressV)
		return s.texel(x, y)
	}

	fx := u*float32(s.width) - 0.5
	fy := v*float32(s.height) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	xa := address(x0, s.width, smp.AddressU)
	xb := address(x0+1, s.width, smp.AddressU)
	ya := address(y0, s.height, smp.AddressV)
	yb := address(y0+1, s.height, smp.AddressV)

	c00 := s.texel(xa, ya)
	c10 := s.texel(xb, ya)
	c01 := s.texel(xa, yb)
	c11 := s.texel(xb, yb)

	var out [4]float32
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*tx
		bottom := c01[i] + (c11[i]-c01[i])*tx
		out[i] = top + (bottom-top)*ty
	}
	return out
}

// address resolves texel coordinate i into [0, n).
func address(i, n int, mode gpucore.AddressMode) int {
	switch mode {
	case gpucore.AddressModeWrap:
		i %= n
		if i < 0 {
			i += n
		}
		return i
	case gpucore.AddressModeMirror:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i
	default:
		return min(max(i, 0), n-1)
	}
}
