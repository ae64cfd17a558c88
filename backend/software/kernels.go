package software

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/kernels"
)

var errMissingBinding = errors.New("software: missing or undersized binding")

// bindings is the slot state captured when a dispatch starts.
type bindings struct {
	params     *kernels.Params
	sampler    gpucore.SamplerDesc
	hasSampler bool
	srv        [gpucore.MaxShaderResources]*view
	uav        [gpucore.MaxUnorderedAccess]*view
}

// kernel is a built-in kernel body. bind validates the bindings of one
// dispatch and returns the per-invocation function.
type kernel struct {
	workgroup [2]int
	bind      func(b *bindings) (func(x, y int), error)
}

var builtinKernels = map[string]*kernel{
	kernels.EntryFastFilterSetup:        {workgroup: [2]int{kernels.TileSize, kernels.TileSize}, bind: bindTentSetup},
	kernels.EntryFastFilterSetupQuarter: {workgroup: [2]int{kernels.TileSize, kernels.TileSize}, bind: bindQuarterSetup},
	kernels.EntryBoxFilterSetup:         {workgroup: [2]int{kernels.TileSize, kernels.TileSize}, bind: bindBoxSetup},
	kernels.EntrySingleIntegrate:        {workgroup: [2]int{kernels.ColumnGroupSize, 1}, bind: bindIntegrate(1)},
	kernels.EntryDoubleIntegrate:        {workgroup: [2]int{kernels.ColumnGroupSize, 1}, bind: bindIntegrate(2)},
	kernels.EntryResolve:                {workgroup: [2]int{kernels.TileSize, kernels.TileSize}, bind: bindResolve},
}

// accumulator is the padded fixed-point splat target.
type accumulator struct {
	data          []int32
	width, height int
}

func (a accumulator) splat(x, y int, v [4]int32) {
	if x < 0 || y < 0 || x >= a.width || y >= a.height {
		return
	}
	i := (y*a.width + x) * 4
	atomic.AddInt32(&a.data[i], v[0])
	atomic.AddInt32(&a.data[i+1], v[1])
	atomic.AddInt32(&a.data[i+2], v[2])
	atomic.AddInt32(&a.data[i+3], v[3])
}

func scaled(v [4]int32, w int32) [4]int32 {
	return [4]int32{v[0] * w, v[1] * w, v[2] * w, v[3] * w}
}

// fixedPoint converts a colour to the accumulator representation: rgb
// weighted by base, alpha holding the weight itself.
func fixedPoint(c [4]float32, base float32) [4]int32 {
	return [4]int32{int32(c[0] * base), int32(c[1] * base), int32(c[2] * base), int32(base)}
}

// radius rounds a circle of confusion half to even and clamps it.
func radius(coc float32, lo, hi int32) int32 {
	if math.IsNaN(float64(coc)) {
		return lo
	}
	coc = min(max(coc, float32(lo)), float32(hi))
	return int32(math.RoundToEven(float64(coc)))
}

func (b *bindings) setupTargets() (color, coc surface, acc accumulator, err error) {
	p := b.params
	w, h := int(p.SourceResolution[0]), int(p.SourceResolution[1])

	color, okColor := b.srv[0].surface()
	coc, okCoC := b.srv[1].surface()
	if !okColor || !okCoC || color.width < w || color.height < h || coc.width < w || coc.height < h {
		return color, coc, acc, fmt.Errorf("shader resources: %w", errMissingBinding)
	}

	acc = accumulator{
		data:   b.uav[0].ints(),
		width:  int(p.BufferResolution[0]),
		height: int(p.BufferResolution[1]),
	}
	if acc.width < 0 || acc.height < 0 || len(acc.data) < acc.width*acc.height*4 {
		return color, coc, acc, fmt.Errorf("accumulator: %w", errMissingBinding)
	}
	return color, coc, acc, nil
}

func bindTentSetup(b *bindings) (func(x, y int), error) {
	color, coc, acc, err := b.setupTargets()
	if err != nil {
		return nil, err
	}
	p := b.params
	w, h := int(p.SourceResolution[0]), int(p.SourceResolution[1])
	hi := max(p.Padding-2, 0)

	return func(x, y int) {
		if x >= w || y >= h {
			return
		}
		r := radius(coc.texel(x, y)[0], 0, hi)
		a := r + 1
		base := p.ScaleFactor / (float32(a*a) * float32(a*a))
		v := fixedPoint(color.texel(x, y), base)

		px := x + int(p.Padding) + 1
		py := y + int(p.Padding) + 1
		for _, t := range p.Tent {
			acc.splat(px+int(t[0]*a), py+int(t[1]*a), scaled(v, t[2]))
		}
	}, nil
}

func bindQuarterSetup(b *bindings) (func(x, y int), error) {
	color, coc, acc, err := b.setupTargets()
	if err != nil {
		return nil, err
	}
	if !b.hasSampler {
		return nil, fmt.Errorf("sampler: %w", errMissingBinding)
	}
	p := b.params
	w, h := int(p.SourceResolution[0]), int(p.SourceResolution[1])
	hi := max(p.Padding-2, 1)
	smp := b.sampler

	return func(bx, by int) {
		if bx >= w/2 || by >= h/2 {
			return
		}
		x, y := bx*2, by*2

		u := float32(x+1) * p.InvSourceResolution[0]
		v := float32(y+1) * p.InvSourceResolution[1]
		c := sampleMin(color, smp, u, v)

		x1, y1 := min(x+1, w-1), min(y+1, h-1)
		mean := (coc.texel(x, y)[0] + coc.texel(x1, y)[0] + coc.texel(x, y1)[0] + coc.texel(x1, y1)[0]) * 0.25

		r := radius(mean, 1, hi)
		a := r + 1
		base := p.ScaleFactor / (float32(a*a) * float32(a*a))
		value := fixedPoint(c, base)

		px := x + int(p.Padding) + 1
		py := y + int(p.Padding) + 1
		for _, t := range p.Tent {
			acc.splat(px+int(t[0]*a), py+int(t[1]*a), scaled(value, t[2]))
		}
	}, nil
}

func boxEdge(d, r int32) int {
	if d < 0 {
		return int(-r)
	}
	return int(r + 1)
}

func bindBoxSetup(b *bindings) (func(x, y int), error) {
	color, coc, acc, err := b.setupTargets()
	if err != nil {
		return nil, err
	}
	p := b.params
	w, h := int(p.SourceResolution[0]), int(p.SourceResolution[1])
	hi := max(p.Padding-2, 0)

	return func(x, y int) {
		if x >= w || y >= h {
			return
		}
		r := radius(coc.texel(x, y)[0], 0, hi)
		side := 2*r + 1
		base := p.ScaleFactor / float32(side*side)
		v := fixedPoint(color.texel(x, y), base)

		px := x + int(p.Padding)
		py := y + int(p.Padding)
		for _, t := range p.Box {
			acc.splat(px+boxEdge(t[0], r), py+boxEdge(t[1], r), scaled(v, t[2]))
		}
	}, nil
}

// bindIntegrate returns the body of a kernel running passes running sums
// down each column and storing the result transposed.
func bindIntegrate(passes int) func(b *bindings) (func(x, y int), error) {
	return func(b *bindings) (func(x, y int), error) {
		p := b.params
		cols, rows := int(p.BufferResolution[0]), int(p.BufferResolution[1])
		src := b.uav[0].ints()
		dst := b.uav[1].ints()
		n := cols * rows * 4
		if cols < 0 || rows < 0 || len(src) < n || len(dst) < n {
			return nil, fmt.Errorf("integrate %dx%d: %w", cols, rows, errMissingBinding)
		}

		return func(x, _ int) {
			if x >= cols {
				return
			}
			var delta, sum [4]int32
			for y := range rows {
				in := (y*cols + x) * 4
				out := (x*rows + y) * 4
				for c := range 4 {
					delta[c] += src[in+c]
					if passes == 1 {
						dst[out+c] = delta[c]
						continue
					}
					sum[c] += delta[c]
					dst[out+c] = sum[c]
				}
			}
		}, nil
	}
}

func bindResolve(b *bindings) (func(x, y int), error) {
	p := b.params
	w, h := int(p.SourceResolution[0]), int(p.SourceResolution[1])

	color, okColor := b.srv[0].surface()
	result, okResult := b.uav[2].surface()
	if !okColor || !okResult || color.width < w || color.height < h || result.width < w || result.height < h {
		return nil, fmt.Errorf("resolve surfaces: %w", errMissingBinding)
	}
	acc := accumulator{
		data:   b.uav[0].ints(),
		width:  int(p.BufferResolution[0]),
		height: int(p.BufferResolution[1]),
	}
	if acc.width < 0 || acc.height < 0 || len(acc.data) < acc.width*acc.height*4 {
		return nil, fmt.Errorf("resolve accumulator: %w", errMissingBinding)
	}
	pad := int(p.Padding)

	return func(x, y int) {
		if x >= w || y >= h {
			return
		}
		source := color.texel(x, y)
		ax, ay := x+pad, y+pad
		if ax >= acc.width || ay >= acc.height {
			result.store(x, y, source)
			return
		}
		i := (ay*acc.width + ax) * 4
		weight := acc.data[i+3]
		if weight <= 0 {
			result.store(x, y, source)
			return
		}
		wf := float32(weight)
		result.store(x, y, [4]float32{
			float32(acc.data[i]) / wf,
			float32(acc.data[i+1]) / wf,
			float32(acc.data[i+2]) / wf,
			source[3],
		})
	}, nil
}
