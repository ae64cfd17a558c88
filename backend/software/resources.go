package software

import (
	"github.com/gogpu/dof/gpucore"

	"honnef.co/go/safeish"
)

type buffer struct {
	desc gpucore.BufferDesc
	data []byte
}

type texture struct {
	desc gpucore.TextureDesc
	data []byte
}

// view references either a buffer or a texture.
type view struct {
	label    string
	writable bool
	buffer   *buffer
	texture  *texture
}

func (v *view) bytes() []byte {
	switch {
	case v == nil:
		return nil
	case v.buffer != nil:
		return v.buffer.data
	case v.texture != nil:
		return v.texture.data
	}
	return nil
}

// channels returns the number of 32-bit words per element.
func (v *view) channels() int {
	switch {
	case v.buffer != nil:
		return int(v.buffer.desc.Stride / 4)
	case v.texture != nil:
		return v.texture.desc.Format.Channels()
	}
	return 0
}

func (v *view) floats() []float32 {
	b := v.bytes()
	if len(b) == 0 {
		return nil
	}
	return safeish.SliceCast[[]float32](b)
}

func (v *view) ints() []int32 {
	b := v.bytes()
	if len(b) == 0 {
		return nil
	}
	return safeish.SliceCast[[]int32](b)
}

func (v *view) words() []uint32 {
	b := v.bytes()
	if len(b) == 0 {
		return nil
	}
	return safeish.SliceCast[[]uint32](b)
}

// surface is a float texture bound as a kernel input or output.
type surface struct {
	data          []float32
	width, height int
	channels      int
}

func (v *view) surface() (surface, bool) {
	if v == nil || v.texture == nil {
		return surface{}, false
	}
	data := v.floats()
	d := v.texture.desc
	if len(data) != d.Width*d.Height*d.Format.Channels() {
		return surface{}, false
	}
	return surface{data: data, width: d.Width, height: d.Height, channels: d.Format.Channels()}, true
}

// texel returns channel values of (x, y), missing channels reading as 0
// except alpha, which reads as 1.
func (s surface) texel(x, y int) [4]float32 {
	out := [4]float32{0, 0, 0, 1}
	i := (y*s.width + x) * s.channels
	copy(out[:s.channels], s.data[i:i+s.channels])
	return out
}

func (s surface) store(x, y int, v [4]float32) {
	i := (y*s.width + x) * s.channels
	copy(s.data[i:i+s.channels], v[:s.channels])
}
