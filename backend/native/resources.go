//go:build !nogpu

package native

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dof/gpucore"
)

type buffer struct {
	desc gpucore.BufferDesc

	// versions holds one hal buffer, or for dynamic constant buffers a
	// ring of them renamed on every Unmap.
	versions []*version
	current  int

	// shadow is the CPU copy handed out by Map.
	shadow []byte
}

func (b *buffer) active() *version {
	return b.versions[b.current]
}

// version is one hal allocation backing a buffer.
type version struct {
	buf    hal.Buffer
	serial uint64

	// pending is set while recorded work references the version.
	pending bool
}

type texture struct {
	desc   gpucore.TextureDesc
	buf    hal.Buffer
	size   uint64
	serial uint64
}

// view references either a buffer or a texture.
type view struct {
	label    string
	writable bool
	buffer   *buffer
	texture  *texture
}

// target returns the hal buffer a view binds, its size and the serial
// identifying the allocation.
func (v *view) target() (hal.Buffer, uint64, uint64) {
	switch {
	case v.buffer != nil && len(v.buffer.versions) > 0:
		ver := v.buffer.active()
		return ver.buf, v.buffer.desc.Size, ver.serial
	case v.texture != nil:
		return v.texture.buf, v.texture.size, v.texture.serial
	}
	return nil, 0, 0
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

// slotKey identifies the resource bound at one binding.
type slotKey struct {
	id     uint64
	serial uint64
}

// bindKey identifies a bind group: the kernel and what each binding
// resolves to. Renaming a constant buffer changes its serial and so
// produces a new key.
type bindKey struct {
	kernel gpucore.KernelID
	slots  [gpucore.BindingCount]slotKey
}

func (k bindKey) references(id uint64) bool {
	if uint64(k.kernel) == id {
		return true
	}
	for _, s := range k.slots {
		if s.id == id {
			return true
		}
	}
	return false
}
