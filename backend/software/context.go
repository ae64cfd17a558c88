package software

import (
	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/kernels"
	"github.com/gogpu/dof/internal/parallel"
)

// Context is the immediate context of a software Device. Dispatches run
// synchronously on the device's worker pool.
type Context struct {
	dev *Device

	kernel    gpucore.KernelID
	constants [gpucore.MaxConstantBuffers]gpucore.BufferID
	samplers  [gpucore.MaxSamplers]gpucore.SamplerID
	srvs      [gpucore.MaxShaderResources]gpucore.ViewID
	uavs      [gpucore.MaxUnorderedAccess]gpucore.ViewID

	dispatches uint64
	skipped    uint64
}

var _ gpucore.Context = (*Context)(nil)

// SetKernel selects the kernel used by subsequent dispatches.
func (c *Context) SetKernel(id gpucore.KernelID) {
	c.kernel = id
}

// SetSamplers binds samplers starting at slot start.
func (c *Context) SetSamplers(start int, samplers []gpucore.SamplerID) {
	bindSlots(c.samplers[:], start, samplers)
}

// SetConstantBuffers binds constant buffers starting at slot start.
func (c *Context) SetConstantBuffers(start int, buffers []gpucore.BufferID) {
	bindSlots(c.constants[:], start, buffers)
}

// SetShaderResources binds read-only views starting at slot start.
func (c *Context) SetShaderResources(start int, views []gpucore.ViewID) {
	bindSlots(c.srvs[:], start, views)
}

// SetUnorderedAccessViews binds read-write views starting at slot start.
func (c *Context) SetUnorderedAccessViews(start int, views []gpucore.ViewID) {
	bindSlots(c.uavs[:], start, views)
}

func bindSlots[T any](slots []T, start int, values []T) {
	for i, v := range values {
		if s := start + i; s >= 0 && s < len(slots) {
			slots[s] = v
		}
	}
}

// ClearUnorderedAccessViewUint fills the viewed resource with values.
func (c *Context) ClearUnorderedAccessViewUint(id gpucore.ViewID, values [4]uint32) {
	c.dev.mu.RLock()
	v := c.dev.views[id]
	c.dev.mu.RUnlock()
	if v == nil || !v.writable {
		slogger().Warn("software: clear of unknown or read-only view", "view", id)
		return
	}

	words := v.words()
	channels := v.channels()
	if channels == 0 {
		return
	}
	if values == [4]uint32{} {
		clear(words)
		return
	}
	for i := range words {
		words[i] = values[i%channels]
	}
}

// Dispatch runs the bound kernel over an x*y*z grid of workgroups and
// returns when every workgroup has finished. A dispatch whose bindings do
// not satisfy the kernel is skipped and logged.
func (c *Context) Dispatch(x, y, z uint32) {
	b, k, ok := c.snapshot()
	if !ok {
		c.skipped++
		return
	}
	run, err := k.bind(&b)
	if err != nil {
		slogger().Warn("software: dispatch skipped", "kernel", c.kernel, "err", err)
		c.skipped++
		return
	}

	wx, wy := k.workgroup[0], k.workgroup[1]
	c.dev.pool.Dispatch(x, y, z, func(g parallel.Group) {
		ox, oy := int(g.X)*wx, int(g.Y)*wy
		for ly := range wy {
			for lx := range wx {
				run(ox+lx, oy+ly)
			}
		}
	})
	c.dispatches++
}

// snapshot captures the bound state of a dispatch.
func (c *Context) snapshot() (bindings, *kernel, bool) {
	d := c.dev
	d.mu.RLock()
	defer d.mu.RUnlock()

	k := d.kernels[c.kernel]
	if k == nil {
		slogger().Warn("software: dispatch without a valid kernel", "kernel", c.kernel)
		return bindings{}, nil, false
	}

	cb := d.buffers[c.constants[0]]
	if cb == nil {
		slogger().Warn("software: dispatch without a constant buffer")
		return bindings{}, nil, false
	}
	params := kernels.ParamsFrom(cb.data)
	if params == nil {
		slogger().Warn("software: constant buffer too small", "size", len(cb.data))
		return bindings{}, nil, false
	}

	b := bindings{params: new(kernels.Params)}
	*b.params = *params
	if smp, ok := d.samplers[c.samplers[0]]; ok {
		b.sampler = smp
		b.hasSampler = true
	}
	for i, id := range c.srvs {
		b.srv[i] = d.views[id]
	}
	for i, id := range c.uavs {
		b.uav[i] = d.views[id]
	}
	return b, k, true
}

// Map returns the storage of a dynamic buffer. Recorded work has already
// executed, so discarding needs no renaming.
func (c *Context) Map(id gpucore.BufferID, mode gpucore.MapMode) []byte {
	if mode != gpucore.MapWriteDiscard {
		return nil
	}
	c.dev.mu.RLock()
	b := c.dev.buffers[id]
	c.dev.mu.RUnlock()
	if b == nil || !b.desc.Usage.Has(gpucore.BufferUsageDynamic) {
		return nil
	}
	return b.data
}

// Unmap ends a Map.
func (c *Context) Unmap(gpucore.BufferID) {}

// Flush is a no-op: work executes when it is recorded.
func (c *Context) Flush() error {
	return nil
}

// Dispatches returns the number of dispatches executed.
func (c *Context) Dispatches() uint64 {
	return c.dispatches
}

// Skipped returns the number of dispatches skipped for invalid bindings.
func (c *Context) Skipped() uint64 {
	return c.skipped
}
