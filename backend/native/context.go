//go:build !nogpu

package native

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dof/gpucore"
)

// pollInterval is the sleep between completion polls while waiting.
const pollInterval = 100 * time.Microsecond

// Context is the immediate context of a native Device. Dispatches are
// recorded into one command encoder and submitted by Flush.
type Context struct {
	dev *Device

	kernel    gpucore.KernelID
	constants [gpucore.MaxConstantBuffers]gpucore.BufferID
	samplers  [gpucore.MaxSamplers]gpucore.SamplerID
	srvs      [gpucore.MaxShaderResources]gpucore.ViewID
	uavs      [gpucore.MaxUnorderedAccess]gpucore.ViewID

	encoder   hal.CommandEncoder
	recording atomic.Bool

	dispatches uint64
	skipped    uint64
	submits    uint64
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

// begin returns the recording encoder, starting one if needed.
func (c *Context) begin() (hal.CommandEncoder, error) {
	if c.recording.Load() {
		return c.encoder, nil
	}
	if c.encoder == nil {
		enc, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "dof"})
		if err != nil {
			return nil, fmt.Errorf("create command encoder: %w", err)
		}
		c.encoder = enc
	}
	if err := c.encoder.BeginEncoding("dof"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	c.recording.Store(true)
	return c.encoder, nil
}

// ClearUnorderedAccessViewUint fills the viewed resource with values.
// Zero clears are recorded; other patterns are uploaded after submitting
// recorded work.
func (c *Context) ClearUnorderedAccessViewUint(id gpucore.ViewID, values [4]uint32) {
	d := c.dev
	d.mu.RLock()
	v := d.views[id]
	var (
		buf  hal.Buffer
		size uint64
	)
	if v != nil {
		buf, size, _ = v.target()
	}
	d.mu.RUnlock()
	if v == nil || !v.writable || buf == nil {
		slogger().Warn("native: clear of unknown or read-only view", "view", id)
		return
	}

	if values == [4]uint32{} {
		enc, err := c.begin()
		if err != nil {
			slogger().Warn("native: clear skipped", "view", id, "err", err)
			return
		}
		enc.ClearBuffer(buf, 0, size)
		enc.TransitionBuffers([]hal.BufferBarrier{{
			Buffer: buf,
			Usage: hal.BufferUsageTransition{
				OldUsage: gputypes.BufferUsageCopyDst,
				NewUsage: gputypes.BufferUsageStorage,
			},
		}})
		return
	}

	channels := v.channels()
	if channels == 0 {
		return
	}
	if err := c.Flush(); err != nil {
		slogger().Warn("native: clear skipped", "view", id, "err", err)
		return
	}
	pattern := make([]byte, size)
	for i := 0; i+4 <= len(pattern); i += 4 {
		binary.LittleEndian.PutUint32(pattern[i:], values[(i/4)%channels])
	}
	if err := d.queue.WriteBuffer(buf, 0, pattern); err != nil {
		slogger().Warn("native: clear upload failed", "view", id, "err", err)
	}
}

// Dispatch records the bound kernel over an x*y*z grid of workgroups.
// A dispatch whose bindings do not satisfy the kernel is skipped and
// logged.
func (c *Context) Dispatch(x, y, z uint32) {
	if x == 0 || y == 0 || z == 0 {
		return
	}
	k, group, written, err := c.prepare()
	if err != nil {
		slogger().Warn("native: dispatch skipped", "kernel", c.kernel, "err", err)
		c.skipped++
		return
	}
	enc, err := c.begin()
	if err != nil {
		slogger().Warn("native: dispatch skipped", "kernel", c.kernel, "err", err)
		c.skipped++
		return
	}

	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: k.label})
	pass.SetPipeline(k.compute)
	pass.SetBindGroup(0, group, nil)
	pass.Dispatch(x, y, z)
	pass.End()

	// Later passes read what this one wrote.
	barriers := make([]hal.BufferBarrier, len(written))
	for i, buf := range written {
		barriers[i] = hal.BufferBarrier{
			Buffer: buf,
			Usage: hal.BufferUsageTransition{
				OldUsage: gputypes.BufferUsageStorage,
				NewUsage: gputypes.BufferUsageStorage,
			},
		}
	}
	enc.TransitionBuffers(barriers)
	c.dispatches++
}

// prepare resolves the bound slots against the kernel's bindings and
// returns a bind group for them together with the buffers the kernel
// writes.
func (c *Context) prepare() (*kernel, hal.BindGroup, []hal.Buffer, error) {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, nil, nil, ErrDeviceClosed
	}

	k := d.kernels[c.kernel]
	if k == nil {
		return nil, nil, nil, fmt.Errorf("kernel %d: %w", c.kernel, gpucore.ErrInvalidID)
	}

	key := bindKey{kernel: c.kernel}
	entries := make([]gputypes.BindGroupEntry, 0, len(k.bindings))
	var written []hal.Buffer
	for _, b := range k.bindings {
		kind, slot, _ := gpucore.SlotFor(int(b.Binding))
		var (
			buf          hal.Buffer
			size, serial uint64
			id           uint64
		)
		switch kind {
		case gpucore.SlotConstantBuffer:
			cb := d.buffers[c.constants[slot]]
			if cb == nil {
				return nil, nil, nil, fmt.Errorf("constant buffer b%d: %w", slot, gpucore.ErrInvalidID)
			}
			ver := cb.active()
			ver.pending = true
			buf, size, serial, id = ver.buf, alignSize(cb.desc.Size), ver.serial, uint64(c.constants[slot])
		case gpucore.SlotShaderResource, gpucore.SlotUnorderedAccess:
			var vid gpucore.ViewID
			if kind == gpucore.SlotShaderResource {
				vid = c.srvs[slot]
			} else {
				vid = c.uavs[slot]
			}
			v := d.views[vid]
			if v == nil {
				return nil, nil, nil, fmt.Errorf("binding %d: view %d: %w", b.Binding, vid, gpucore.ErrInvalidID)
			}
			if kind == gpucore.SlotUnorderedAccess && !v.writable {
				return nil, nil, nil, fmt.Errorf("binding %d: view %q is read-only: %w", b.Binding, v.label, gpucore.ErrUnsupported)
			}
			buf, size, serial = v.target()
			if buf == nil {
				return nil, nil, nil, fmt.Errorf("binding %d: view %q outlived its resource: %w", b.Binding, v.label, gpucore.ErrInvalidID)
			}
			id = uint64(vid)
			if b.Type == gpucore.BindingStorage {
				written = append(written, buf)
			}
		default:
			continue
		}
		key.slots[b.Binding] = slotKey{id: id, serial: serial}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  b.Binding,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: size},
		})
	}

	if g, ok := d.bindGroups.Get(key); ok {
		return k, g, written, nil
	}
	g, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   k.label,
		Layout:  k.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create bind group: %w", err)
	}
	d.bindGroups.Add(key, g)
	return k, g, written, nil
}

// Map returns the CPU shadow of a dynamic constant buffer. The contents
// reach the device on Unmap.
func (c *Context) Map(id gpucore.BufferID, mode gpucore.MapMode) []byte {
	if mode != gpucore.MapWriteDiscard {
		return nil
	}
	c.dev.mu.RLock()
	b := c.dev.buffers[id]
	c.dev.mu.RUnlock()
	if b == nil || b.shadow == nil {
		return nil
	}
	return b.shadow
}

// Unmap uploads the shadow of a dynamic buffer. When recorded work still
// references the active copy, the buffer is renamed to a free or new copy
// first.
func (c *Context) Unmap(id gpucore.BufferID) {
	d := c.dev
	d.mu.RLock()
	b := d.buffers[id]
	d.mu.RUnlock()
	if b == nil || b.shadow == nil {
		return
	}

	if b.active().pending {
		if err := c.rename(b); err != nil {
			slogger().Warn("native: constant buffer upload skipped", "buffer", id, "err", err)
			return
		}
	}
	if err := d.queue.WriteBuffer(b.active().buf, 0, b.shadow); err != nil {
		slogger().Warn("native: constant buffer upload failed", "buffer", id, "err", err)
	}
}

// rename points b at a copy that no recorded work references.
func (c *Context) rename(b *buffer) error {
	d := c.dev
	if len(b.versions) >= maxVersions {
		// Flushing clears every pending mark.
		return c.Flush()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range b.versions {
		if !v.pending {
			b.current = i
			return nil
		}
	}
	v, err := d.newVersion(b)
	if err != nil {
		return err
	}
	b.versions = append(b.versions, v)
	b.current = len(b.versions) - 1
	return nil
}

// copyBuffer records a full copy of src into dst.
func (c *Context) copyBuffer(src, dst hal.Buffer, size uint64) error {
	enc, err := c.begin()
	if err != nil {
		return err
	}
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: src,
		Usage: hal.BufferUsageTransition{
			OldUsage: gputypes.BufferUsageStorage,
			NewUsage: gputypes.BufferUsageCopySrc,
		},
	}})
	enc.CopyBufferToBuffer(src, dst, []hal.BufferCopy{{Size: size}})
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: src,
		Usage: hal.BufferUsageTransition{
			OldUsage: gputypes.BufferUsageCopySrc,
			NewUsage: gputypes.BufferUsageStorage,
		},
	}})
	return nil
}

// Flush submits recorded work and waits for it to complete. Objects
// destroyed while the work was recorded are freed afterwards.
func (c *Context) Flush() error {
	d := c.dev
	if !c.recording.Load() {
		d.mu.Lock()
		d.collectLocked()
		d.mu.Unlock()
		return nil
	}

	cmd, err := c.encoder.EndEncoding()
	c.recording.Store(false)
	if err != nil {
		c.encoder.DiscardEncoding()
		return fmt.Errorf("end encoding: %w", err)
	}

	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("submit: %w", err)
	}
	c.submits++
	if err := c.wait(index); err != nil {
		// The command buffer may still execute; leak it rather than free
		// memory the GPU is using.
		return err
	}

	c.encoder.ResetAll([]hal.CommandBuffer{cmd})
	d.device.FreeCommandBuffer(cmd)

	d.mu.Lock()
	d.collectLocked()
	d.mu.Unlock()
	return nil
}

// wait polls the queue until submission index has completed.
func (c *Context) wait(index uint64) error {
	deadline := time.Now().Add(c.dev.opts.waitTimeout)
	for c.dev.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("submission %d: %w", index, ErrWaitTimeout)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// discard drops recorded work without submitting it.
func (c *Context) discard() {
	if c.recording.Load() {
		c.encoder.DiscardEncoding()
		c.recording.Store(false)
	}
}

// release destroys the command encoder.
func (c *Context) release() {
	c.discard()
	if c.encoder != nil {
		c.encoder.Destroy()
		c.encoder = nil
	}
}

// Dispatches returns the number of dispatches recorded.
func (c *Context) Dispatches() uint64 {
	return c.dispatches
}

// Skipped returns the number of dispatches skipped for invalid bindings.
func (c *Context) Skipped() uint64 {
	return c.skipped
}

// Submits returns the number of command buffers submitted.
func (c *Context) Submits() uint64 {
	return c.submits
}
