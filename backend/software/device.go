// Package software implements gpucore.Device and gpucore.Context on the CPU.
//
// The device runs the pipeline's kernels as Go functions. Workgroups of a
// dispatch execute in parallel on a worker pool and the dispatch returns
// once all of them are done, so every dispatch sees the writes of the
// previous one. Results are deterministic: the setup kernels accumulate
// with integer atomics, whose final value does not depend on ordering.
//
// The device is the reference for the WGSL kernels and the backend used by
// tests and headless tools.
package software

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/parallel"
)

// DefaultMaxBufferSize is the default per-resource allocation limit.
const DefaultMaxBufferSize = 1 << 30

// Option configures a Device.
type Option func(*options)

type options struct {
	workers       int
	maxBufferSize uint64
}

// WithWorkers sets the number of worker goroutines.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMaxBufferSize sets the largest buffer or texture the device will
// allocate, in bytes. Larger requests fail with gpucore.ErrOutOfMemory.
func WithMaxBufferSize(size uint64) Option {
	return func(o *options) {
		o.maxBufferSize = size
	}
}

// Device is a CPU implementation of gpucore.Device.
//
// Thread Safety: resource creation and destruction are safe for concurrent
// use. The immediate context returned by Context is not.
type Device struct {
	mu   sync.RWMutex
	opts options
	pool *parallel.Pool

	nextID atomic.Uint64

	buffers  map[gpucore.BufferID]*buffer
	textures map[gpucore.TextureID]*texture
	views    map[gpucore.ViewID]*view
	samplers map[gpucore.SamplerID]gpucore.SamplerDesc
	kernels  map[gpucore.KernelID]*kernel

	ctx *Context
}

var _ gpucore.Device = (*Device)(nil)

// New creates a software device and its immediate context.
func New(opts ...Option) *Device {
	o := options{maxBufferSize: DefaultMaxBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Device{
		opts:     o,
		pool:     parallel.NewPool(o.workers),
		buffers:  make(map[gpucore.BufferID]*buffer),
		textures: make(map[gpucore.TextureID]*texture),
		views:    make(map[gpucore.ViewID]*view),
		samplers: make(map[gpucore.SamplerID]gpucore.SamplerDesc),
		kernels:  make(map[gpucore.KernelID]*kernel),
	}
	d.nextID.Store(1)
	d.ctx = &Context{dev: d}
	return d
}

// Context returns the device's immediate context.
func (d *Device) Context() *Context {
	return d.ctx
}

// Close stops the worker pool. Resources remain readable.
func (d *Device) Close() {
	d.pool.Close()
}

// Workers returns the number of worker goroutines.
func (d *Device) Workers() int {
	return d.pool.Workers()
}

// LiveResources returns the number of resources that have not been
// destroyed.
func (d *Device) LiveResources() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.buffers) + len(d.textures) + len(d.views) + len(d.samplers) + len(d.kernels)
}

func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// CreateKernel resolves one of the built-in kernel bodies by entry point.
func (d *Device) CreateKernel(desc *gpucore.KernelDesc) (gpucore.KernelID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("create kernel: %w", gpucore.ErrUnsupported)
	}
	k, ok := builtinKernels[desc.EntryPoint]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("create kernel %q: %w", desc.EntryPoint, gpucore.ErrUnsupported)
	}

	id := gpucore.KernelID(d.newID())
	d.mu.Lock()
	d.kernels[id] = k
	d.mu.Unlock()
	return id, nil
}

// DestroyKernel releases a kernel.
func (d *Device) DestroyKernel(id gpucore.KernelID) {
	d.mu.Lock()
	delete(d.kernels, id)
	d.mu.Unlock()
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("create buffer: %w", gpucore.ErrUnsupported)
	}
	if desc.Usage.Has(gpucore.BufferUsageStructured) {
		if desc.Stride == 0 || desc.Stride%4 != 0 || desc.Size%uint64(desc.Stride) != 0 {
			return gpucore.InvalidID, fmt.Errorf("create buffer %q: stride %d, size %d: %w",
				desc.Label, desc.Stride, desc.Size, gpucore.ErrUnsupported)
		}
	}
	if desc.Size > d.opts.maxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q (%d bytes): %w", desc.Label, desc.Size, gpucore.ErrOutOfMemory)
	}

	b := &buffer{desc: *desc, data: make([]byte, desc.Size)}
	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = b
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	if b, ok := d.buffers[id]; ok {
		b.data = nil
		delete(d.buffers, id)
	}
	d.mu.Unlock()
}

// CreateTexture allocates a zeroed texture.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width <= 0 || desc.Height <= 0 || desc.Format.BytesPerPixel() == 0 {
		return gpucore.InvalidID, fmt.Errorf("create texture: %w", gpucore.ErrUnsupported)
	}
	size := uint64(desc.Width) * uint64(desc.Height) * uint64(desc.Format.BytesPerPixel())
	if size > d.opts.maxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("create texture %q (%d bytes): %w", desc.Label, size, gpucore.ErrOutOfMemory)
	}

	t := &texture{desc: *desc, data: make([]byte, size)}
	id := gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = t
	d.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	if t, ok := d.textures[id]; ok {
		t.data = nil
		delete(d.textures, id)
	}
	d.mu.Unlock()
}

// WriteTexture replaces the contents of a texture.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte) error {
	d.mu.RLock()
	t, ok := d.textures[id]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("write texture %d: %w", id, gpucore.ErrInvalidID)
	}
	if len(data) != len(t.data) {
		return fmt.Errorf("write texture %d: got %d bytes, want %d: %w", id, len(data), len(t.data), gpucore.ErrSizeMismatch)
	}
	copy(t.data, data)
	return nil
}

// ReadTexture returns a copy of a texture. Work is executed eagerly, so
// there is nothing to wait for.
func (d *Device) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	d.mu.RLock()
	t, ok := d.textures[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("read texture %d: %w", id, gpucore.ErrInvalidID)
	}
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out, nil
}

// CreateShaderResourceView creates a read-only view.
func (d *Device) CreateShaderResourceView(desc *gpucore.ViewDesc) (gpucore.ViewID, error) {
	return d.createView(desc, false)
}

// CreateUnorderedAccessView creates a read-write view.
func (d *Device) CreateUnorderedAccessView(desc *gpucore.ViewDesc) (gpucore.ViewID, error) {
	return d.createView(desc, true)
}

func (d *Device) createView(desc *gpucore.ViewDesc, writable bool) (gpucore.ViewID, error) {
	if desc == nil || (desc.Buffer == gpucore.InvalidID) == (desc.Texture == gpucore.InvalidID) {
		return gpucore.InvalidID, fmt.Errorf("create view: exactly one of buffer and texture: %w", gpucore.ErrUnsupported)
	}

	v := &view{label: desc.Label, writable: writable}

	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Buffer != gpucore.InvalidID {
		b, ok := d.buffers[desc.Buffer]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("create view %q: buffer %d: %w", desc.Label, desc.Buffer, gpucore.ErrInvalidID)
		}
		if !b.desc.Usage.Has(gpucore.BufferUsageStructured) {
			return gpucore.InvalidID, fmt.Errorf("create view %q: buffer is not structured: %w", desc.Label, gpucore.ErrUnsupported)
		}
		v.buffer = b
	} else {
		t, ok := d.textures[desc.Texture]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("create view %q: texture %d: %w", desc.Label, desc.Texture, gpucore.ErrInvalidID)
		}
		v.texture = t
	}

	id := gpucore.ViewID(d.newID())
	d.views[id] = v
	return id, nil
}

// DestroyView releases a view.
func (d *Device) DestroyView(id gpucore.ViewID) {
	d.mu.Lock()
	delete(d.views, id)
	d.mu.Unlock()
}

// CreateSampler creates a sampler state.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("create sampler: %w", gpucore.ErrUnsupported)
	}
	id := gpucore.SamplerID(d.newID())
	d.mu.Lock()
	d.samplers[id] = *desc
	d.mu.Unlock()
	return id, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	delete(d.samplers, id)
	d.mu.Unlock()
}
