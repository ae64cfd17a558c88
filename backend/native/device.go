//go:build !nogpu

package native

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan backend
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/dof/gpucore"
)

// maxVersions bounds how many copies of a dynamic constant buffer exist
// between flushes. Reaching it flushes recorded work.
const maxVersions = 8

// Device implements gpucore.Device on a hal device.
//
// Thread Safety: resource creation and destruction are safe for concurrent
// use. The immediate context returned by Context is not.
type Device struct {
	mu   sync.RWMutex
	opts options

	instance hal.Instance // nil for borrowed devices
	device   hal.Device
	queue    hal.Queue
	external bool
	limits   gputypes.Limits
	info     gputypes.AdapterInfo

	nextID atomic.Uint64
	serial atomic.Uint64

	buffers  map[gpucore.BufferID]*buffer
	textures map[gpucore.TextureID]*texture
	views    map[gpucore.ViewID]*view
	samplers map[gpucore.SamplerID]hal.Sampler
	kernels  map[gpucore.KernelID]*kernel

	// bindGroups and everything below are guarded by mu.
	bindGroups *lru.Cache[bindKey, hal.BindGroup]
	retired    []hal.BindGroup
	graveyard  []func()

	ctx    *Context
	closed bool
}

var _ gpucore.Device = (*Device)(nil)

// New opens the first suitable Vulkan adapter. Discrete GPUs are preferred
// over integrated ones, and both over anything else.
func New(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("vulkan backend: %w", ErrNoAdapter)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Backends: gputypes.BackendsVulkan})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	exposed, ok := pickAdapter(instance.EnumerateAdapters(nil), o.adapterName)
	if !ok {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	open, err := exposed.Adapter.Open(0, exposed.Capabilities.Limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open adapter %q: %w", exposed.Info.Name, err)
	}

	d := newDevice(open.Device, open.Queue, o)
	d.instance = instance
	if o.limits == nil && exposed.Capabilities.Limits.MaxBufferSize > 0 {
		d.limits = exposed.Capabilities.Limits
	}
	d.info = exposed.Info
	slogger().Info("native: adapter selected",
		"name", exposed.Info.Name,
		"type", exposed.Info.DeviceType,
		"driver", exposed.Info.Driver)
	return d, nil
}

// pickAdapter ranks adapters by type. A non-empty name wins over ranking
// when some adapter matches it.
func pickAdapter(adapters []hal.ExposedAdapter, name string) (hal.ExposedAdapter, bool) {
	if len(adapters) == 0 {
		return hal.ExposedAdapter{}, false
	}
	if name != "" {
		for _, a := range adapters {
			if strings.Contains(strings.ToLower(a.Info.Name), strings.ToLower(name)) {
				return a, true
			}
		}
	}
	best, bestRank := 0, -1
	for i, a := range adapters {
		if r := adapterRank(a.Info.DeviceType); r > bestRank {
			best, bestRank = i, r
		}
	}
	return adapters[best], true
}

func adapterRank(t gputypes.DeviceType) int {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return 3
	case gputypes.DeviceTypeIntegratedGPU:
		return 2
	case gputypes.DeviceTypeVirtualGPU:
		return 1
	default:
		return 0
	}
}

// NewFromHAL wraps a hal device and queue owned by the caller. Close
// releases the resources created through the Device but not the hal device.
func NewFromHAL(device hal.Device, queue hal.Queue, opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := newDevice(device, queue, o)
	d.external = true
	return d
}

// NewFromProvider wraps the hal device of a gpucontext.DeviceProvider, such
// as a gogpu application. The provider keeps ownership of the device.
//
// The provider must either implement HalDevice() any and HalQueue() any, or
// return hal objects from Device and Queue.
func NewFromProvider(p gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	if p == nil {
		return nil, ErrNotHAL
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}

	var devAny, queueAny any
	if hp, ok := p.(halProvider); ok {
		devAny, queueAny = hp.HalDevice(), hp.HalQueue()
	} else {
		devAny, queueAny = p.Device(), p.Queue()
	}
	device, ok := devAny.(hal.Device)
	if !ok {
		return nil, fmt.Errorf("device %T: %w", devAny, ErrNotHAL)
	}
	queue, ok := queueAny.(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("queue %T: %w", queueAny, ErrNotHAL)
	}

	d := NewFromHAL(device, queue, opts...)
	info := p.AdapterInfo()
	d.info.Name = info.Name
	slogger().Info("native: using provider device", "name", info.Name, "type", info.Type)
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, o options) *Device {
	d := &Device{
		opts:     o,
		device:   device,
		queue:    queue,
		limits:   gputypes.DefaultLimits(),
		buffers:  make(map[gpucore.BufferID]*buffer),
		textures: make(map[gpucore.TextureID]*texture),
		views:    make(map[gpucore.ViewID]*view),
		samplers: make(map[gpucore.SamplerID]hal.Sampler),
		kernels:  make(map[gpucore.KernelID]*kernel),
	}
	if o.limits != nil {
		d.limits = *o.limits
	}
	// The callback runs synchronously inside cache calls, all of which are
	// made with mu held.
	d.bindGroups, _ = lru.NewWithEvict(o.bindGroupSize, func(_ bindKey, g hal.BindGroup) {
		d.retired = append(d.retired, g)
	})
	d.nextID.Store(1)
	d.ctx = &Context{dev: d}
	return d
}

// Context returns the device's immediate context.
func (d *Device) Context() *Context {
	return d.ctx
}

// AdapterName returns the name of the adapter, if known.
func (d *Device) AdapterName() string {
	return d.info.Name
}

// Limits returns the limits the device was opened with.
func (d *Device) Limits() gputypes.Limits {
	return d.limits
}

// LiveResources returns the number of resources that have not been
// destroyed.
func (d *Device) LiveResources() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.buffers) + len(d.textures) + len(d.views) + len(d.samplers) + len(d.kernels)
}

// BindGroups returns the number of cached bind groups.
func (d *Device) BindGroups() int {
	return d.bindGroups.Len()
}

// Close waits for recorded work, destroys every remaining resource and,
// for devices opened by New, the hal device itself. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	err := d.ctx.Flush()
	if err != nil {
		d.ctx.discard()
	}

	d.mu.Lock()
	d.closed = true
	d.bindGroups.Purge()
	for id, k := range d.kernels {
		d.destroyKernel(k)
		delete(d.kernels, id)
	}
	for id, b := range d.buffers {
		d.destroyVersions(b)
		delete(d.buffers, id)
	}
	for id, t := range d.textures {
		d.device.DestroyBuffer(t.buf)
		delete(d.textures, id)
	}
	for id, s := range d.samplers {
		d.device.DestroySampler(s)
		delete(d.samplers, id)
	}
	clear(d.views)
	d.collectLocked()
	d.mu.Unlock()

	d.ctx.release()
	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	return err
}

func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

func (d *Device) newSerial() uint64 {
	return d.serial.Add(1)
}

// retire destroys a hal object once no recorded work can reference it.
// Called with mu held.
func (d *Device) retire(fn func()) {
	if d.ctx.recording.Load() {
		d.graveyard = append(d.graveyard, fn)
		return
	}
	fn()
}

// collectLocked frees objects retired while work was in flight. Called
// with mu held after recorded work has completed.
func (d *Device) collectLocked() {
	for _, g := range d.retired {
		d.device.DestroyBindGroup(g)
	}
	d.retired = d.retired[:0]
	for _, fn := range d.graveyard {
		fn()
	}
	d.graveyard = d.graveyard[:0]
	for _, b := range d.buffers {
		for _, v := range b.versions {
			v.pending = false
		}
	}
}

// purgeBindGroups drops cached bind groups referencing id. Called with mu
// held.
func (d *Device) purgeBindGroups(id uint64) {
	for _, key := range d.bindGroups.Keys() {
		if key.references(id) {
			d.bindGroups.Remove(key)
		}
	}
}

// storageLimit is the largest buffer a kernel can bind.
func (d *Device) storageLimit() uint64 {
	return min(d.limits.MaxBufferSize, d.limits.MaxStorageBufferBindingSize)
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("create buffer: %w", gpucore.ErrUnsupported)
	}
	structured := desc.Usage.Has(gpucore.BufferUsageStructured)
	if structured {
		if desc.Stride == 0 || desc.Stride%4 != 0 || desc.Size%uint64(desc.Stride) != 0 {
			return gpucore.InvalidID, fmt.Errorf("create buffer %q: stride %d, size %d: %w",
				desc.Label, desc.Stride, desc.Size, gpucore.ErrUnsupported)
		}
	}
	if desc.Size > d.storageLimit() {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q (%d bytes): %w", desc.Label, desc.Size, gpucore.ErrOutOfMemory)
	}

	b := &buffer{desc: *desc}
	if desc.Usage.Has(gpucore.BufferUsageDynamic) {
		b.shadow = make([]byte, desc.Size)
	}
	v, err := d.newVersion(b)
	if err != nil {
		return gpucore.InvalidID, err
	}
	b.versions = append(b.versions, v)

	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = b
	d.mu.Unlock()
	return id, nil
}

// newVersion allocates one hal buffer for b.
func (d *Device) newVersion(b *buffer) (*version, error) {
	usage := gputypes.BufferUsageCopyDst
	switch {
	case b.desc.Usage.Has(gpucore.BufferUsageStructured):
		usage |= gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc
	case b.desc.Usage.Has(gpucore.BufferUsageConstant):
		usage |= gputypes.BufferUsageUniform
	default:
		usage |= gputypes.BufferUsageStorage
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.desc.Label,
		Size:  alignSize(b.desc.Size),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", b.desc.Label, err)
	}
	return &version{buf: buf, serial: d.newSerial()}, nil
}

func (d *Device) destroyVersions(b *buffer) {
	for _, v := range b.versions {
		d.device.DestroyBuffer(v.buf)
	}
	b.versions = nil
	b.shadow = nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return
	}
	delete(d.buffers, id)
	d.purgeBindGroups(uint64(id))
	for vid, v := range d.views {
		if v.buffer == b {
			d.purgeBindGroups(uint64(vid))
		}
	}
	d.retire(func() { d.destroyVersions(b) })
}

// CreateTexture allocates a zeroed texture.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width <= 0 || desc.Height <= 0 || desc.Format.BytesPerPixel() == 0 {
		return gpucore.InvalidID, fmt.Errorf("create texture: %w", gpucore.ErrUnsupported)
	}
	size := uint64(desc.Width) * uint64(desc.Height) * uint64(desc.Format.BytesPerPixel())
	if size > d.storageLimit() {
		return gpucore.InvalidID, fmt.Errorf("create texture %q (%d bytes): %w", desc.Label, size, gpucore.ErrOutOfMemory)
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}

	t := &texture{desc: *desc, buf: buf, size: size, serial: d.newSerial()}
	id := gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = t
	d.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return
	}
	delete(d.textures, id)
	for vid, v := range d.views {
		if v.texture == t {
			d.purgeBindGroups(uint64(vid))
		}
	}
	d.retire(func() { d.device.DestroyBuffer(t.buf) })
}

// WriteTexture replaces the contents of a texture. Recorded work is
// submitted first so it sees the previous contents.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte) error {
	d.mu.RLock()
	t, ok := d.textures[id]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("write texture %d: %w", id, gpucore.ErrInvalidID)
	}
	if uint64(len(data)) != t.size {
		return fmt.Errorf("write texture %d: got %d bytes, want %d: %w", id, len(data), t.size, gpucore.ErrSizeMismatch)
	}
	if err := d.ctx.Flush(); err != nil {
		return fmt.Errorf("write texture %d: %w", id, err)
	}
	if err := d.queue.WriteBuffer(t.buf, 0, data); err != nil {
		return fmt.Errorf("write texture %d: %w", id, err)
	}
	return nil
}

// ReadTexture copies a texture into a staging buffer, waits for all
// recorded work and returns the staged bytes.
func (d *Device) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	d.mu.RLock()
	t, ok := d.textures[id]
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ErrDeviceClosed
	}
	if !ok {
		return nil, fmt.Errorf("read texture %d: %w", id, gpucore.ErrInvalidID)
	}

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "dof_readback",
		Size:  t.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("read texture %d: staging: %w", id, err)
	}
	defer d.device.DestroyBuffer(staging)

	if err := d.ctx.copyBuffer(t.buf, staging, t.size); err != nil {
		return nil, fmt.Errorf("read texture %d: %w", id, err)
	}
	if err := d.ctx.Flush(); err != nil {
		return nil, fmt.Errorf("read texture %d: %w", id, err)
	}

	m, err := d.device.MapBuffer(staging, 0, t.size)
	if err != nil {
		return nil, fmt.Errorf("read texture %d: map: %w", id, err)
	}
	out := make([]byte, t.size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), t.size))
	if err := d.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("read texture %d: unmap: %w", id, err)
	}
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
	if _, ok := d.views[id]; ok {
		delete(d.views, id)
		d.purgeBindGroups(uint64(id))
	}
	d.mu.Unlock()
}

// CreateSampler creates a hal sampler. Kernels do their own filtering, so
// samplers are validated and kept but never bound.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("create sampler: %w", gpucore.ErrUnsupported)
	}
	s, err := d.device.CreateSampler(samplerDescriptor(desc))
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create sampler %q: %w", desc.Label, err)
	}
	id := gpucore.SamplerID(d.newID())
	d.mu.Lock()
	d.samplers[id] = s
	d.mu.Unlock()
	return id, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.samplers[id]
	if !ok {
		return
	}
	delete(d.samplers, id)
	d.retire(func() { d.device.DestroySampler(s) })
}

// alignSize rounds a uniform buffer size up to 16 bytes.
func alignSize(size uint64) uint64 {
	return (size + 15) &^ 15
}
