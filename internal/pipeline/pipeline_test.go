package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/kernels"
)

// mockDevice records object lifetimes.
type mockDevice struct {
	next      uint64
	live      map[uint64]string
	maxBuffer uint64
	failAt    string

	buffers map[gpucore.BufferID]*gpucore.BufferDesc
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		live:      make(map[uint64]string),
		buffers:   make(map[gpucore.BufferID]*gpucore.BufferDesc),
		maxBuffer: 1 << 40,
	}
}

func (d *mockDevice) alloc(kind string) (uint64, error) {
	if kind == d.failAt {
		return 0, gpucore.ErrOutOfMemory
	}
	d.next++
	d.live[d.next] = kind
	return d.next, nil
}

func (d *mockDevice) free(id uint64) {
	delete(d.live, id)
}

func (d *mockDevice) CreateKernel(desc *gpucore.KernelDesc) (gpucore.KernelID, error) {
	id, err := d.alloc("kernel")
	return gpucore.KernelID(id), err
}

func (d *mockDevice) DestroyKernel(id gpucore.KernelID) { d.free(uint64(id)) }

func (d *mockDevice) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size > d.maxBuffer {
		return gpucore.InvalidID, gpucore.ErrOutOfMemory
	}
	id, err := d.alloc("buffer:" + desc.Label)
	if err == nil {
		d.buffers[gpucore.BufferID(id)] = desc
	}
	return gpucore.BufferID(id), err
}

func (d *mockDevice) DestroyBuffer(id gpucore.BufferID) { d.free(uint64(id)) }

func (d *mockDevice) CreateTexture(*gpucore.TextureDesc) (gpucore.TextureID, error) {
	id, err := d.alloc("texture")
	return gpucore.TextureID(id), err
}

func (d *mockDevice) DestroyTexture(id gpucore.TextureID) { d.free(uint64(id)) }

func (d *mockDevice) WriteTexture(gpucore.TextureID, []byte) error { return nil }

func (d *mockDevice) ReadTexture(gpucore.TextureID) ([]byte, error) { return nil, nil }

func (d *mockDevice) CreateShaderResourceView(*gpucore.ViewDesc) (gpucore.ViewID, error) {
	id, err := d.alloc("srv")
	return gpucore.ViewID(id), err
}

func (d *mockDevice) CreateUnorderedAccessView(*gpucore.ViewDesc) (gpucore.ViewID, error) {
	id, err := d.alloc("uav")
	return gpucore.ViewID(id), err
}

func (d *mockDevice) DestroyView(id gpucore.ViewID) { d.free(uint64(id)) }

func (d *mockDevice) CreateSampler(*gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	id, err := d.alloc("sampler")
	return gpucore.SamplerID(id), err
}

func (d *mockDevice) DestroySampler(id gpucore.SamplerID) { d.free(uint64(id)) }

// mockContext records every call as a short string.
type mockContext struct {
	calls   []string
	params  []kernels.Params
	data    []byte
	mapFail bool
}

func (c *mockContext) record(format string, args ...any) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *mockContext) SetKernel(id gpucore.KernelID) { c.record("kernel %d", id) }

func (c *mockContext) SetSamplers(start int, s []gpucore.SamplerID) {
	c.record("samplers %d %v", start, s)
}

func (c *mockContext) SetConstantBuffers(start int, b []gpucore.BufferID) {
	c.record("constants %d %v", start, b)
}

func (c *mockContext) SetShaderResources(start int, v []gpucore.ViewID) {
	c.record("srv %d %v", start, v)
}

func (c *mockContext) SetUnorderedAccessViews(start int, v []gpucore.ViewID) {
	c.record("uav %d %v", start, v)
}

func (c *mockContext) ClearUnorderedAccessViewUint(v gpucore.ViewID, values [4]uint32) {
	c.record("clear %d %v", v, values)
}

func (c *mockContext) Dispatch(x, y, z uint32) { c.record("dispatch %d %d %d", x, y, z) }

func (c *mockContext) Map(gpucore.BufferID, gpucore.MapMode) []byte {
	c.record("map")
	if c.mapFail {
		return nil
	}
	c.data = make([]byte, kernels.ParamsSize)
	return c.data
}

func (c *mockContext) Unmap(gpucore.BufferID) {
	c.record("unmap")
	c.params = append(c.params, *kernels.ParamsFrom(c.data))
}

func (c *mockContext) Flush() error { return nil }

func (c *mockContext) filter(prefix string) []string {
	var out []string
	for _, call := range c.calls {
		if strings.HasPrefix(call, prefix) {
			out = append(out, call)
		}
	}
	return out
}

func newResized(t *testing.T, w, h, r int) (*State, *mockDevice) {
	t.Helper()
	dev := newMockDevice()
	var s State
	if err := s.Initialize(dev); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := s.Resize(w, h, r); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	return &s, dev
}

func TestInitializeNilDevice(t *testing.T) {
	var s State
	if err := s.Initialize(nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Initialize(nil) = %v, want ErrNoDevice", err)
	}
	if s.Initialized() {
		t.Error("state initialized without a device")
	}
}

func TestInitializeCreatesObjects(t *testing.T) {
	dev := newMockDevice()
	var s State
	if err := s.Initialize(dev); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// Six kernels, one constant buffer, one sampler.
	if got := len(dev.live); got != 8 {
		t.Errorf("live objects = %d, want 8", got)
	}
	if got := s.LiveHandles(); got != 8 {
		t.Errorf("LiveHandles = %d, want 8", got)
	}
	cb := dev.buffers[s.constants]
	if cb == nil || cb.Size != uint64(kernels.ParamsSize) || !cb.Usage.Has(gpucore.BufferUsageDynamic) {
		t.Errorf("constant buffer desc = %+v", cb)
	}
}

func TestInitializeFailureReleases(t *testing.T) {
	tests := []string{"kernel", "buffer:dof_params", "sampler"}
	for _, failAt := range tests {
		t.Run(failAt, func(t *testing.T) {
			dev := newMockDevice()
			dev.failAt = failAt
			var s State
			if err := s.Initialize(dev); !errors.Is(err, gpucore.ErrOutOfMemory) {
				t.Fatalf("Initialize = %v, want ErrOutOfMemory", err)
			}
			if len(dev.live) != 0 {
				t.Errorf("leaked %d objects: %v", len(dev.live), dev.live)
			}
			if s.Initialized() {
				t.Error("state initialized after failure")
			}
		})
	}
}

func TestReinitializeReleasesPrevious(t *testing.T) {
	s, dev := newResized(t, 64, 64, 4)
	if err := s.Initialize(dev); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if got := len(dev.live); got != 8 {
		t.Errorf("live objects after reinitialize = %d, want 8", got)
	}
	if s.Resized() {
		t.Error("buffers survived reinitialize")
	}
}

func TestResizeLimits(t *testing.T) {
	tests := []struct {
		name    string
		w, h, r int
		wantErr bool
	}{
		{"zero", 0, 0, 0, false},
		{"max screen", MaxScreenSize, 1, 0, false},
		{"max radius", 8, 8, MaxBlurRadius, false},
		{"width over", MaxScreenSize + 1, 1, 0, true},
		{"height over", 1, MaxScreenSize + 1, 0, true},
		{"radius over", 8, 8, MaxBlurRadius + 1, true},
		{"negative width", -1, 8, 0, true},
		{"negative height", 8, -1, 0, true},
		{"negative radius", 8, 8, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newMockDevice()
			var s State
			if err := s.Initialize(dev); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			err := s.Resize(tt.w, tt.h, tt.r)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParams) {
					t.Errorf("Resize = %v, want ErrInvalidParams", err)
				}
				if s.Resized() {
					t.Error("buffers allocated for invalid parameters")
				}
				return
			}
			if err != nil {
				t.Errorf("Resize = %v", err)
			}
		})
	}
}

func TestResizeInvalidKeepsBuffers(t *testing.T) {
	s, _ := newResized(t, 32, 32, 4)
	accum := s.accum
	if err := s.Resize(32, 32, MaxBlurRadius+1); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("Resize = %v, want ErrInvalidParams", err)
	}
	if s.accum != accum || !s.Resized() {
		t.Error("invalid resize touched existing buffers")
	}
}

func TestResizeBeforeInitialize(t *testing.T) {
	var s State
	if err := s.Resize(16, 16, 2); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Resize = %v, want ErrNotInitialized", err)
	}
}

func TestResizeGeometry(t *testing.T) {
	s, dev := newResized(t, 256, 256, 8)
	if got := s.Padding(); got != 10 {
		t.Errorf("Padding = %d, want 10", got)
	}
	bw, bh := s.BufferSize()
	if bw != 276 || bh != 276 {
		t.Errorf("BufferSize = %dx%d, want 276x276", bw, bh)
	}
	want := uint64(276 * 276 * 16)
	for _, id := range []gpucore.BufferID{s.accum, s.transposed} {
		if desc := dev.buffers[id]; desc == nil || desc.Size != want || desc.Stride != 16 {
			t.Errorf("buffer %d desc = %+v, want size %d stride 16", id, desc, want)
		}
	}
}

func TestResizeReplacesBuffers(t *testing.T) {
	s, dev := newResized(t, 64, 64, 4)
	before := len(dev.live)
	for range 3 {
		if err := s.Resize(128, 32, 8); err != nil {
			t.Fatalf("Resize: %v", err)
		}
	}
	if got := len(dev.live); got != before {
		t.Errorf("live objects = %d, want %d", got, before)
	}
}

func TestResizeAllocationFailure(t *testing.T) {
	s, dev := newResized(t, 64, 64, 4)
	dev.maxBuffer = 1024
	err := s.Resize(MaxScreenSize, MaxScreenSize, MaxBlurRadius)
	if !errors.Is(err, gpucore.ErrOutOfMemory) {
		t.Fatalf("Resize = %v, want ErrOutOfMemory", err)
	}
	if s.Resized() {
		t.Error("state resized after allocation failure")
	}
	if got := len(dev.live); got != 8 {
		t.Errorf("live objects = %d, want 8", got)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	s, dev := newResized(t, 64, 64, 4)
	s.Release()
	s.Release()
	if len(dev.live) != 0 {
		t.Errorf("leaked %d objects: %v", len(dev.live), dev.live)
	}
	if s.LiveHandles() != 0 || s.Initialized() || s.Resized() {
		t.Error("state not cleared by Release")
	}

	var zero State
	zero.Release()
}

func TestRenderSequence(t *testing.T) {
	s, _ := newResized(t, 100, 60, 6)
	ctx := &mockContext{}
	f := &Frame{Width: 100, Height: 60, ScaleFactor: 16, MaxBlurRadius: 6, Color: 101, CoC: 102, Result: 103}

	if err := s.Render(ctx, f, VariantFullRes); err != nil {
		t.Fatalf("Render: %v", err)
	}

	bw, bh := s.BufferSize() // 116 x 76
	want := []string{
		fmt.Sprintf("samplers 0 [%d]", s.sampler),
		fmt.Sprintf("constants 0 [%d]", s.constants),
		"srv 0 [101 102]",
		fmt.Sprintf("clear %d [0 0 0 0]", s.accumView),
		"map", "unmap",
		fmt.Sprintf("uav 0 [%d 0 0]", s.accumView),
		fmt.Sprintf("kernel %d", s.kernels[kernelSetup]),
		"dispatch 13 8 1",
		"map", "unmap",
		fmt.Sprintf("uav 0 [%d %d 0]", s.accumView, s.transposedView),
		fmt.Sprintf("kernel %d", s.kernels[kernelDoubleIntegrate]),
		fmt.Sprintf("dispatch %d 1 1", (bw+63)/64),
		"map", "unmap",
		fmt.Sprintf("uav 0 [%d %d 0]", s.transposedView, s.accumView),
		fmt.Sprintf("dispatch %d 1 1", (bh+63)/64),
		"map", "unmap",
		fmt.Sprintf("uav 0 [%d 0 103]", s.accumView),
		fmt.Sprintf("kernel %d", s.kernels[kernelResolve]),
		"dispatch 13 8 1",
		"uav 0 [0 0 0]",
		"srv 0 [0 0]",
		"constants 0 [0]",
		"samplers 0 [0]",
	}
	if len(ctx.calls) != len(want) {
		t.Fatalf("recorded %d calls, want %d:\n%s", len(ctx.calls), len(want), strings.Join(ctx.calls, "\n"))
	}
	for i := range want {
		if ctx.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, ctx.calls[i], want[i])
		}
	}

	// The second integration runs on the transposed buffer.
	if len(ctx.params) != 4 {
		t.Fatalf("uploaded %d parameter blocks, want 4", len(ctx.params))
	}
	orient := [][2]int32{{116, 76}, {116, 76}, {76, 116}, {116, 76}}
	for i, p := range ctx.params {
		if p.BufferResolution != orient[i] {
			t.Errorf("upload %d BufferResolution = %v, want %v", i, p.BufferResolution, orient[i])
		}
	}
}

func TestRenderVariants(t *testing.T) {
	tests := []struct {
		variant   Variant
		setup     kernelSlot
		integrate kernelSlot
		grid      string
	}{
		{VariantFullRes, kernelSetup, kernelDoubleIntegrate, "dispatch 13 8 1"},
		{VariantQuarterRes, kernelSetupQuarter, kernelDoubleIntegrate, "dispatch 7 4 1"},
		{VariantBox, kernelSetupBox, kernelIntegrate, "dispatch 13 8 1"},
	}
	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			s, _ := newResized(t, 100, 60, 6)
			ctx := &mockContext{}
			f := &Frame{Width: 100, Height: 60, ScaleFactor: 16, MaxBlurRadius: 6}
			if err := s.Render(ctx, f, tt.variant); err != nil {
				t.Fatalf("Render: %v", err)
			}
			kernelsSet := ctx.filter("kernel ")
			wantKernels := []string{
				fmt.Sprintf("kernel %d", s.kernels[tt.setup]),
				fmt.Sprintf("kernel %d", s.kernels[tt.integrate]),
				fmt.Sprintf("kernel %d", s.kernels[kernelResolve]),
			}
			if strings.Join(kernelsSet, ",") != strings.Join(wantKernels, ",") {
				t.Errorf("kernels = %v, want %v", kernelsSet, wantKernels)
			}
			dispatches := ctx.filter("dispatch ")
			if len(dispatches) != 4 {
				t.Fatalf("dispatches = %d, want 4", len(dispatches))
			}
			if dispatches[0] != tt.grid {
				t.Errorf("setup grid = %q, want %q", dispatches[0], tt.grid)
			}
		})
	}
}

func TestRenderRejectsBeforeAnyCall(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *State
		frame Frame
		want  error
	}{
		{
			name:  "not initialized",
			setup: func(*testing.T) *State { return &State{} },
			frame: Frame{Width: 8, Height: 8},
			want:  ErrInvalidSurface,
		},
		{
			name: "not resized",
			setup: func(t *testing.T) *State {
				var s State
				if err := s.Initialize(newMockDevice()); err != nil {
					t.Fatal(err)
				}
				return &s
			},
			frame: Frame{Width: 8, Height: 8},
			want:  ErrInvalidSurface,
		},
		{
			name:  "larger than allocation",
			setup: func(t *testing.T) *State { s, _ := newResized(t, 64, 64, 4); return s },
			frame: Frame{Width: 128, Height: 64, MaxBlurRadius: 4},
			want:  ErrInvalidSurface,
		},
		{
			name:  "negative size",
			setup: func(t *testing.T) *State { s, _ := newResized(t, 64, 64, 4); return s },
			frame: Frame{Width: -1, Height: 64},
			want:  ErrInvalidSurface,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.setup(t)
			ctx := &mockContext{}
			if err := s.Render(ctx, &tt.frame, VariantFullRes); !errors.Is(err, tt.want) {
				t.Errorf("Render = %v, want %v", err, tt.want)
			}
			if len(ctx.calls) != 0 {
				t.Errorf("rejected render issued %d calls: %v", len(ctx.calls), ctx.calls)
			}
		})
	}
}

func TestRenderSmallerFrameFits(t *testing.T) {
	s, _ := newResized(t, 64, 64, 8)
	ctx := &mockContext{}
	f := &Frame{Width: 32, Height: 80, MaxBlurRadius: 2}
	if err := s.Render(ctx, f, VariantBox); err != nil {
		t.Errorf("Render = %v, want success for a frame within the allocated area", err)
	}
}

func TestRenderNilContext(t *testing.T) {
	s, _ := newResized(t, 8, 8, 1)
	if err := s.Render(nil, &Frame{Width: 8, Height: 8}, VariantFullRes); !errors.Is(err, ErrNoContext) {
		t.Errorf("Render = %v, want ErrNoContext", err)
	}
}

func TestRenderMapFailureDegrades(t *testing.T) {
	s, _ := newResized(t, 16, 16, 2)
	ctx := &mockContext{mapFail: true}
	if err := s.Render(ctx, &Frame{Width: 16, Height: 16, MaxBlurRadius: 2}, VariantFullRes); err != nil {
		t.Fatalf("Render = %v, want success", err)
	}
	if got := s.Degraded(); got != 4 {
		t.Errorf("Degraded = %d, want 4", got)
	}
	if got := len(ctx.filter("unmap")); got != 0 {
		t.Errorf("unmap called %d times after failed maps", got)
	}
	if got := len(ctx.filter("dispatch")); got != 4 {
		t.Errorf("dispatches = %d, want 4", got)
	}
}

func TestBuildParams(t *testing.T) {
	f := &Frame{Width: 200, Height: 100, ScaleFactor: 16}
	p := buildParams(f, 10, 220, 120)

	if p.SourceResolution != [2]int32{200, 100} {
		t.Errorf("SourceResolution = %v", p.SourceResolution)
	}
	if p.InvSourceResolution != [2]float32{1.0 / 200, 1.0 / 100} {
		t.Errorf("InvSourceResolution = %v", p.InvSourceResolution)
	}
	if p.BufferResolution != [2]int32{220, 120} {
		t.Errorf("BufferResolution = %v", p.BufferResolution)
	}
	if p.ScaleFactor != 65536 {
		t.Errorf("ScaleFactor = %v, want 65536", p.ScaleFactor)
	}
	if p.Padding != 10 {
		t.Errorf("Padding = %d, want 10", p.Padding)
	}

	var tentSum, boxSum int32
	for _, w := range p.Tent {
		tentSum += w[2]
	}
	for _, w := range p.Box {
		boxSum += w[2]
	}
	if tentSum != 0 || boxSum != 0 {
		t.Errorf("impulse weights sum to %d and %d, want 0", tentSum, boxSum)
	}
	if p.Tent[4] != [4]int32{0, 0, 4, 0} {
		t.Errorf("tent centre = %v", p.Tent[4])
	}
}

func TestBuildParamsZeroSize(t *testing.T) {
	p := buildParams(&Frame{}, 2, 4, 4)
	if p.InvSourceResolution != [2]float32{} {
		t.Errorf("InvSourceResolution = %v, want zero", p.InvSourceResolution)
	}
}

func TestVariantString(t *testing.T) {
	tests := []struct {
		v    Variant
		want string
	}{
		{VariantFullRes, "full-res"},
		{VariantQuarterRes, "quarter-res"},
		{VariantBox, "box"},
		{Variant(7), "Variant(7)"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("Variant(%d).String() = %q, want %q", int(tt.v), got, tt.want)
		}
	}
}

func TestDivRoundUp(t *testing.T) {
	tests := []struct{ n, d, want uint32 }{
		{0, 8, 0}, {1, 8, 1}, {8, 8, 1}, {9, 8, 2}, {276, 64, 5},
	}
	for _, tt := range tests {
		if got := divRoundUp(tt.n, tt.d); got != tt.want {
			t.Errorf("divRoundUp(%d, %d) = %d, want %d", tt.n, tt.d, got, tt.want)
		}
	}
}
