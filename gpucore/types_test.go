package gpucore

import "testing"

func TestBindingFor(t *testing.T) {
	tests := []struct {
		kind SlotKind
		slot int
		want int
	}{
		{SlotConstantBuffer, 0, 0},
		{SlotSampler, 0, 1},
		{SlotShaderResource, 0, 2},
		{SlotShaderResource, 1, 3},
		{SlotUnorderedAccess, 0, 4},
		{SlotUnorderedAccess, 1, 5},
		{SlotUnorderedAccess, 2, 6},
		{SlotConstantBuffer, 1, -1},
		{SlotShaderResource, 2, -1},
		{SlotUnorderedAccess, 3, -1},
		{SlotUnorderedAccess, -1, -1},
		{SlotKind(99), 0, -1},
	}
	for _, tt := range tests {
		if got := BindingFor(tt.kind, tt.slot); got != tt.want {
			t.Errorf("BindingFor(%d, %d) = %d, want %d", tt.kind, tt.slot, got, tt.want)
		}
	}
	if BindingCount != 7 {
		t.Errorf("BindingCount = %d, want 7", BindingCount)
	}
}

func TestSlotForInvertsBindingFor(t *testing.T) {
	for binding := range BindingCount {
		kind, slot, ok := SlotFor(binding)
		if !ok {
			t.Fatalf("SlotFor(%d) not ok", binding)
		}
		if got := BindingFor(kind, slot); got != binding {
			t.Errorf("BindingFor(SlotFor(%d)) = %d", binding, got)
		}
	}
	for _, binding := range []int{-1, BindingCount, 100} {
		if _, _, ok := SlotFor(binding); ok {
			t.Errorf("SlotFor(%d) ok, want false", binding)
		}
	}
}

func TestTextureFormat(t *testing.T) {
	tests := []struct {
		format   TextureFormat
		bpp      int
		channels int
		name     string
	}{
		{TextureFormatRGBA32Float, 16, 4, "rgba32float"},
		{TextureFormatR32Float, 4, 1, "r32float"},
		{TextureFormat(0), 0, 0, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.format.BytesPerPixel(); got != tt.bpp {
			t.Errorf("%v.BytesPerPixel() = %d, want %d", tt.format, got, tt.bpp)
		}
		if got := tt.format.Channels(); got != tt.channels {
			t.Errorf("%v.Channels() = %d, want %d", tt.format, got, tt.channels)
		}
		if got := tt.format.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
	}
}

func TestBufferUsageHas(t *testing.T) {
	u := BufferUsageConstant | BufferUsageDynamic
	if !u.Has(BufferUsageConstant) || !u.Has(BufferUsageDynamic) {
		t.Error("Has should report set flags")
	}
	if u.Has(BufferUsageStructured) {
		t.Error("Has should not report unset flags")
	}
	if u.Has(BufferUsageConstant | BufferUsageStructured) {
		t.Error("Has requires every flag of a combined mask")
	}
}
