package gpucore

import "errors"

// Resource IDs
//
// These opaque IDs represent device resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// TextureID is an opaque handle to a 2D texture.
type TextureID uint64

// ViewID is an opaque handle to a shader resource or unordered access view.
type ViewID uint64

// SamplerID is an opaque handle to a sampler state.
type SamplerID uint64

// KernelID is an opaque handle to a compiled compute kernel.
type KernelID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Errors returned by device implementations.
var (
	// ErrInvalidID is returned when an operation references an unknown or
	// already destroyed resource.
	ErrInvalidID = errors.New("gpucore: invalid resource id")

	// ErrUnsupported is returned for descriptors the device cannot honor.
	ErrUnsupported = errors.New("gpucore: unsupported descriptor")

	// ErrSizeMismatch is returned when uploaded data does not match the
	// size of the destination resource.
	ErrSizeMismatch = errors.New("gpucore: data size mismatch")

	// ErrOutOfMemory is returned when an allocation exceeds device limits.
	ErrOutOfMemory = errors.New("gpucore: out of memory")
)

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageConstant marks a buffer bindable to a constant buffer slot.
	BufferUsageConstant BufferUsage = 1 << 0

	// BufferUsageStructured marks a buffer of fixed-stride elements that can
	// be viewed by shader resource and unordered access views.
	BufferUsageStructured BufferUsage = 1 << 1

	// BufferUsageDynamic marks a buffer that the CPU rewrites through
	// Context.Map with write-discard semantics.
	BufferUsageDynamic BufferUsage = 1 << 2
)

// Has reports whether all bits of flag are set.
func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes. For structured buffers it must equal
	// Stride * element count.
	Size uint64

	// Stride is the element size in bytes for structured buffers.
	Stride uint32

	// Usage is a bitmask of BufferUsage flags.
	Usage BufferUsage
}

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA32Float is four 32-bit float channels.
	TextureFormatRGBA32Float TextureFormat = iota + 1

	// TextureFormatR32Float is a single 32-bit float channel.
	TextureFormatR32Float
)

// BytesPerPixel returns the size of one texel, or 0 for unknown formats.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatRGBA32Float:
		return 16
	case TextureFormatR32Float:
		return 4
	default:
		return 0
	}
}

// Channels returns the number of channels, or 0 for unknown formats.
func (f TextureFormat) Channels() int {
	return f.BytesPerPixel() / 4
}

// String returns the format name.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA32Float:
		return "rgba32float"
	case TextureFormatR32Float:
		return "r32float"
	default:
		return "unknown"
	}
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Label  string
	Width  int
	Height int
	Format TextureFormat
}

// ViewDesc describes a view onto either a buffer or a texture.
// Exactly one of Buffer and Texture must be set.
type ViewDesc struct {
	Label   string
	Buffer  BufferID
	Texture TextureID
}

// AddressMode controls how out-of-range coordinates are resolved.
type AddressMode uint32

// Address modes.
const (
	AddressModeClamp AddressMode = iota
	AddressModeWrap
	AddressModeMirror
)

// FilterMode selects texel filtering.
type FilterMode uint32

// Filter modes.
const (
	FilterModePoint FilterMode = iota
	FilterModeLinear
)

// CompareFunc is the comparison used by comparison samplers.
type CompareFunc uint32

// Compare functions.
const (
	CompareNever CompareFunc = iota
	CompareAlways
)

// SamplerDesc describes a sampler state.
type SamplerDesc struct {
	Label     string
	AddressU  AddressMode
	AddressV  AddressMode
	AddressW  AddressMode
	MinFilter FilterMode
	MagFilter FilterMode
	MipFilter FilterMode
	Compare   CompareFunc
}

// KernelDesc describes a compute kernel.
//
// Devices pick the representation they can consume: WGSL source, SPIR-V
// words compiled from it, or the entry point name for devices that carry
// built-in kernel bodies.
type KernelDesc struct {
	Label      string
	EntryPoint string
	WGSL       string
	SPIRV      []uint32

	// Bindings lists the bindings the kernel declares, using the indices
	// of the binding convention.
	Bindings []KernelBinding
}

// BindingType is the kind of resource a kernel binding expects.
type BindingType uint32

// Binding types.
const (
	BindingConstantBuffer BindingType = iota
	BindingSampler
	BindingReadOnlyStorage
	BindingStorage
)

// KernelBinding describes one binding declared by a kernel.
type KernelBinding struct {
	Binding uint32
	Type    BindingType
}

// MapMode selects buffer mapping semantics.
type MapMode uint32

// Map modes.
const (
	// MapWriteDiscard returns fresh storage whose previous contents are
	// undefined. Work already recorded keeps seeing the old contents.
	MapWriteDiscard MapMode = iota + 1
)

// Slot kinds of the binding convention.
type SlotKind uint32

// Slot kinds.
const (
	SlotConstantBuffer SlotKind = iota
	SlotSampler
	SlotShaderResource
	SlotUnorderedAccess
)

// Slot counts of the binding convention.
const (
	MaxConstantBuffers  = 1
	MaxSamplers         = 1
	MaxShaderResources  = 2
	MaxUnorderedAccess  = 3
	BindingCount        = MaxConstantBuffers + MaxSamplers + MaxShaderResources + MaxUnorderedAccess
	bindingSampler      = MaxConstantBuffers
	bindingShaderRes    = bindingSampler + MaxSamplers
	bindingUnorderedAcc = bindingShaderRes + MaxShaderResources
)

// BindingFor returns the kernel binding index of a slot, or -1 when the
// slot is out of range.
func BindingFor(kind SlotKind, slot int) int {
	switch kind {
	case SlotConstantBuffer:
		if slot >= 0 && slot < MaxConstantBuffers {
			return slot
		}
	case SlotSampler:
		if slot >= 0 && slot < MaxSamplers {
			return bindingSampler + slot
		}
	case SlotShaderResource:
		if slot >= 0 && slot < MaxShaderResources {
			return bindingShaderRes + slot
		}
	case SlotUnorderedAccess:
		if slot >= 0 && slot < MaxUnorderedAccess {
			return bindingUnorderedAcc + slot
		}
	}
	return -1
}

// SlotFor is the inverse of BindingFor. It reports false for bindings
// outside the convention.
func SlotFor(binding int) (kind SlotKind, slot int, ok bool) {
	switch {
	case binding < 0 || binding >= BindingCount:
		return 0, 0, false
	case binding >= bindingUnorderedAcc:
		return SlotUnorderedAccess, binding - bindingUnorderedAcc, true
	case binding >= bindingShaderRes:
		return SlotShaderResource, binding - bindingShaderRes, true
	case binding >= bindingSampler:
		return SlotSampler, binding - bindingSampler, true
	default:
		return SlotConstantBuffer, binding, true
	}
}
