//go:build !nogpu

package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dof/gpucore"
)

func samplerDescriptor(desc *gpucore.SamplerDesc) *hal.SamplerDescriptor {
	return &hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: convertAddressMode(desc.AddressU),
		AddressModeV: convertAddressMode(desc.AddressV),
		AddressModeW: convertAddressMode(desc.AddressW),
		MagFilter:    convertFilterMode(desc.MagFilter),
		MinFilter:    convertFilterMode(desc.MinFilter),
		MipmapFilter: convertFilterMode(desc.MipFilter),
		LodMaxClamp:  32,
		Compare:      gputypes.CompareFunctionUndefined, // filtering samplers carry no comparison
		Anisotropy:   1,
	}
}

func convertAddressMode(m gpucore.AddressMode) gputypes.AddressMode {
	switch m {
	case gpucore.AddressModeWrap:
		return gputypes.AddressModeRepeat
	case gpucore.AddressModeMirror:
		return gputypes.AddressModeMirrorRepeat
	default:
		return gputypes.AddressModeClampToEdge
	}
}

func convertFilterMode(m gpucore.FilterMode) gputypes.FilterMode {
	if m == gpucore.FilterModeLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}
