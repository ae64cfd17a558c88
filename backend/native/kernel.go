//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/kernels"
)

// kernel is a compiled compute pipeline with its single bind group layout.
type kernel struct {
	label    string
	bindings []gpucore.KernelBinding

	module   hal.ShaderModule
	layout   hal.BindGroupLayout
	pipeline hal.PipelineLayout
	compute  hal.ComputePipeline
}

// CreateKernel builds a compute pipeline. SPIR-V in the descriptor is used
// as is; otherwise the WGSL source is compiled with naga.
func (d *Device) CreateKernel(desc *gpucore.KernelDesc) (gpucore.KernelID, error) {
	if desc == nil || desc.EntryPoint == "" {
		return gpucore.InvalidID, fmt.Errorf("create kernel: %w", gpucore.ErrUnsupported)
	}
	words := desc.SPIRV
	if len(words) == 0 {
		if desc.WGSL == "" {
			return gpucore.InvalidID, fmt.Errorf("create kernel %q: no source: %w", desc.Label, gpucore.ErrUnsupported)
		}
		var err error
		if words, err = kernels.SPIRV(desc.WGSL); err != nil {
			return gpucore.InvalidID, fmt.Errorf("create kernel %q: %w", desc.Label, err)
		}
	}

	k := &kernel{label: desc.Label, bindings: desc.Bindings}
	if err := d.buildKernel(k, desc.EntryPoint, words); err != nil {
		d.destroyKernel(k)
		return gpucore.InvalidID, fmt.Errorf("create kernel %q: %w", desc.Label, err)
	}

	id := gpucore.KernelID(d.newID())
	d.mu.Lock()
	d.kernels[id] = k
	d.mu.Unlock()
	slogger().Debug("native: kernel created", "label", desc.Label, "spirv_words", len(words))
	return id, nil
}

func (d *Device) buildKernel(k *kernel, entry string, words []uint32) error {
	entries, err := layoutEntries(k.bindings)
	if err != nil {
		return err
	}

	k.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  k.label,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return fmt.Errorf("shader module: %w", err)
	}
	k.layout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   k.label,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("bind group layout: %w", err)
	}
	k.pipeline, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            k.label,
		BindGroupLayouts: []hal.BindGroupLayout{k.layout},
	})
	if err != nil {
		return fmt.Errorf("pipeline layout: %w", err)
	}
	k.compute, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  k.label,
		Layout: k.pipeline,
		Compute: hal.ComputeState{
			Module:     k.module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		return fmt.Errorf("compute pipeline: %w", err)
	}
	return nil
}

// layoutEntries converts kernel bindings to bind group layout entries.
// Sampler bindings are dropped: kernels filter in code.
func layoutEntries(bindings []gpucore.KernelBinding) ([]gputypes.BindGroupLayoutEntry, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(bindings))
	for _, b := range bindings {
		if _, _, ok := gpucore.SlotFor(int(b.Binding)); !ok {
			return nil, fmt.Errorf("binding %d outside the slot convention: %w", b.Binding, gpucore.ErrUnsupported)
		}
		var typ gputypes.BufferBindingType
		switch b.Type {
		case gpucore.BindingConstantBuffer:
			typ = gputypes.BufferBindingTypeUniform
		case gpucore.BindingReadOnlyStorage:
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		case gpucore.BindingStorage:
			typ = gputypes.BufferBindingTypeStorage
		case gpucore.BindingSampler:
			continue
		default:
			return nil, fmt.Errorf("binding %d: type %d: %w", b.Binding, b.Type, gpucore.ErrUnsupported)
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    b.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		})
	}
	return entries, nil
}

// destroyKernel releases whatever parts of k were created.
func (d *Device) destroyKernel(k *kernel) {
	if k.compute != nil {
		d.device.DestroyComputePipeline(k.compute)
	}
	if k.pipeline != nil {
		d.device.DestroyPipelineLayout(k.pipeline)
	}
	if k.layout != nil {
		d.device.DestroyBindGroupLayout(k.layout)
	}
	if k.module != nil {
		d.device.DestroyShaderModule(k.module)
	}
}

// DestroyKernel releases a kernel and the bind groups built for it.
func (d *Device) DestroyKernel(id gpucore.KernelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := d.kernels[id]
	if !ok {
		return
	}
	delete(d.kernels, id)
	d.purgeBindGroups(uint64(id))
	d.retire(func() { d.destroyKernel(k) })
}
