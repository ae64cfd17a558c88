// Package kernels holds the compute kernels of the fast filter spread
// pipeline: their WGSL sources, binding tables and the parameter block they
// share.
package kernels

import (
	_ "embed"

	"github.com/gogpu/dof/gpucore"
)

//go:embed shaders/fast_filter_setup.wgsl
var fastFilterSetupSource string

//go:embed shaders/fast_filter_setup_quarter.wgsl
var fastFilterSetupQuarterSource string

//go:embed shaders/box_filter_setup.wgsl
var boxFilterSetupSource string

//go:embed shaders/single_integrate.wgsl
var singleIntegrateSource string

//go:embed shaders/double_integrate.wgsl
var doubleIntegrateSource string

//go:embed shaders/resolve.wgsl
var resolveSource string

// Entry point names. The software device resolves its built-in kernel
// bodies by these names.
const (
	EntryFastFilterSetup        = "fast_filter_setup"
	EntryFastFilterSetupQuarter = "fast_filter_setup_quarter"
	EntryBoxFilterSetup         = "box_filter_setup"
	EntrySingleIntegrate        = "single_integrate"
	EntryDoubleIntegrate        = "double_integrate"
	EntryResolve                = "resolve"
)

// Workgroup sizes.
const (
	// TileSize is the edge of the 2D workgroups used by setup and resolve.
	TileSize = 8

	// ColumnGroupSize is the 1D workgroup size of the integrate kernels.
	ColumnGroupSize = 64
)

// Kernel describes one compute kernel.
type Kernel struct {
	// EntryPoint is the WGSL entry point and the kernel's name.
	EntryPoint string

	// Source is the WGSL source.
	Source string

	// Bindings lists the bindings the source declares.
	Bindings []gpucore.KernelBinding

	// WorkgroupSize is the @workgroup_size of the entry point.
	WorkgroupSize [3]uint32
}

// Desc returns a device kernel descriptor for k.
func (k *Kernel) Desc() *gpucore.KernelDesc {
	return &gpucore.KernelDesc{
		Label:      k.EntryPoint,
		EntryPoint: k.EntryPoint,
		WGSL:       k.Source,
		Bindings:   k.Bindings,
	}
}

var setupBindings = []gpucore.KernelBinding{
	{Binding: 0, Type: gpucore.BindingConstantBuffer},
	{Binding: 2, Type: gpucore.BindingReadOnlyStorage},
	{Binding: 3, Type: gpucore.BindingReadOnlyStorage},
	{Binding: 4, Type: gpucore.BindingStorage},
}

var integrateBindings = []gpucore.KernelBinding{
	{Binding: 0, Type: gpucore.BindingConstantBuffer},
	{Binding: 4, Type: gpucore.BindingStorage},
	{Binding: 5, Type: gpucore.BindingStorage},
}

var resolveBindings = []gpucore.KernelBinding{
	{Binding: 0, Type: gpucore.BindingConstantBuffer},
	{Binding: 2, Type: gpucore.BindingReadOnlyStorage},
	{Binding: 4, Type: gpucore.BindingStorage},
	{Binding: 6, Type: gpucore.BindingStorage},
}

// The six kernels of the pipeline.
var (
	FastFilterSetup = &Kernel{
		EntryPoint:    EntryFastFilterSetup,
		Source:        fastFilterSetupSource,
		Bindings:      setupBindings,
		WorkgroupSize: [3]uint32{TileSize, TileSize, 1},
	}
	FastFilterSetupQuarter = &Kernel{
		EntryPoint:    EntryFastFilterSetupQuarter,
		Source:        fastFilterSetupQuarterSource,
		Bindings:      setupBindings,
		WorkgroupSize: [3]uint32{TileSize, TileSize, 1},
	}
	BoxFilterSetup = &Kernel{
		EntryPoint:    EntryBoxFilterSetup,
		Source:        boxFilterSetupSource,
		Bindings:      setupBindings,
		WorkgroupSize: [3]uint32{TileSize, TileSize, 1},
	}
	SingleIntegrate = &Kernel{
		EntryPoint:    EntrySingleIntegrate,
		Source:        singleIntegrateSource,
		Bindings:      integrateBindings,
		WorkgroupSize: [3]uint32{ColumnGroupSize, 1, 1},
	}
	DoubleIntegrate = &Kernel{
		EntryPoint:    EntryDoubleIntegrate,
		Source:        doubleIntegrateSource,
		Bindings:      integrateBindings,
		WorkgroupSize: [3]uint32{ColumnGroupSize, 1, 1},
	}
	Resolve = &Kernel{
		EntryPoint:    EntryResolve,
		Source:        resolveSource,
		Bindings:      resolveBindings,
		WorkgroupSize: [3]uint32{TileSize, TileSize, 1},
	}
)

// All returns the six kernels in a stable order.
func All() []*Kernel {
	return []*Kernel{
		FastFilterSetup,
		FastFilterSetupQuarter,
		BoxFilterSetup,
		SingleIntegrate,
		DoubleIntegrate,
		Resolve,
	}
}

// Lookup returns the kernel with the given entry point.
func Lookup(entryPoint string) (*Kernel, bool) {
	for _, k := range All() {
		if k.EntryPoint == entryPoint {
			return k, true
		}
	}
	return nil, false
}
