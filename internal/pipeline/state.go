// Package pipeline implements the fast filter spread depth of field
// pipeline: resource management, parameter upload and the sequencing of
// its compute passes.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/dof/gpucore"
	"github.com/gogpu/dof/internal/kernels"
)

// Limits accepted by Resize.
const (
	MaxScreenSize = 16384
	MaxBlurRadius = 64
)

// paddingExtra is added to the maximum blur radius on each side of the
// accumulation buffer.
const paddingExtra = 2

// elementStride is the size of one accumulation element: four 32-bit
// channels.
const elementStride = 16

// Errors reported by State. The facade maps them to return codes.
var (
	ErrNoDevice       = errors.New("dof: no device")
	ErrNoContext      = errors.New("dof: no device context")
	ErrNotInitialized = errors.New("dof: pipeline not initialized")
	ErrInvalidParams  = errors.New("dof: invalid parameters")
	ErrInvalidSurface = errors.New("dof: render request exceeds allocated buffers")
)

type kernelSlot int

const (
	kernelSetup kernelSlot = iota
	kernelSetupQuarter
	kernelSetupBox
	kernelResolve
	kernelIntegrate
	kernelDoubleIntegrate
	kernelCount
)

var kernelTable = [kernelCount]*kernels.Kernel{
	kernelSetup:           kernels.FastFilterSetup,
	kernelSetupQuarter:    kernels.FastFilterSetupQuarter,
	kernelSetupBox:        kernels.BoxFilterSetup,
	kernelResolve:         kernels.Resolve,
	kernelIntegrate:       kernels.SingleIntegrate,
	kernelDoubleIntegrate: kernels.DoubleIntegrate,
}

// State is the private state of one effect instance. It exclusively owns
// its kernels, buffers, views, constant buffer and sampler.
//
// A State is not safe for concurrent use. Independent States may be used
// from different goroutines.
type State struct {
	device gpucore.Device

	kernels   [kernelCount]gpucore.KernelID
	constants gpucore.BufferID
	sampler   gpucore.SamplerID

	accum          gpucore.BufferID
	transposed     gpucore.BufferID
	accumView      gpucore.ViewID
	transposedView gpucore.ViewID

	padding      int
	bufferWidth  int
	bufferHeight int

	degraded uint64
}

// Initialize creates the kernels, the constant buffer and the sampler on
// dev. Objects from a previous Initialize are released first. On failure
// everything created so far is released.
func (s *State) Initialize(dev gpucore.Device) error {
	if dev == nil {
		return ErrNoDevice
	}
	s.Release()
	s.device = dev

	if err := s.create(); err != nil {
		s.Release()
		return err
	}
	slogger().Debug("dof: pipeline initialized")
	return nil
}

func (s *State) create() error {
	for slot, k := range kernelTable {
		id, err := s.device.CreateKernel(k.Desc())
		if err != nil {
			return fmt.Errorf("create kernel %s: %w", k.EntryPoint, err)
		}
		s.kernels[slot] = id
	}

	cb, err := s.device.CreateBuffer(&gpucore.BufferDesc{
		Label: "dof_params",
		Size:  uint64(kernels.ParamsSize),
		Usage: gpucore.BufferUsageConstant | gpucore.BufferUsageDynamic,
	})
	if err != nil {
		return fmt.Errorf("create constant buffer: %w", err)
	}
	s.constants = cb

	smp, err := s.device.CreateSampler(&gpucore.SamplerDesc{
		Label:     "dof_sampler",
		AddressU:  gpucore.AddressModeClamp,
		AddressV:  gpucore.AddressModeClamp,
		AddressW:  gpucore.AddressModeClamp,
		MinFilter: gpucore.FilterModeLinear,
		MagFilter: gpucore.FilterModePoint,
		MipFilter: gpucore.FilterModePoint,
		Compare:   gpucore.CompareAlways,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	s.sampler = smp
	return nil
}

// Resize validates the screen size and radius and reallocates the
// accumulation buffer and its transposed twin. Invalid parameters leave
// existing buffers untouched.
func (s *State) Resize(width, height, radius int) error {
	if width < 0 || height < 0 || width > MaxScreenSize || height > MaxScreenSize ||
		radius < 0 || radius > MaxBlurRadius {
		return fmt.Errorf("resize %dx%d radius %d: %w", width, height, radius, ErrInvalidParams)
	}
	if !s.Initialized() {
		return ErrNotInitialized
	}

	padding := radius + paddingExtra
	bw := width + 2*padding
	bh := height + 2*padding

	s.releaseBuffers()
	if err := s.createBuffers(bw, bh); err != nil {
		s.releaseBuffers()
		return err
	}
	s.padding = padding
	s.bufferWidth = bw
	s.bufferHeight = bh

	slogger().Debug("dof: resized",
		"width", width, "height", height, "radius", radius,
		"padding", padding, "buffer_width", bw, "buffer_height", bh)
	return nil
}

func (s *State) createBuffers(bw, bh int) error {
	desc := &gpucore.BufferDesc{
		Size:   uint64(bw) * uint64(bh) * elementStride,
		Stride: elementStride,
		Usage:  gpucore.BufferUsageStructured,
	}

	var err error
	desc.Label = "dof_accum"
	if s.accum, err = s.device.CreateBuffer(desc); err != nil {
		return fmt.Errorf("create accumulation buffer: %w", err)
	}
	if s.accumView, err = s.device.CreateUnorderedAccessView(&gpucore.ViewDesc{Label: "dof_accum_uav", Buffer: s.accum}); err != nil {
		return fmt.Errorf("create accumulation view: %w", err)
	}

	desc.Label = "dof_transposed"
	if s.transposed, err = s.device.CreateBuffer(desc); err != nil {
		return fmt.Errorf("create transposed buffer: %w", err)
	}
	if s.transposedView, err = s.device.CreateUnorderedAccessView(&gpucore.ViewDesc{Label: "dof_transposed_uav", Buffer: s.transposed}); err != nil {
		return fmt.Errorf("create transposed view: %w", err)
	}
	return nil
}

func (s *State) releaseBuffers() {
	if s.device == nil {
		return
	}
	if s.accumView != gpucore.InvalidID {
		s.device.DestroyView(s.accumView)
		s.accumView = gpucore.InvalidID
	}
	if s.transposedView != gpucore.InvalidID {
		s.device.DestroyView(s.transposedView)
		s.transposedView = gpucore.InvalidID
	}
	if s.accum != gpucore.InvalidID {
		s.device.DestroyBuffer(s.accum)
		s.accum = gpucore.InvalidID
	}
	if s.transposed != gpucore.InvalidID {
		s.device.DestroyBuffer(s.transposed)
		s.transposed = gpucore.InvalidID
	}
	s.padding = 0
	s.bufferWidth = 0
	s.bufferHeight = 0
}

// Release destroys every owned object and forgets the device. It is safe
// to call on a zero or already released State.
func (s *State) Release() {
	if s.device == nil {
		return
	}
	s.releaseBuffers()
	for i, id := range s.kernels {
		if id != gpucore.InvalidID {
			s.device.DestroyKernel(id)
			s.kernels[i] = gpucore.InvalidID
		}
	}
	if s.constants != gpucore.InvalidID {
		s.device.DestroyBuffer(s.constants)
		s.constants = gpucore.InvalidID
	}
	if s.sampler != gpucore.InvalidID {
		s.device.DestroySampler(s.sampler)
		s.sampler = gpucore.InvalidID
	}
	s.device = nil
	slogger().Debug("dof: pipeline released")
}

// Initialized reports whether Initialize succeeded and Release has not
// been called since.
func (s *State) Initialized() bool {
	return s.device != nil && s.constants != gpucore.InvalidID
}

// Resized reports whether the accumulation buffers are allocated.
func (s *State) Resized() bool {
	return s.accumView != gpucore.InvalidID && s.transposedView != gpucore.InvalidID
}

// Padding returns the padding of the current allocation.
func (s *State) Padding() int {
	return s.padding
}

// BufferSize returns the padded dimensions of the current allocation.
func (s *State) BufferSize() (width, height int) {
	return s.bufferWidth, s.bufferHeight
}

// Degraded returns how many parameter uploads were skipped because the
// constant buffer could not be mapped.
func (s *State) Degraded() uint64 {
	return s.degraded
}

// LiveHandles returns the number of owned objects that have not been
// released.
func (s *State) LiveHandles() int {
	n := 0
	for _, id := range s.kernels {
		if id != gpucore.InvalidID {
			n++
		}
	}
	for _, id := range []uint64{
		uint64(s.constants), uint64(s.sampler),
		uint64(s.accum), uint64(s.transposed),
		uint64(s.accumView), uint64(s.transposedView),
	} {
		if id != gpucore.InvalidID {
			n++
		}
	}
	return n
}
