// Package dof implements a fast filter spread depth of field effect on
// compute kernels.
//
// # Overview
//
// Every pixel of the colour input is scattered into a padded fixed-point
// accumulation buffer as a small set of weighted impulses whose spacing
// follows the pixel's circle of confusion. Integrating the buffer along
// both axes turns the impulses into tent (or box) shaped kernels, and a
// resolve pass normalises the accumulated colour by the accumulated weight.
// The cost per pixel is constant regardless of the blur radius.
//
// # Quick Start
//
//	dev := software.New()
//	defer dev.Close()
//
//	d := dof.NewDesc()
//	defer d.Close()
//
//	d.Device = dev
//	d.Context = dev.Context()
//	d.ScreenWidth, d.ScreenHeight = 1920, 1080
//	d.MaxBlurRadius = 57
//	d.ScaleFactor = 30
//	d.Color, d.CoC, d.Result = colorSRV, cocSRV, resultUAV
//
//	if rc := dof.Initialize(d); rc != dof.Success {
//	    return rc.Err()
//	}
//	if rc := dof.Resize(d); rc != dof.Success {
//	    return rc.Err()
//	}
//	dof.Render(d)
//
// # Variants
//
//   - [Render]: full resolution tent filter
//   - [RenderQuarterRes]: one tent per 2x2 block, cheaper and softer
//   - [RenderBox]: full resolution box filter, single integration
//
// # Lifecycle
//
// A descriptor moves from uninitialized to initialized with [Initialize],
// to resized with [Resize], and back to uninitialized with [Release].
// Render calls require a resize at least as large as the request.
//
// # Devices
//
// The pipeline talks to a [gpucore.Device] and [gpucore.Context].
// backend/software runs the kernels on a CPU worker pool and
// backend/native runs them on a Vulkan device through gogpu/wgpu.
package dof

// Version of the effect.
const (
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

// GetVersion returns the effect version. It has no preconditions.
func GetVersion() (major, minor, patch int) {
	return VersionMajor, VersionMinor, VersionPatch
}
