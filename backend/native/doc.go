// Package native implements gpucore.Device and gpucore.Context on top of
// the gogpu/wgpu hardware abstraction layer.
//
// Kernels are WGSL sources compiled to SPIR-V with naga and turned into
// compute pipelines. Every gpucore resource is backed by a hal storage
// buffer: textures are tightly packed texel arrays, which is exactly how the
// pipeline's kernels address them. Dynamic constant buffers are renamed on
// every write so work already recorded keeps seeing the previous contents.
//
// Work is recorded into a single command encoder and submitted on Flush or
// before any readback. Bind groups are built on demand from the bound slots
// and cached until one of their resources is destroyed.
//
// # Devices
//
// A device can own its hal device or borrow one:
//
//	dev, err := native.New()                        // first Vulkan adapter
//	dev := native.NewFromHAL(halDevice, halQueue)   // caller's hal device
//	dev, err := native.NewFromProvider(provider)    // gpucontext.DeviceProvider
//
// Borrowed devices are never destroyed by Close.
//
// Build with the nogpu tag to exclude this package from binaries that must
// not load a GPU driver.
package native
