// Package gpucore defines the compute device contract consumed by the depth
// of field pipeline.
//
// The contract follows the immediate-context model of classic compute APIs:
// a [Device] creates resources and hands out opaque IDs, and a [Context]
// records state changes (kernel, constant buffers, samplers, shader
// resource views, unordered access views) and dispatches against numbered
// slots. Two implementations live in this module:
//   - backend/software: a reference device running kernels on the CPU
//   - backend/native: gogpu/wgpu HAL (Vulkan) compute
//
// Both sit below the pipeline:
//
//	               +------------------+
//	               | internal/pipeline|
//	               +--------+---------+
//	                        |  Device + Context
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| backend/software|          |  backend/native |
//	|  (worker pool)  |          |   (hal.Device)  |
//	+-----------------+          +--------+--------+
//	                                      |
//	                             +--------v--------+
//	                             |   gogpu/wgpu    |
//	                             +-----------------+
//
// # Binding Convention
//
// Kernels see a fixed binding layout regardless of backend:
//
//	binding 0  constant buffer slot 0 (b0)
//	binding 1  sampler slot 0          (s0)
//	binding 2  shader resource slot 0  (t0)
//	binding 3  shader resource slot 1  (t1)
//	binding 4  unordered access slot 0 (u0)
//	binding 5  unordered access slot 1 (u1)
//	binding 6  unordered access slot 2 (u2)
//
// Use [BindingFor] to translate a slot into its binding index.
//
// # Ordering
//
// Dispatches recorded on one Context execute in recording order, and writes
// made by one dispatch are visible to the next. Nothing is promised about
// ordering between threads of a single dispatch.
package gpucore
