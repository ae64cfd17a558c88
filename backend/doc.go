// Package backend is a registry of compute devices for the dof effect.
//
// Device packages register a factory from init(), so importing them is
// enough to make them selectable by name:
//
//	import (
//		_ "github.com/gogpu/dof/backend/native"
//		_ "github.com/gogpu/dof/backend/software"
//	)
//
// # Backend Selection
//
// Use Default to open the best available device, or Open to request one by
// name:
//
//	dev, err := backend.Default()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	d := dof.NewDesc()
//	d.Device, d.Context = dev, dev.Context
//
// # Available Backends
//
//   - "native": Vulkan through gogpu/wgpu/hal (not built with the nogpu tag)
//   - "software": CPU reference device (always available)
package backend
