package main

import (
	"github.com/gogpu/dof/backend"
	_ "github.com/gogpu/dof/backend/native"   // register the Vulkan device
	_ "github.com/gogpu/dof/backend/software" // register the CPU device
)

// openDevice opens the named device, or the best available one for "auto".
func openDevice(name string) (*backend.Device, error) {
	if name == "auto" {
		return backend.Default()
	}
	return backend.Open(name)
}
