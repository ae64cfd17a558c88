//go:build !nogpu

package native

import "github.com/gogpu/dof/backend"

func init() {
	backend.Register(backend.Native, func() (*backend.Device, error) {
		d, err := New()
		if err != nil {
			return nil, err
		}
		return backend.NewDevice(backend.Native, d, d.Context(), d.Close), nil
	})
}
