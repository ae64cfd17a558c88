package software

import "github.com/gogpu/dof/backend"

func init() {
	backend.Register(backend.Software, func() (*backend.Device, error) {
		d := New()
		return backend.NewDevice(backend.Software, d, d.Context(), func() error {
			d.Close()
			return nil
		}), nil
	})
}
