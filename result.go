package dof

import (
	"errors"
	"fmt"
)

// ReturnCode is the result of a facade call.
type ReturnCode int

// Return codes.
const (
	Success ReturnCode = iota
	Fail
	InvalidParams
	InvalidDevice
	InvalidDeviceContext
	InvalidSurface
)

// Errors matching the non-success return codes, for use with errors.Is.
var (
	ErrFail                 = errors.New("dof: resource creation failed")
	ErrInvalidParams        = errors.New("dof: invalid parameters")
	ErrInvalidDevice        = errors.New("dof: invalid device")
	ErrInvalidDeviceContext = errors.New("dof: invalid device context")
	ErrInvalidSurface       = errors.New("dof: render request exceeds allocated buffers")
)

// String returns the name of the return code.
func (rc ReturnCode) String() string {
	switch rc {
	case Success:
		return "Success"
	case Fail:
		return "Fail"
	case InvalidParams:
		return "InvalidParams"
	case InvalidDevice:
		return "InvalidDevice"
	case InvalidDeviceContext:
		return "InvalidDeviceContext"
	case InvalidSurface:
		return "InvalidSurface"
	default:
		return fmt.Sprintf("ReturnCode(%d)", int(rc))
	}
}

// Err returns nil for Success and the matching sentinel error otherwise.
func (rc ReturnCode) Err() error {
	switch rc {
	case Success:
		return nil
	case Fail:
		return ErrFail
	case InvalidParams:
		return ErrInvalidParams
	case InvalidDevice:
		return ErrInvalidDevice
	case InvalidDeviceContext:
		return ErrInvalidDeviceContext
	case InvalidSurface:
		return ErrInvalidSurface
	default:
		return fmt.Errorf("dof: unknown return code %d", int(rc))
	}
}
