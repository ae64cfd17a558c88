package native

import "errors"

// Package errors for the native device.
var (
	// ErrNoAdapter is returned when no hal backend exposes a usable adapter.
	ErrNoAdapter = errors.New("native: no GPU adapter available")

	// ErrDeviceClosed is returned by operations on a closed device.
	ErrDeviceClosed = errors.New("native: device closed")

	// ErrWaitTimeout is returned when submitted work does not complete
	// within the configured wait timeout.
	ErrWaitTimeout = errors.New("native: timed out waiting for the GPU")

	// ErrNotHAL is returned when a device provider does not expose hal
	// objects.
	ErrNotHAL = errors.New("native: provider does not expose a hal device")
)
