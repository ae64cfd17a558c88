package main

import (
	"fmt"
	"math"
)

// camera holds the thin-lens parameters used to derive the circle of
// confusion.
type camera struct {
	FocalLength   float64 // mm
	FocusDistance float64 // m
	SensorWidth   float64 // mm
	FStop         float64
}

// presets are the camera setups of the reference scene.
var presets = []camera{
	{FocalLength: 400, FocusDistance: 21.67, SensorWidth: 100, FStop: 1.4},
	{FocalLength: 218, FocusDistance: 23.3, SensorWidth: 100, FStop: 1.6},
	{FocalLength: 190, FocusDistance: 14.61, SensorWidth: 100, FStop: 1.8},
	{FocalLength: 133, FocusDistance: 34.95, SensorWidth: 50, FStop: 1.6},
	{FocalLength: 205, FocusDistance: 39.47, SensorWidth: 85.4, FStop: 2.6},
	{FocalLength: 229, FocusDistance: 11.3, SensorWidth: 100, FStop: 3.9},
	{FocalLength: 157, FocusDistance: 10.9, SensorWidth: 100, FStop: 2.2},
	{FocalLength: 366, FocusDistance: 16.8, SensorWidth: 100, FStop: 1.4},
	{FocalLength: 155, FocusDistance: 24.9, SensorWidth: 42.7, FStop: 1.4},
}

// defaultPreset matches the flag defaults.
const defaultPreset = 2

func preset(i int) (camera, error) {
	if i < 0 || i >= len(presets) {
		return camera{}, fmt.Errorf("preset %d out of range [0, %d]", i, len(presets)-1)
	}
	return presets[i], nil
}

// cocOptions controls the CoC pass.
type cocOptions struct {
	Camera    camera
	ZNear     float64
	ZFar      float64
	MaxRadius float64

	// ForceCoC, when positive, replaces every computed radius.
	ForceCoC float64
}

// cocRadius returns the circle of confusion radius in pixels for a point at
// distance z metres, for an image width pixels wide.
//
// The thin-lens blur diameter on the sensor is
//
//	A * f * |z - s| / (z * (s - f))
//
// with aperture A = f / N, focal length f and focus distance s. It is
// converted to pixels through the sensor width.
func cocRadius(z float64, width int, o *cocOptions) float64 {
	if o.ForceCoC > 0 {
		return math.Min(o.ForceCoC, o.MaxRadius)
	}
	c := o.Camera
	f := c.FocalLength / 1000
	s := c.FocusDistance
	if z <= 0 || s <= f || c.FStop <= 0 || c.SensorWidth <= 0 {
		return 0
	}
	aperture := f / c.FStop
	diameter := aperture * f * math.Abs(z-s) / (z * (s - f))
	pixels := diameter / (c.SensorWidth / 1000) * float64(width)
	return math.Min(pixels/2, o.MaxRadius)
}

// cocMap evaluates cocRadius for a depth map in metres.
func cocMap(depth []float32, width int, o *cocOptions) []float32 {
	out := make([]float32, len(depth))
	for i, z := range depth {
		out[i] = float32(cocRadius(float64(z), width, o))
	}
	return out
}
