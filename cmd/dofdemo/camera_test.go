package main

import (
	"math"
	"testing"
)

func TestCoCRadius(t *testing.T) {
	cam := presets[defaultPreset]
	opts := &cocOptions{Camera: cam, ZNear: 0.1, ZFar: 200, MaxRadius: 57}

	if r := cocRadius(cam.FocusDistance, 1920, opts); r != 0 {
		t.Errorf("in-focus radius = %v, want 0", r)
	}

	near := cocRadius(cam.FocusDistance/2, 1920, opts)
	far := cocRadius(cam.FocusDistance*2, 1920, opts)
	if near <= 0 || far <= 0 {
		t.Fatalf("out-of-focus radii = %v, %v, want > 0", near, far)
	}
	if near <= far {
		t.Errorf("near radius %v <= far radius %v", near, far)
	}

	// Radius scales with image width below the clamp.
	if far >= opts.MaxRadius {
		t.Fatalf("far radius %v clamped", far)
	}
	half := cocRadius(cam.FocusDistance*2, 960, opts)
	if math.Abs(half*2-far) > 1e-9 {
		t.Errorf("radius at half width = %v, want %v", half, far/2)
	}
}

func TestCoCRadiusClamp(t *testing.T) {
	opts := &cocOptions{Camera: presets[0], MaxRadius: 10}
	if r := cocRadius(0.5, 4096, opts); r != 10 {
		t.Errorf("radius = %v, want clamp 10", r)
	}
}

func TestCoCRadiusForced(t *testing.T) {
	tests := []struct {
		name          string
		force, max, z float64
		want          float64
	}{
		{"below clamp", 4, 57, 100, 4},
		{"above clamp", 80, 57, 3, 57},
		{"ignores depth", 12.5, 57, 14.61, 12.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &cocOptions{Camera: presets[defaultPreset], MaxRadius: tt.max, ForceCoC: tt.force}
			if got := cocRadius(tt.z, 1920, opts); got != tt.want {
				t.Errorf("cocRadius = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoCRadiusDegenerate(t *testing.T) {
	tests := []struct {
		name string
		cam  camera
		z    float64
	}{
		{"zero depth", presets[0], 0},
		{"negative depth", presets[0], -1},
		{"focus inside focal length", camera{FocalLength: 50, FocusDistance: 0.01, SensorWidth: 36, FStop: 2}, 5},
		{"zero f-stop", camera{FocalLength: 50, FocusDistance: 5, SensorWidth: 36}, 10},
		{"zero sensor", camera{FocalLength: 50, FocusDistance: 5, FStop: 2}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &cocOptions{Camera: tt.cam, MaxRadius: 57}
			if got := cocRadius(tt.z, 1920, opts); got != 0 {
				t.Errorf("cocRadius = %v, want 0", got)
			}
		})
	}
}

func TestPreset(t *testing.T) {
	for i := range presets {
		c, err := preset(i)
		if err != nil {
			t.Fatalf("preset(%d): %v", i, err)
		}
		if c.FocusDistance*1000 <= c.FocalLength {
			t.Errorf("preset %d focuses inside its focal length", i)
		}
	}
	for _, i := range []int{-1, len(presets)} {
		if _, err := preset(i); err == nil {
			t.Errorf("preset(%d) succeeded, want error", i)
		}
	}
}

func TestCoCMap(t *testing.T) {
	opts := &cocOptions{Camera: presets[defaultPreset], MaxRadius: 57}
	depth := []float32{14.61, 3, 200}
	got := cocMap(depth, 640, opts)
	if len(got) != len(depth) {
		t.Fatalf("len = %d, want %d", len(got), len(depth))
	}
	for i, z := range depth {
		want := float32(cocRadius(float64(z), 640, opts))
		if got[i] != want {
			t.Errorf("coc[%d] = %v, want %v", i, got[i], want)
		}
	}
}
