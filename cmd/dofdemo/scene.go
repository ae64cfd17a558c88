package main

import (
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoding
	_ "image/png"  // register PNG decoding
	"math"
	"os"

	_ "golang.org/x/image/bmp" // register BMP decoding
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoding
	_ "golang.org/x/image/webp" // register WebP decoding
)

// frame is one input frame: RGBA colour and depth in metres, row-major.
type frame struct {
	w, h  int
	color []float32
	depth []float32
}

// disc is a coloured disc of the synthetic scene, placed in screen space
// at a given depth.
type disc struct {
	x, y   float64 // fraction of width and height
	radius float64 // fraction of height at 1 m
	depth  float64
	color  [3]float32
}

var discs = []disc{
	{x: 0.18, y: 0.55, radius: 0.9, depth: 6, color: [3]float32{0.95, 0.25, 0.2}},
	{x: 0.38, y: 0.48, radius: 1.6, depth: 14.61, color: [3]float32{0.2, 0.8, 0.3}},
	{x: 0.62, y: 0.42, radius: 2.4, depth: 28, color: [3]float32{0.25, 0.4, 0.95}},
	{x: 0.82, y: 0.38, radius: 3.2, depth: 55, color: [3]float32{0.95, 0.85, 0.2}},
	{x: 0.5, y: 0.8, radius: 0.25, depth: 3, color: [3]float32{0.9, 0.9, 0.9}},
}

// syntheticFrame draws a checkered ground plane receding to the horizon,
// a sky gradient and discs at several depths.
func syntheticFrame(w, h int, zFar float64) *frame {
	f := &frame{
		w:     w,
		h:     h,
		color: make([]float32, 4*w*h),
		depth: make([]float32, w*h),
	}
	horizon := 0.45 * float64(h)
	for y := range h {
		for x := range w {
			r, g, b, z := background(float64(x)+0.5, float64(y)+0.5, w, h, horizon, zFar)
			for _, d := range discs {
				if d.depth >= z {
					continue
				}
				cx, cy := d.x*float64(w), d.y*float64(h)
				rad := d.radius * float64(h) / d.depth
				if math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) <= rad {
					r, g, b, z = d.color[0], d.color[1], d.color[2], d.depth
				}
			}
			i := y*w + x
			f.color[4*i+0] = r
			f.color[4*i+1] = g
			f.color[4*i+2] = b
			f.color[4*i+3] = 1
			f.depth[i] = float32(z)
		}
	}
	return f
}

func background(px, py float64, w, h int, horizon, zFar float64) (r, g, b float32, z float64) {
	if py <= horizon {
		t := float32(py / horizon)
		return 0.35 + 0.3*t, 0.55 + 0.25*t, 0.9, zFar
	}
	t := (py - horizon) / (float64(h) - horizon)
	z = math.Min(2/t, zFar)
	wx := (px - float64(w)/2) / float64(w) * z * 2
	if (int(math.Floor(wx))+int(math.Floor(z)))%2 == 0 {
		return 0.8, 0.8, 0.78, z
	}
	return 0.15, 0.15, 0.17, z
}

// loadFrame reads a colour image and a 16-bit depth image, scales both to
// w x h and maps depth from [0, 1] to [zNear, zFar].
func loadFrame(colorPath, depthPath string, w, h int, zNear, zFar float64) (*frame, error) {
	src, err := decodeFile(colorPath)
	if err != nil {
		return nil, err
	}
	dsrc, err := decodeFile(depthPath)
	if err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, w, h)
	rgba := image.NewRGBA64(rect)
	draw.CatmullRom.Scale(rgba, rect, src, src.Bounds(), draw.Src, nil)
	gray := image.NewGray16(rect)
	draw.CatmullRom.Scale(gray, rect, dsrc, dsrc.Bounds(), draw.Src, nil)

	f := &frame{
		w:     w,
		h:     h,
		color: make([]float32, 4*w*h),
		depth: make([]float32, w*h),
	}
	for y := range h {
		for x := range w {
			i := y*w + x
			c := rgba.RGBA64At(x, y)
			f.color[4*i+0] = float32(c.R) / 0xffff
			f.color[4*i+1] = float32(c.G) / 0xffff
			f.color[4*i+2] = float32(c.B) / 0xffff
			f.color[4*i+3] = float32(c.A) / 0xffff
			d := float64(gray.Gray16At(x, y).Y) / 0xffff
			f.depth[i] = float32(zNear + d*(zFar-zNear))
		}
	}
	return f, nil
}

func decodeFile(path string) (image.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// toImage converts RGBA floats to an 8-bit image, clamping to [0, 1].
func toImage(data []float32, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range w * h {
		img.Pix[4*i+0] = unorm8(data[4*i+0])
		img.Pix[4*i+1] = unorm8(data[4*i+1])
		img.Pix[4*i+2] = unorm8(data[4*i+2])
		img.Pix[4*i+3] = unorm8(data[4*i+3])
	}
	return img
}

// cocImage visualises CoC radii: in-focus pixels are black, blur grows
// towards white.
func cocImage(coc []float32, w, h int, maxRadius float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	if maxRadius <= 0 {
		return img
	}
	for i, r := range coc {
		img.Pix[i] = unorm8(float32(float64(r) / maxRadius))
	}
	return img
}

func unorm8(v float32) uint8 {
	switch {
	case math.IsNaN(float64(v)) || v <= 0:
		return 0
	case v >= 1:
		return 0xff
	}
	return uint8(v*0xff + 0.5)
}
