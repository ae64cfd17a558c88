package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"
)

// encoders maps output extensions to image encoders.
var encoders = map[string]func(io.Writer, image.Image) error{
	".png": png.Encode,
	".bmp": bmp.Encode,
	".tif": func(w io.Writer, m image.Image) error {
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
	},
	".tiff": func(w io.Writer, m image.Image) error {
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
	},
}

// saveImage writes img in the format selected by the file extension.
func saveImage(path string, img image.Image) error {
	enc, ok := encoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return fmt.Errorf("unsupported output format %q (want .png, .bmp or .tiff)", filepath.Ext(path))
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := enc(fh, img); err != nil {
		fh.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return fh.Close()
}

// hudLineHeight is the advance between HUD lines for basicfont.Face7x13.
const hudLineHeight = 15

// drawHUD writes lines of text in the top-left corner over a translucent
// panel.
func drawHUD(img draw.Image, lines []string) {
	face := basicfont.Face7x13
	width := 0
	for _, l := range lines {
		if w := font.MeasureString(face, l).Ceil(); w > width {
			width = w
		}
	}
	panel := image.Rect(4, 4, 4+width+12, 4+len(lines)*hudLineHeight+8)
	draw.Draw(img, panel, image.NewUniform(color.NRGBA{A: 0x90}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
	}
	for i, l := range lines {
		d.Dot = fixed.P(panel.Min.X+6, panel.Min.Y+4+(i+1)*hudLineHeight-3)
		d.DrawString(l)
	}
}
