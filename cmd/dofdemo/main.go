// Command dofdemo renders a depth of field image with the dof effect.
//
// Without inputs it draws a synthetic scene: a checkered ground plane and
// discs at several depths, focused by one of the built-in camera presets.
// With -color and -depth it processes an image and a 16-bit depth map.
//
// Usage:
//
//	dofdemo -mode full -preset 2 -output dof.png
//	dofdemo -color in.png -depth depth.png -fstop 2.8 -output out.tiff
//	dofdemo -device native -frames 100 -profile cpu
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/profile"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"honnef.co/go/safeish"

	"github.com/gogpu/dof"
	"github.com/gogpu/dof/backend"
	"github.com/gogpu/dof/gpucore"
)

// Scale factors per mode. Box accumulation sums more terms per pixel and
// needs more headroom.
const (
	tentScaleFactor = 30
	boxScaleFactor  = 24
)

type config struct {
	width, height int
	mode          string
	device        string
	preset        int
	frames        int
	scaleFactor   int
	radiusBound   int

	focalLength   float64
	focusDistance float64
	sensorWidth   float64
	fStop         float64
	zNear, zFar   float64
	maxRadius     float64
	forceCoC      float64

	colorPath, depthPath string
	output               string
	debugCoC             string
	profile              string
	verbose              bool
	hud                  bool
}

func parseFlags(args []string) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("dofdemo", flag.ContinueOnError)
	fs.IntVar(&cfg.width, "width", 1920, "image width")
	fs.IntVar(&cfg.height, "height", 1080, "image height")
	fs.StringVar(&cfg.mode, "mode", "full", "depth of field mode: disabled, box, full or quarter")
	fs.StringVar(&cfg.device, "device", "software", "compute device: software, native or auto")
	fs.IntVar(&cfg.preset, "preset", -1, fmt.Sprintf("camera preset 0-%d (overrides lens flags)", len(presets)-1))
	fs.IntVar(&cfg.frames, "frames", 1, "number of renders, for timing")
	fs.IntVar(&cfg.scaleFactor, "scale", 0, "fixed-point scale factor (0 picks the mode default)")
	fs.IntVar(&cfg.radiusBound, "radius-bound", 64, "maximum blur radius the buffers are sized for")

	def := presets[defaultPreset]
	fs.Float64Var(&cfg.focalLength, "focal-length", def.FocalLength, "focal length in mm")
	fs.Float64Var(&cfg.focusDistance, "focus", def.FocusDistance, "focus distance in m")
	fs.Float64Var(&cfg.sensorWidth, "sensor-width", def.SensorWidth, "sensor width in mm")
	fs.Float64Var(&cfg.fStop, "fstop", def.FStop, "aperture f-number")
	fs.Float64Var(&cfg.zNear, "znear", 0.1, "depth of black in the depth map, m")
	fs.Float64Var(&cfg.zFar, "zfar", 200, "depth of white in the depth map and of the sky, m")
	fs.Float64Var(&cfg.maxRadius, "max-radius", 57, "CoC clamp in pixels")
	fs.Float64Var(&cfg.forceCoC, "force-coc", 0, "use this CoC radius everywhere when positive")

	fs.StringVar(&cfg.colorPath, "color", "", "input colour image (PNG, JPEG, BMP, TIFF, WebP)")
	fs.StringVar(&cfg.depthPath, "depth", "", "input 16-bit depth image")
	fs.StringVar(&cfg.output, "output", "dof.png", "output file (.png, .bmp or .tiff)")
	fs.StringVar(&cfg.debugCoC, "debug-coc", "", "also write the CoC visualisation to this file")
	fs.StringVar(&cfg.profile, "profile", "", "write a profile: cpu, mem, clock or trace")
	fs.BoolVar(&cfg.verbose, "v", false, "debug logging")
	fs.BoolVar(&cfg.hud, "hud", true, "draw the settings overlay")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.preset >= 0 {
		c, err := preset(cfg.preset)
		if err != nil {
			return nil, err
		}
		cfg.focalLength, cfg.focusDistance = c.FocalLength, c.FocusDistance
		cfg.sensorWidth, cfg.fStop = c.SensorWidth, c.FStop
	}
	if cfg.width <= 0 || cfg.height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", cfg.width, cfg.height)
	}
	if (cfg.colorPath == "") != (cfg.depthPath == "") {
		return nil, errors.New("-color and -depth must be given together")
	}
	if cfg.frames < 1 {
		cfg.frames = 1
	}
	if cfg.forceCoC > cfg.maxRadius {
		cfg.maxRadius = cfg.forceCoC
	}
	if _, ok := renderers[cfg.mode]; !ok && cfg.mode != "disabled" {
		return nil, fmt.Errorf("unknown mode %q", cfg.mode)
	}
	return cfg, nil
}

var renderers = map[string]func(*dof.Desc) dof.ReturnCode{
	"full":    dof.Render,
	"quarter": dof.RenderQuarterRes,
	"box":     dof.RenderBox,
}

func (c *config) scale() int {
	switch {
	case c.scaleFactor > 0:
		return c.scaleFactor
	case c.mode == "box":
		return boxScaleFactor
	default:
		return tentScaleFactor
	}
}

func (c *config) camera() camera {
	return camera{
		FocalLength:   c.focalLength,
		FocusDistance: c.focusDistance,
		SensorWidth:   c.sensorWidth,
		FStop:         c.fStop,
	}
}

// frameContext holds everything one run of the demo owns.
type frameContext struct {
	cfg    *config
	log    *slog.Logger
	frame  *frame
	coc    []float32
	device *backend.Device
	desc   *dof.Desc

	textures [3]gpucore.TextureID // color, coc, result
	views    [3]gpucore.ViewID

	elapsed time.Duration
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "dofdemo:", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "dofdemo:", err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	dof.SetLogger(log)

	if stop := startProfile(cfg.profile); stop != nil {
		defer stop()
	}

	fc := &frameContext{cfg: cfg, log: log}
	if err := fc.load(); err != nil {
		return err
	}
	if cfg.debugCoC != "" {
		if err := saveImage(cfg.debugCoC, cocImage(fc.coc, cfg.width, cfg.height, cfg.maxRadius)); err != nil {
			return err
		}
		log.Info("wrote CoC visualisation", "path", cfg.debugCoC)
	}

	result := fc.frame.color
	if cfg.mode != "disabled" {
		var err error
		if result, err = fc.render(); err != nil {
			return err
		}
	}

	img := toImage(result, cfg.width, cfg.height)
	if cfg.hud {
		drawHUD(img, fc.hudLines())
	}
	if err := saveImage(cfg.output, img); err != nil {
		return err
	}
	fc.summary()
	return nil
}

func startProfile(kind string) func() {
	var mode func(*profile.Profile)
	switch kind {
	case "":
		return nil
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "clock":
		mode = profile.ClockProfile
	case "trace":
		mode = profile.TraceProfile
	default:
		fmt.Fprintf(os.Stderr, "dofdemo: unknown profile %q, profiling disabled\n", kind)
		return nil
	}
	return profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook).Stop
}

// load builds the input frame and its CoC map.
func (fc *frameContext) load() error {
	cfg := fc.cfg
	if cfg.colorPath != "" {
		f, err := loadFrame(cfg.colorPath, cfg.depthPath, cfg.width, cfg.height, cfg.zNear, cfg.zFar)
		if err != nil {
			return err
		}
		fc.frame = f
		fc.log.Debug("loaded input", "color", cfg.colorPath, "depth", cfg.depthPath)
	} else {
		fc.frame = syntheticFrame(cfg.width, cfg.height, cfg.zFar)
		fc.log.Debug("generated synthetic scene", "width", cfg.width, "height", cfg.height)
	}

	fc.coc = cocMap(fc.frame.depth, cfg.width, &cocOptions{
		Camera:    cfg.camera(),
		ZNear:     cfg.zNear,
		ZFar:      cfg.zFar,
		MaxRadius: cfg.maxRadius,
		ForceCoC:  cfg.forceCoC,
	})
	return nil
}

// render runs the effect on the selected device and reads back the result.
func (fc *frameContext) render() ([]float32, error) {
	dev, err := openDevice(fc.cfg.device)
	if err != nil {
		return nil, err
	}
	fc.device = dev
	fc.log.Debug("device opened", "backend", dev.Name())
	defer dev.Close()

	if err := fc.createSurfaces(); err != nil {
		return nil, err
	}
	defer fc.destroySurfaces()

	cfg := fc.cfg
	d := dof.NewDesc()
	defer d.Close()
	d.Device, d.Context = dev, dev.Context
	d.ScreenWidth, d.ScreenHeight = cfg.width, cfg.height
	d.ScaleFactor = cfg.scale()
	d.MaxBlurRadius = cfg.radiusBound
	d.Color, d.CoC, d.Result = fc.views[0], fc.views[1], fc.views[2]
	fc.desc = d

	if err := dof.Initialize(d).Err(); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if err := dof.Resize(d).Err(); err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	fc.log.Debug("effect ready", "padding", d.Padding(), "state", d.State())

	render := renderers[cfg.mode]
	start := time.Now()
	for range cfg.frames {
		if err := render(d).Err(); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
	}
	if err := dev.Context.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	fc.elapsed = time.Since(start)
	if n := d.Degraded(); n > 0 {
		fc.log.Warn("parameter uploads skipped", "count", n)
	}

	out, err := dev.ReadTexture(fc.textures[2])
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), safeish.SliceCast[[]float32](out)...), nil
}

func (fc *frameContext) createSurfaces() error {
	dev := fc.device
	w, h := fc.cfg.width, fc.cfg.height
	descs := [3]gpucore.TextureDesc{
		{Label: "color", Width: w, Height: h, Format: gpucore.TextureFormatRGBA32Float},
		{Label: "coc", Width: w, Height: h, Format: gpucore.TextureFormatR32Float},
		{Label: "result", Width: w, Height: h, Format: gpucore.TextureFormatRGBA32Float},
	}
	for i := range descs {
		id, err := dev.CreateTexture(&descs[i])
		if err != nil {
			return err
		}
		fc.textures[i] = id
	}
	if err := dev.WriteTexture(fc.textures[0], safeish.SliceCast[[]byte](fc.frame.color)); err != nil {
		return err
	}
	if err := dev.WriteTexture(fc.textures[1], safeish.SliceCast[[]byte](fc.coc)); err != nil {
		return err
	}

	var err error
	if fc.views[0], err = dev.CreateShaderResourceView(&gpucore.ViewDesc{Label: "color", Texture: fc.textures[0]}); err != nil {
		return err
	}
	if fc.views[1], err = dev.CreateShaderResourceView(&gpucore.ViewDesc{Label: "coc", Texture: fc.textures[1]}); err != nil {
		return err
	}
	fc.views[2], err = dev.CreateUnorderedAccessView(&gpucore.ViewDesc{Label: "result", Texture: fc.textures[2]})
	return err
}

func (fc *frameContext) destroySurfaces() {
	dev := fc.device
	for _, v := range fc.views {
		dev.DestroyView(v)
	}
	for _, t := range fc.textures {
		dev.DestroyTexture(t)
	}
}

func (fc *frameContext) hudLines() []string {
	cfg := fc.cfg
	lines := []string{
		fmt.Sprintf("mode: %s", cfg.mode),
		fmt.Sprintf("f/%.1f  %.0f mm  focus %.2f m", cfg.fStop, cfg.focalLength, cfg.focusDistance),
		fmt.Sprintf("sensor %.1f mm  max radius %.0f", cfg.sensorWidth, cfg.maxRadius),
	}
	if cfg.preset >= 0 {
		lines = append(lines, fmt.Sprintf("preset %d", cfg.preset))
	}
	if cfg.forceCoC > 0 {
		lines = append(lines, fmt.Sprintf("forced CoC %.1f", cfg.forceCoC))
	}
	return lines
}

func (fc *frameContext) summary() {
	cfg := fc.cfg
	p := message.NewPrinter(language.English)
	if fc.elapsed == 0 {
		p.Printf("wrote %s: %d x %d, %d pixels, mode %s\n", cfg.output, cfg.width, cfg.height, cfg.width*cfg.height, cfg.mode)
		return
	}
	perFrame := fc.elapsed / time.Duration(cfg.frames)
	p.Printf("wrote %s: %d x %d, %d pixels, mode %s on %s\n", cfg.output, cfg.width, cfg.height, cfg.width*cfg.height, cfg.mode, fc.device.Name())
	p.Printf("%d frames in %v, %v per frame, %.1f Mpixel/s\n",
		cfg.frames, fc.elapsed.Round(time.Microsecond), perFrame.Round(time.Microsecond),
		float64(cfg.width*cfg.height)*float64(cfg.frames)/fc.elapsed.Seconds()/1e6)
}
