package main

import (
	"errors"
	"fmt"
	"strings"

	"honnef.co/go/safeish"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/msl"

	"github.com/gogpu/dof/internal/kernels"
)

// target is an output shading language.
type target struct {
	ext       string
	translate func(*kernels.Kernel) ([]byte, error)
}

var targets = map[string]target{
	"spirv": {ext: ".spv", translate: toSPIRV},
	"hlsl":  {ext: ".hlsl", translate: toHLSL},
	"msl":   {ext: ".metal", translate: toMSL},
	"glsl":  {ext: ".comp", translate: toGLSL},
	"wgsl":  {ext: ".wgsl", translate: toWGSL},
}

func toSPIRV(k *kernels.Kernel) ([]byte, error) {
	words, err := kernels.SPIRV(k.Source)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), safeish.SliceCast[[]byte](words)...), nil
}

func toWGSL(k *kernels.Kernel) ([]byte, error) {
	return []byte(k.Source), nil
}

func toHLSL(k *kernels.Kernel) ([]byte, error) {
	m, err := lower(k)
	if err != nil {
		return nil, err
	}
	src, _, err := hlsl.Compile(m, hlsl.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("%s: hlsl: %w", k.EntryPoint, err)
	}
	return []byte(src), nil
}

func toMSL(k *kernels.Kernel) ([]byte, error) {
	m, err := lower(k)
	if err != nil {
		return nil, err
	}
	src, _, err := msl.Compile(m, msl.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("%s: msl: %w", k.EntryPoint, err)
	}
	return []byte(src), nil
}

func toGLSL(k *kernels.Kernel) ([]byte, error) {
	m, err := lower(k)
	if err != nil {
		return nil, err
	}
	opts := glsl.DefaultOptions()
	opts.LangVersion = glsl.Version430 // first desktop version with compute
	opts.EntryPoint = k.EntryPoint
	src, _, err := glsl.Compile(m, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: glsl: %w", k.EntryPoint, err)
	}
	return []byte(src), nil
}

// lower parses, lowers and validates a kernel's WGSL.
func lower(k *kernels.Kernel) (*ir.Module, error) {
	ast, err := naga.Parse(k.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k.EntryPoint, err)
	}
	m, err := naga.LowerWithSource(ast, k.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: lower: %w", k.EntryPoint, err)
	}
	verrs, err := naga.Validate(m)
	if err != nil {
		return nil, fmt.Errorf("%s: validate: %w", k.EntryPoint, err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, e := range verrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("%s: validate: %w", k.EntryPoint, errors.New(strings.Join(msgs, "; ")))
	}
	return m, nil
}
