// Command dofshaders writes the depth of field kernels in a target shading
// language, for inspection or for loading by other runtimes.
//
// Usage:
//
//	dofshaders -lang spirv -out shaders/
//	dofshaders -lang hlsl -kernel resolve
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/gogpu/dof/internal/kernels"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "dofshaders:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	langs := maps.Keys(targets)
	slices.Sort(langs)

	fs := flag.NewFlagSet("dofshaders", flag.ContinueOnError)
	lang := fs.String("lang", "spirv", "output language: "+strings.Join(langs, ", "))
	name := fs.String("kernel", "all", "kernel entry point, or all")
	out := fs.String("out", "", "output directory (default: stdout, one kernel only)")
	verbose := fs.Bool("v", false, "log each kernel written")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	tgt, ok := targets[*lang]
	if !ok {
		return fmt.Errorf("unknown language %q (want one of %s)", *lang, strings.Join(langs, ", "))
	}
	selected, err := selectKernels(*name)
	if err != nil {
		return err
	}

	if *out == "" {
		if len(selected) != 1 {
			return errors.New("writing several kernels needs -out")
		}
		code, err := tgt.translate(selected[0])
		if err != nil {
			return err
		}
		_, err = stdout.Write(code)
		return err
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	for _, k := range selected {
		code, err := tgt.translate(k)
		if err != nil {
			return err
		}
		path := filepath.Join(*out, k.EntryPoint+tgt.ext)
		if err := os.WriteFile(path, code, 0o644); err != nil {
			return err
		}
		log.Info("wrote kernel", "kernel", k.EntryPoint, "lang", *lang, "path", path, "bytes", len(code))
	}
	return nil
}

func selectKernels(name string) ([]*kernels.Kernel, error) {
	if name == "all" {
		return kernels.All(), nil
	}
	k, ok := kernels.Lookup(name)
	if !ok {
		names := make([]string, 0, len(kernels.All()))
		for _, k := range kernels.All() {
			names = append(names, k.EntryPoint)
		}
		return nil, fmt.Errorf("unknown kernel %q (want one of %s)", name, strings.Join(names, ", "))
	}
	return []*kernels.Kernel{k}, nil
}
