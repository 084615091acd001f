package hooks

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Load builds a registry from builtins followed by every Go script in dir,
// in file name order. Each script runs in its own interpreter and may define
// any of:
//
//	func OnBoot()                          or func OnBoot() error
//	func OnInput(string) string            or func OnInput(string) (string, error)
//	func OnOutput(string) string           or func OnOutput(string) (string, error)
//
// Scripts that fail to load are recorded in Failures and skipped. A missing
// dir is not an error.
func Load(dir string, logger *slog.Logger, builtins ...Plugin) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry(builtins...)
	r.logger = logger

	if dir == "" {
		return r, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return r, fmt.Errorf("reading plugin dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".go" || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	for _, name := range files {
		p, err := loadScript(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("plugin skipped", "file", name, "error", err)
			r.failures = append(r.failures, Failure{Source: name, Err: err})
			continue
		}
		if p.empty() {
			logger.Debug("plugin has no hooks", "file", name)
			continue
		}
		p.register(r)
		logger.Debug("plugin loaded", "name", p.name)
	}
	return r, nil
}

// scriptPlugin exposes the entry points found in one interpreted script.
type scriptPlugin struct {
	name     string
	onBoot   bootFunc
	onInput  transformFunc
	onOutput transformFunc
}

func (p *scriptPlugin) Name() string { return p.name }

func (p *scriptPlugin) empty() bool {
	return p.onBoot == nil && p.onInput == nil && p.onOutput == nil
}

// register adds only the entry points the script defines.
func (p *scriptPlugin) register(r *Registry) {
	if p.onBoot != nil {
		r.boot = append(r.boot, bootEntry{name: p.name, fn: p.onBoot})
	}
	if p.onInput != nil {
		r.input = append(r.input, transformEntry{name: p.name, fn: p.onInput})
	}
	if p.onOutput != nil {
		r.output = append(r.output, transformEntry{name: p.name, fn: p.onOutput})
	}
}

func loadScript(path string) (*scriptPlugin, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parser.ParseFile(token.NewFileSet(), path, src, parser.PackageClauseOnly)
	if err != nil {
		return nil, fmt.Errorf("parsing package clause: %w", err)
	}
	pkg := f.Name.Name

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading stdlib: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("evaluating: %w", err)
	}

	p := &scriptPlugin{name: strings.TrimSuffix(filepath.Base(path), ".go")}

	if v, err := i.Eval(pkg + ".OnBoot"); err == nil {
		switch fn := v.Interface().(type) {
		case func():
			p.onBoot = func(context.Context) error { fn(); return nil }
		case func() error:
			p.onBoot = func(context.Context) error { return fn() }
		default:
			return nil, fmt.Errorf("OnBoot has unsupported signature %T", fn)
		}
	}
	if v, err := i.Eval(pkg + ".OnInput"); err == nil {
		fn, err := adaptTransform("OnInput", v.Interface())
		if err != nil {
			return nil, err
		}
		p.onInput = fn
	}
	if v, err := i.Eval(pkg + ".OnOutput"); err == nil {
		fn, err := adaptTransform("OnOutput", v.Interface())
		if err != nil {
			return nil, err
		}
		p.onOutput = fn
	}
	return p, nil
}

func adaptTransform(entry string, v any) (transformFunc, error) {
	switch fn := v.(type) {
	case func(string) string:
		return func(_ context.Context, s string) (string, error) { return fn(s), nil }, nil
	case func(string) (string, error):
		return func(_ context.Context, s string) (string, error) { return fn(s) }, nil
	}
	return nil, fmt.Errorf("%s has unsupported signature %T", entry, v)
}
