// Package hooks runs ordered, fault-isolated transforms over prompts and
// completions. Plugins are registered once; the registry is read-only
// afterwards.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Stage names a point in the request path where hooks run.
type Stage string

const (
	StageBoot   Stage = "on_boot"
	StageInput  Stage = "on_input"
	StageOutput Stage = "on_output"
)

// Plugin is anything that can be registered. A plugin takes part in a
// stage by also implementing BootHook, InputHook or OutputHook.
type Plugin interface {
	Name() string
}

// BootHook runs once at startup.
type BootHook interface {
	OnBoot(ctx context.Context) error
}

// InputHook transforms user text before it reaches memory and the engine.
type InputHook interface {
	OnInput(ctx context.Context, text string) (string, error)
}

// OutputHook transforms engine output before it is recorded and returned.
type OutputHook interface {
	OnOutput(ctx context.Context, text string) (string, error)
}

type bootFunc func(ctx context.Context) error

type transformFunc func(ctx context.Context, text string) (string, error)

type bootEntry struct {
	name string
	fn   bootFunc
}

type transformEntry struct {
	name string
	fn   transformFunc
}

// Failure records a plugin source that could not be loaded.
type Failure struct {
	Source string
	Err    error
}

// Registry holds hooks per stage in registration order.
type Registry struct {
	boot     []bootEntry
	input    []transformEntry
	output   []transformEntry
	failures []Failure
	logger   *slog.Logger
	bootOnce sync.Once
}

// NewRegistry registers plugins in argument order.
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, p := range plugins {
		r.register(p)
	}
	return r
}

func (r *Registry) register(p Plugin) {
	name := p.Name()
	if h, ok := p.(BootHook); ok {
		r.boot = append(r.boot, bootEntry{name: name, fn: h.OnBoot})
	}
	if h, ok := p.(InputHook); ok {
		r.input = append(r.input, transformEntry{name: name, fn: h.OnInput})
	}
	if h, ok := p.(OutputHook); ok {
		r.output = append(r.output, transformEntry{name: name, fn: h.OnOutput})
	}
}

// Run folds data through the stage's hooks. A hook that fails or panics is
// skipped and the last good value carries on to the next hook. Run never
// fails; with no hooks it returns data unchanged.
func (r *Registry) Run(ctx context.Context, stage Stage, data string) string {
	if r == nil {
		return data
	}
	var entries []transformEntry
	switch stage {
	case StageInput:
		entries = r.input
	case StageOutput:
		entries = r.output
	default:
		return data
	}

	for _, e := range entries {
		out, err := callTransform(ctx, e.fn, data)
		if err != nil {
			r.logger.Warn("hook failed", "plugin", e.name, "stage", string(stage), "error", err)
			continue
		}
		data = out
	}
	return data
}

// Boot runs the boot hooks. Only the first call has any effect.
func (r *Registry) Boot(ctx context.Context) {
	if r == nil {
		return
	}
	r.bootOnce.Do(func() {
		for _, e := range r.boot {
			if err := callBoot(ctx, e.fn); err != nil {
				r.logger.Warn("hook failed", "plugin", e.name, "stage", string(StageBoot), "error", err)
			}
		}
	})
}

// Names lists the plugins registered for stage, in order.
func (r *Registry) Names(stage Stage) []string {
	if r == nil {
		return nil
	}
	var names []string
	switch stage {
	case StageBoot:
		for _, e := range r.boot {
			names = append(names, e.name)
		}
	case StageInput:
		for _, e := range r.input {
			names = append(names, e.name)
		}
	case StageOutput:
		for _, e := range r.output {
			names = append(names, e.name)
		}
	}
	return names
}

// HasStage reports whether any hook is registered for stage.
func (r *Registry) HasStage(stage Stage) bool {
	return len(r.Names(stage)) > 0
}

// Failures returns the plugin sources that were skipped at load time.
func (r *Registry) Failures() []Failure {
	if r == nil {
		return nil
	}
	return r.failures
}

func callTransform(ctx context.Context, fn transformFunc, data string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, data)
}

func callBoot(ctx context.Context, fn bootFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// TrimOutput is a built-in plugin that strips surrounding whitespace from
// completions.
type TrimOutput struct{}

func (TrimOutput) Name() string { return "trim-output" }

func (TrimOutput) OnOutput(_ context.Context, text string) (string, error) {
	return strings.TrimSpace(text), nil
}
