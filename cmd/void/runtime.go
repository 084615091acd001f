package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/void/internal/chat"
	"github.com/kalambet/void/internal/config"
	"github.com/kalambet/void/internal/engine"
	"github.com/kalambet/void/internal/guard"
	"github.com/kalambet/void/internal/hooks"
	"github.com/kalambet/void/internal/memory"
	"github.com/kalambet/void/internal/storage"
)

// workDir is the root under which models/, drivers/, plugins/ and logs/ live.
const workDir = "."

// runtime is the wiring shared by start, chat and ask.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	guard   *guard.Guard
	hooks   *hooks.Registry
	engine  engine.Engine
	service *chat.Service
	request engine.Request
	store   *storage.Store
}

func setupLogging(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

// engineRequest is the request template built from cfg. Prompt and Messages
// are filled per exchange.
func engineRequest(cfg config.Config) engine.Request {
	return engine.Request{
		ExecutablePath: cfg.Engine.DriverPath,
		ModelPath:      cfg.Engine.ModelPath,
		Model:          cfg.Remote.Model,
		ContextSize:    cfg.Engine.CtxSize,
		Threads:        cfg.Engine.Threads,
		GPULayers:      cfg.Engine.GPULayers,
		Temperature:    cfg.Engine.Temperature,
		MaxTokens:      cfg.Engine.MaxTokens,
	}
}

func builtinPlugins(cmd *cobra.Command) []hooks.Plugin {
	if trim, _ := cmd.Flags().GetBool("trim-output"); trim {
		return []hooks.Plugin{hooks.TrimOutput{}}
	}
	return nil
}

// newRuntime loads config and assembles the engine, hooks and chat service.
// Storage is opened only when withStore is set; the caller closes it.
func newRuntime(ctx context.Context, cmd *cobra.Command, role guard.Role, withStore bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := setupLogging(cfg.Log.Level)

	g := guard.New(role)
	g.Ignite()

	if err := engine.EnsureDirs(workDir, stderr); err != nil {
		logger.Warn("preparing directories", "error", err)
	}

	reg, err := hooks.Load(cfg.Plugins.Dir, logger, builtinPlugins(cmd)...)
	if err != nil {
		logger.Warn("loading plugins", "error", err)
	}
	reg.Boot(ctx)

	eng, err := engine.New(engine.Config{
		Mode:          cfg.Engine.Mode,
		DriverDir:     cfg.Engine.DriverDir,
		Health:        g,
		RemoteBaseURL: cfg.Remote.BaseURL,
		RemoteAPIKey:  cfg.Remote.APIKey,
		RemoteModel:   cfg.Remote.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting engine: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		guard:   g,
		hooks:   reg,
		engine:  eng,
		request: engineRequest(cfg),
	}
	rt.service = chat.NewService(eng, reg, rt.request, logger)

	if withStore {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		rt.store = store
	}
	return rt, nil
}

// memoryOptions is the template for every conversation window.
func (rt *runtime) memoryOptions() memory.Options {
	opts := memory.Options{
		SystemPrompt: rt.cfg.Memory.SystemPrompt,
		MaxChars:     rt.cfg.Memory.MaxChars,
		LogDir:       filepath.Join(workDir, "logs"),
		Logger:       rt.logger,
	}
	if rt.store != nil {
		opts.Recorder = rt.store
	}
	return opts
}

func (rt *runtime) sessionTTL() time.Duration {
	ttl, err := time.ParseDuration(rt.cfg.Memory.SessionTTL)
	if err != nil {
		rt.logger.Warn("invalid session TTL, using default 30m", "value", rt.cfg.Memory.SessionTTL, "error", err)
		return 30 * time.Minute
	}
	return ttl
}

// checkLocal runs the launch checks in local mode so configuration problems
// surface before the first prompt.
func (rt *runtime) checkLocal() error {
	if rt.cfg.Engine.Mode != config.ModeLocal {
		return nil
	}
	_, err := engine.Preflight(rt.request, rt.cfg.Engine.DriverDir)
	return err
}

func (rt *runtime) close() {
	if rt.store == nil {
		return
	}
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("closing storage", "error", err)
	}
}
