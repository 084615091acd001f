package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "VOID_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_connections", typ: kInt, env: "VOID_SERVER_MAX_CONNECTIONS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConnections = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConnections },
	},
	{
		key: "server.api_token", typ: kString, env: "VOID_SERVER_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "engine.mode", typ: kString, env: "VOID_ENGINE_MODE",
		apply:   func(cfg *Config, v any) { cfg.Engine.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Mode },
	},
	{
		key: "engine.driver_path", typ: kString, env: "VOID_ENGINE_DRIVER_PATH",
		apply:   func(cfg *Config, v any) { cfg.Engine.DriverPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.DriverPath },
	},
	{
		key: "engine.driver_dir", typ: kString, env: "VOID_ENGINE_DRIVER_DIR",
		apply:   func(cfg *Config, v any) { cfg.Engine.DriverDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.DriverDir },
	},
	{
		key: "engine.model_path", typ: kString, env: "VOID_ENGINE_MODEL_PATH",
		apply:   func(cfg *Config, v any) { cfg.Engine.ModelPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.ModelPath },
	},
	{
		key: "engine.gpu_layers", typ: kInt, env: "VOID_ENGINE_GPU_LAYERS",
		apply:   func(cfg *Config, v any) { cfg.Engine.GPULayers = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.GPULayers },
	},
	{
		key: "engine.ctx_size", typ: kInt, env: "VOID_ENGINE_CTX_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Engine.CtxSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.CtxSize },
	},
	{
		key: "engine.threads", typ: kInt, env: "VOID_ENGINE_THREADS",
		apply:   func(cfg *Config, v any) { cfg.Engine.Threads = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.Threads },
	},
	{
		key: "engine.temperature", typ: kFloat, env: "VOID_ENGINE_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Engine.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Engine.Temperature },
	},
	{
		key: "engine.max_tokens", typ: kInt, env: "VOID_ENGINE_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Engine.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.MaxTokens },
	},
	{
		key: "remote.base_url", typ: kString, env: "VOID_REMOTE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.BaseURL },
	},
	{
		key: "remote.model", typ: kString, env: "VOID_REMOTE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Remote.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.Model },
	},
	{
		key: "remote.api_key", typ: kString, env: "VOID_REMOTE_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Remote.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.APIKey },
	},
	{
		key: "memory.max_chars", typ: kInt, env: "VOID_MEMORY_MAX_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Memory.MaxChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.MaxChars },
	},
	{
		key: "memory.system_prompt", typ: kString, env: "VOID_MEMORY_SYSTEM_PROMPT",
		apply:   func(cfg *Config, v any) { cfg.Memory.SystemPrompt = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.SystemPrompt },
	},
	{
		key: "memory.session_ttl", typ: kString, env: "VOID_MEMORY_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Memory.SessionTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.SessionTTL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VOID_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "plugins.dir", typ: kString, env: "VOID_PLUGINS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Plugins.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Plugins.Dir },
	},
	{
		key: "log.level", typ: kString, env: "VOID_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
