package config

import (
	"fmt"
	"strings"
)

// Mode values for EngineConfig.Mode.
const (
	ModeLocal = "local"
	ModeAPI   = "api"
)

type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	Remote  RemoteConfig
	Memory  MemoryConfig
	Storage StorageConfig
	Plugins PluginsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port           int
	MaxConnections int
	APIToken       string
}

// EngineConfig describes the local inference driver and the numeric
// parameters passed to it on every call.
type EngineConfig struct {
	Mode        string
	DriverPath  string
	DriverDir   string
	ModelPath   string
	GPULayers   int
	CtxSize     int
	Threads     int
	Temperature float64
	MaxTokens   int
}

type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type MemoryConfig struct {
	MaxChars     int
	SystemPrompt string
	SessionTTL   string
}

type StorageConfig struct {
	DataDir string
}

type PluginsConfig struct {
	Dir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8000,
			MaxConnections: 16,
		},
		Engine: EngineConfig{
			Mode:        ModeLocal,
			DriverPath:  "drivers/llama-cli",
			DriverDir:   "drivers",
			ModelPath:   "models/llama-3-8b.gguf",
			GPULayers:   33,
			CtxSize:     4096,
			Threads:     8,
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Remote: RemoteConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Memory: MemoryConfig{
			MaxChars:     1500,
			SystemPrompt: "You are VOID, an advanced AI chassis.",
			SessionTTL:   "30m",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Plugins: PluginsConfig{
			Dir: "plugins",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file and environment
// variables. Environment variables (VOID_*) override file values. Secrets
// (remote API key, server API token) are only read from the environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	cfg.Engine.Mode = strings.ToLower(strings.TrimSpace(cfg.Engine.Mode))
	switch cfg.Engine.Mode {
	case ModeLocal:
	case ModeAPI:
		if cfg.Remote.APIKey == "" {
			return Config{}, fmt.Errorf("missing required config: remote API key. " +
				"Set it via environment variable VOID_REMOTE_API_KEY or switch engine.mode to local")
		}
	default:
		return Config{}, fmt.Errorf("invalid engine.mode %q: want %q or %q", cfg.Engine.Mode, ModeLocal, ModeAPI)
	}

	return cfg, nil
}
