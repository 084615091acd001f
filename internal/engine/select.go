package engine

import (
	"fmt"
	"strings"
)

// Config holds the parameters needed to pick an engine.
type Config struct {
	Mode      string // "local" or "api"
	DriverDir string
	Health    HealthChecker

	RemoteBaseURL string
	RemoteAPIKey  string
	RemoteModel   string
}

// New returns the engine for cfg.Mode.
func New(cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", "local":
		return NewLocal(cfg.DriverDir, cfg.Health), nil
	case "api":
		if cfg.RemoteAPIKey == "" {
			return nil, newError(ErrConfiguration, ReasonMissingAPIKey, "set VOID_REMOTE_API_KEY or use local mode", nil)
		}
		r := NewRemote(cfg.RemoteBaseURL, cfg.RemoteAPIKey, cfg.RemoteModel)
		r.health = cfg.Health
		return r, nil
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
