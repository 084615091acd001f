// Package guard throttles inference when the host runs low on memory and
// applies best-effort scheduling tweaks at startup. Nothing here is
// load-bearing: every failure degrades to a no-op.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"
)

// Role selects which startup tuning Ignite applies.
type Role string

const (
	// RoleServer raises priority only.
	RoleServer Role = "server"
	// RoleWorker raises priority and pins the process away from reserved cores.
	RoleWorker Role = "worker"
)

const (
	defaultThreshold = 90.0
	defaultCooldown  = 2 * time.Second
)

// errUnsupported is returned by platform hooks that have no implementation.
var errUnsupported = errors.New("not supported on this platform")

// HealthSample is a single host measurement.
type HealthSample struct {
	MemoryUsedPercent float64
}

// Guard is safe for concurrent use; it holds no mutable state.
type Guard struct {
	role      Role
	threshold float64
	cooldown  time.Duration
	logger    *slog.Logger

	sample func() (HealthSample, error)
	sleep  func(ctx context.Context, d time.Duration)
}

// New creates a Guard for the given role.
func New(role Role) *Guard {
	return &Guard{
		role:      role,
		threshold: defaultThreshold,
		cooldown:  defaultCooldown,
		logger:    slog.Default(),
		sample:    sampleHost,
		sleep:     sleepCtx,
	}
}

// Role returns the role the guard was created with.
func (g *Guard) Role() Role {
	return g.role
}

// Ignite applies startup tuning. Each step is advisory; failures are logged
// at debug level and discarded.
func (g *Guard) Ignite() {
	if err := raisePriority(); err != nil {
		g.logger.Debug("raising process priority failed", "error", err)
	}
	if g.role != RoleWorker {
		return
	}
	n := runtime.NumCPU()
	reserved := ReservedCores(n)
	if reserved == 0 {
		return
	}
	if err := pinAffinity(reserved, n); err != nil {
		g.logger.Debug("pinning cpu affinity failed", "reserved", reserved, "error", err)
		return
	}
	g.logger.Debug("cpu affinity set", "reserved", reserved, "cpus", n)
}

// ReservedCores returns how many low-numbered cores a worker leaves free
// for the rest of the system.
func ReservedCores(n int) int {
	switch {
	case n <= 2:
		return 0
	case n <= 4:
		return 1
	default:
		return 2
	}
}

// CheckHealth samples host memory and, when utilisation is above the
// threshold, logs a warning and pauses for the cooldown. It never fails; an
// unavailable sampler makes it a no-op. ctx cuts the pause short.
func (g *Guard) CheckHealth(ctx context.Context) {
	s, err := g.sample()
	if err != nil {
		return
	}
	if s.MemoryUsedPercent <= g.threshold {
		return
	}
	g.logger.Warn("host memory pressure, throttling",
		"memory_used_percent", s.MemoryUsedPercent,
		"cooldown", g.cooldown,
	)
	g.sleep(ctx, g.cooldown)
}

// Sample returns the current host measurement.
func (g *Guard) Sample() (HealthSample, error) {
	return g.sample()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
