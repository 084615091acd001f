package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestGuard(sample HealthSample, sampleErr error) (*Guard, *[]time.Duration) {
	var slept []time.Duration
	g := New(RoleWorker)
	g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	g.sample = func() (HealthSample, error) { return sample, sampleErr }
	g.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }
	return g, &slept
}

func TestReservedCores(t *testing.T) {
	tests := []struct {
		cores int
		want  int
	}{
		{1, 0},
		{2, 0},
		{3, 1},
		{4, 1},
		{5, 2},
		{64, 2},
	}
	for _, tt := range tests {
		if got := ReservedCores(tt.cores); got != tt.want {
			t.Errorf("ReservedCores(%d) = %d, want %d", tt.cores, got, tt.want)
		}
	}
}

func TestCheckHealth_UnderThreshold(t *testing.T) {
	g, slept := newTestGuard(HealthSample{MemoryUsedPercent: 42}, nil)
	g.CheckHealth(context.Background())
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no pause", *slept)
	}
}

func TestCheckHealth_AtThresholdDoesNotPause(t *testing.T) {
	g, slept := newTestGuard(HealthSample{MemoryUsedPercent: 90}, nil)
	g.CheckHealth(context.Background())
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no pause at exactly 90%%", *slept)
	}
}

func TestCheckHealth_OverThresholdPauses(t *testing.T) {
	g, slept := newTestGuard(HealthSample{MemoryUsedPercent: 95.5}, nil)
	g.CheckHealth(context.Background())
	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Errorf("slept %v, want one 2s pause", *slept)
	}
}

func TestCheckHealth_SamplerUnavailable(t *testing.T) {
	g, slept := newTestGuard(HealthSample{}, errors.New("sandboxed"))
	g.CheckHealth(context.Background())
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no-op when sampling fails", *slept)
	}
}

func TestSleepCtx_CancelledEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepCtx(ctx, 5*time.Second)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sleepCtx took %v after cancellation", elapsed)
	}
}

// Worker ignition is not exercised here because it would pin the test
// binary's own affinity.
func TestIgniteServerNeverFails(t *testing.T) {
	g := New(RoleServer)
	g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	g.Ignite()
	if g.Role() != RoleServer {
		t.Errorf("Role() = %q, want %q", g.Role(), RoleServer)
	}
}

func TestParseMeminfo_CacheCountsAsAvailable(t *testing.T) {
	const meminfo = `MemTotal:       16000000 kB
MemFree:          500000 kB
MemAvailable:   14000000 kB
Buffers:          100000 kB
Cached:         13000000 kB
SwapCached:            0 kB
`
	sample, ok, err := parseMeminfo(strings.NewReader(meminfo))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("ok = false, want a sample")
	}
	if sample.MemoryUsedPercent < 12 || sample.MemoryUsedPercent > 13 {
		t.Errorf("MemoryUsedPercent = %.2f, want 12.5 with a large page cache", sample.MemoryUsedPercent)
	}
}

func TestParseMeminfo_MissingAvailable(t *testing.T) {
	const meminfo = "MemTotal: 16000000 kB\nMemFree: 500000 kB\nCached: 13000000 kB\n"
	_, ok, err := parseMeminfo(strings.NewReader(meminfo))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("ok = true without MemAvailable, want fallback")
	}
}

func TestParseMeminfo_Malformed(t *testing.T) {
	_, ok, err := parseMeminfo(strings.NewReader("MemTotal: lots kB\n"))
	if err == nil || ok {
		t.Errorf("ok = %v, err = %v, want a parse error", ok, err)
	}
}
