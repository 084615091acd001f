package engine

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultKillGrace = 3 * time.Second
	stderrTailSize   = 4 << 10
)

// HealthChecker is consulted once per output fragment and may block to let
// the host recover.
type HealthChecker interface {
	CheckHealth(ctx context.Context)
}

// Local runs a llama.cpp style CLI driver as a child process and streams its
// standard output.
type Local struct {
	driverDir string
	health    HealthChecker
	killGrace time.Duration
	logger    *slog.Logger
}

// NewLocal creates a local engine. Drivers found under driverDir without the
// executable bit are repaired before launch. health may be nil.
func NewLocal(driverDir string, health HealthChecker) *Local {
	return &Local{
		driverDir: driverDir,
		health:    health,
		killGrace: defaultKillGrace,
		logger:    slog.Default(),
	}
}

// Stream validates req, starts the driver and returns its output as it is
// produced. Stdout is split on newlines; a trailing partial line is
// delivered when the driver exits.
func (l *Local) Stream(ctx context.Context, req Request) *Stream {
	exe, err := Preflight(req, l.driverDir)
	if err != nil {
		return failedStream(err)
	}

	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.Command(exe, req.Args()...)
	setProcessGroup(cmd)
	stderr := &tailBuffer{max: stderrTailSize}
	cmd.Stderr = stderr
	cmd.WaitDelay = l.killGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return failedStream(newError(ErrProcess, ReasonSpawnFailure, exe, err))
	}
	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, fs.ErrPermission) {
			return failedStream(newError(ErrConfiguration, ReasonPermissionDenied, exe, err))
		}
		return failedStream(newError(ErrProcess, ReasonSpawnFailure, exe, err))
	}

	l.logger.Debug("engine started", "pid", cmd.Process.Pid, "driver", exe)

	s := newStream(cancel, cmd.Process.Pid)
	go l.pump(ctx, s, cmd, stdout, stderr)
	return s
}

func (l *Local) pump(ctx context.Context, s *Stream, cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer) {
	defer close(s.done)
	defer close(s.fragments)

	exited := make(chan struct{})
	go l.watch(ctx, cmd, exited)

	var readErr error
	r := bufio.NewReader(stdout)
read:
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if l.health != nil {
				l.health.CheckHealth(ctx)
			}
			select {
			case s.fragments <- Fragment{Text: line}:
			case <-ctx.Done():
				break read
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	waitErr := cmd.Wait()
	close(exited)
	l.logger.Debug("engine exited", "pid", cmd.Process.Pid, "err", waitErr)

	if ctx.Err() != nil {
		return
	}

	var final error
	switch {
	case readErr != nil:
		final = newError(ErrProcess, ReasonReadFailure, "", readErr)
	case waitErr != nil:
		final = newError(ErrProcess, ReasonNonZeroExit, strings.TrimSpace(stderr.String()), waitErr)
	}
	if final == nil {
		return
	}
	select {
	case s.fragments <- Fragment{Err: final}:
	case <-ctx.Done():
	}
}

// watch terminates the driver's process group when ctx is cancelled before
// the driver exits, escalating to a kill after the grace period.
func (l *Local) watch(ctx context.Context, cmd *exec.Cmd, exited <-chan struct{}) {
	select {
	case <-exited:
		return
	case <-ctx.Done():
	}

	if err := terminate(cmd); err != nil {
		l.logger.Debug("engine terminate failed", "pid", cmd.Process.Pid, "error", err)
	}

	t := time.NewTimer(l.killGrace)
	defer t.Stop()
	select {
	case <-exited:
	case <-t.C:
		l.logger.Warn("engine ignored terminate, killing", "pid", cmd.Process.Pid)
		if err := kill(cmd); err != nil {
			l.logger.Debug("engine kill failed", "pid", cmd.Process.Pid, "error", err)
		}
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
