// Package memory keeps a bounded rolling window of conversation turns and
// assembles it into prompts. Every turn is also written to a per-session log
// file and, optionally, a durable recorder.
package memory

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxChars     = 1500
	DefaultSystemPrompt = "You are VOID, an advanced AI chassis."
)

// Recorder persists turns beyond the in-memory window.
type Recorder interface {
	RecordTurn(sessionID string, t Turn) error
}

// Options configure a Memory.
type Options struct {
	SessionID    string
	SystemPrompt string
	MaxChars     int
	LogDir       string // empty disables the session log file
	Recorder     Recorder
	Logger       *slog.Logger
}

// Memory is one conversation's window. Safe for concurrent use.
type Memory struct {
	id           string
	systemPrompt string
	maxChars     int
	started      time.Time
	logPath      string
	recorder     Recorder
	logger       *slog.Logger

	mu      sync.Mutex
	turns   []Turn
	total   int
	logFile *os.File
	closed  bool
}

// New creates an empty conversation window.
func New(opts Options) *Memory {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Memory{
		id:           opts.SessionID,
		systemPrompt: opts.SystemPrompt,
		maxChars:     opts.MaxChars,
		started:      time.Now(),
		recorder:     opts.Recorder,
		logger:       opts.Logger,
	}
	if opts.LogDir != "" {
		m.logPath = filepath.Join(opts.LogDir, logFileName(m.started, m.id))
	}
	return m
}

func logFileName(started time.Time, id string) string {
	name := "session_" + started.Format("20060102-150405")
	if id != "" {
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		name += "_" + short
	}
	return name + ".log"
}

// ID returns the session id the window was created with.
func (m *Memory) ID() string { return m.id }

// LogPath returns the session log file path, or "" when logging is off.
func (m *Memory) LogPath() string { return m.logPath }

// Append records a new turn and evicts the oldest turns until the window
// fits in MaxChars. A single turn larger than MaxChars is kept on its own.
func (m *Memory) Append(role, text string) Turn {
	t := Turn{Role: role, Text: text, Timestamp: time.Now()}

	m.mu.Lock()
	m.turns = append(m.turns, t)
	m.total += t.Len()
	for m.total > m.maxChars && len(m.turns) > 1 {
		m.total -= m.turns[0].Len()
		m.turns[0] = Turn{}
		m.turns = m.turns[1:]
	}
	m.writeLog(t)
	m.mu.Unlock()

	if m.recorder != nil && m.id != "" {
		if err := m.recorder.RecordTurn(m.id, t); err != nil {
			m.logger.Debug("recording turn failed", "session", m.id, "error", err)
		}
	}
	return t
}

// writeLog appends t to the session log. Must hold m.mu.
func (m *Memory) writeLog(t Turn) {
	if m.logPath == "" || m.closed {
		return
	}
	if m.logFile == nil {
		f, err := os.OpenFile(m.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			m.logger.Debug("opening session log failed", "path", m.logPath, "error", err)
			return
		}
		m.logFile = f
	}
	if _, err := m.logFile.WriteString(t.logLine()); err != nil {
		m.logger.Debug("writing session log failed", "path", m.logPath, "error", err)
	}
}

// AssemblePrompt renders the system prompt followed by the retained turns
// and a trailing cue for the assistant.
func (m *Memory) AssemblePrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "System: %s\n", m.systemPrompt)
	for _, t := range m.turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.label(), t.Text)
	}
	sb.WriteString("Assistant:")
	return sb.String()
}

// SystemPrompt returns the prompt header.
func (m *Memory) SystemPrompt() string { return m.systemPrompt }

// Turns returns a copy of the retained turns, oldest first.
func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len returns the number of retained turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// TotalChars returns the retained character count.
func (m *Memory) TotalChars() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Close releases the session log. Turns appended afterwards are still kept
// in the window but no longer logged.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.logFile == nil {
		return nil
	}
	err := m.logFile.Close()
	m.logFile = nil
	return err
}
