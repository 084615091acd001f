// Package chat runs one conversational exchange end to end: input hooks,
// memory, the engine, output hooks, and back into memory.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/void/internal/engine"
	"github.com/kalambet/void/internal/hooks"
	"github.com/kalambet/void/internal/memory"
)

// Reply is the outcome of one exchange.
type Reply struct {
	// Text is the hook-transformed completion. On failure it holds whatever
	// the engine produced before the error, possibly nothing.
	Text       string
	Err        error
	DurationMs int64
}

// Content is the text to show the user: the completion, followed by a
// readable description of the failure when there was one.
func (r Reply) Content() string {
	if r.Err == nil {
		return r.Text
	}
	msg := engine.Describe(r.Err)
	if r.Text == "" {
		return msg
	}
	return strings.TrimRight(r.Text, "\n") + "\n" + msg
}

// Service dispatches user input to the engine.
type Service struct {
	engine   engine.Engine
	hooks    *hooks.Registry
	template engine.Request
	logger   *slog.Logger
}

// NewService creates a Service. template carries the paths and sampling
// parameters copied into every engine request; hooks may be nil.
func NewService(eng engine.Engine, reg *hooks.Registry, template engine.Request, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:   eng,
		hooks:    reg,
		template: template,
		logger:   logger,
	}
}

// Send runs one exchange against mem and returns the reply.
func (s *Service) Send(ctx context.Context, mem *memory.Memory, input string) Reply {
	return s.SendStream(ctx, mem, input, nil)
}

// SendStream is Send with raw engine fragments passed to onFragment as they
// arrive, before output hooks run. onFragment may be nil.
//
// The exchange:
//  1. Run input hooks over the user text and record the user turn
//  2. Assemble the prompt from memory and stream it through the engine
//  3. Run output hooks over the collected text, complete or partial
//  4. Record the assistant turn when there is text to record
func (s *Service) SendStream(ctx context.Context, mem *memory.Memory, input string, onFragment func(string)) (reply Reply) {
	start := time.Now()
	defer func() {
		reply.DurationMs = time.Since(start).Milliseconds()
	}()

	input = s.hooks.Run(ctx, hooks.StageInput, input)
	mem.Append(memory.RoleUser, input)

	req := s.template
	req.Prompt = mem.AssemblePrompt()
	req.Messages = messages(mem)

	stream := s.engine.Stream(ctx, req)
	defer stream.Close()

	var sb strings.Builder
	var streamErr error
	for f := range stream.Fragments() {
		if f.Err != nil {
			streamErr = f.Err
			break
		}
		sb.WriteString(f.Text)
		if onFragment != nil {
			onFragment(f.Text)
		}
	}
	stream.Close()

	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}
	if streamErr != nil {
		s.logger.Warn("inference failed", "session", mem.ID(), "error", streamErr)
	}

	text := sb.String()
	if text != "" {
		text = s.hooks.Run(ctx, hooks.StageOutput, text)
	}
	if text != "" {
		mem.Append(memory.RoleAssistant, text)
	}

	return Reply{Text: text, Err: streamErr}
}

// messages renders mem as chat messages for remote engines.
func messages(mem *memory.Memory) []engine.Message {
	turns := mem.Turns()
	out := make([]engine.Message, 0, len(turns)+1)
	out = append(out, engine.Message{Role: memory.RoleSystem, Content: mem.SystemPrompt()})
	for _, t := range turns {
		out = append(out, engine.Message{Role: t.Role, Content: t.Text})
	}
	return out
}

// TransformsOutput reports whether output hooks may rewrite completions, in
// which case raw fragments differ from the final reply.
func (s *Service) TransformsOutput() bool {
	return s.hooks.HasStage(hooks.StageOutput)
}
