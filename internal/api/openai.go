package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/void/internal/chat"
	"github.com/kalambet/void/internal/engine"
	"github.com/kalambet/void/internal/memory"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SessionHeader selects the conversation a request belongs to.
const SessionHeader = "X-Void-Session"

// ChatDeps holds dependencies for the OpenAI-compatible endpoint.
type ChatDeps struct {
	Service  *chat.Service
	Sessions *chat.Sessions
	Model    string // reported by /v1/models and used when a request names none
}

// NewOpenAIHandler returns an http.Handler implementing the OpenAI-compatible
// REST API on top of the chat service.
func NewOpenAIHandler(deps ChatDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/v1/models", handleModels(deps))
	r.Post("/v1/chat/completions", handleChatCompletions(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type modelList struct {
	Object string  `json:"object"`
	Data   []model `json:"data"`
}

func handleModels(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(modelList{
			Object: "list",
			Data:   []model{{ID: deps.Model, Object: "model", OwnedBy: "void"}},
		})
	}
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// text returns the message content, accepting both the plain string form
// and the array-of-parts form.
func (m chatMessage) text() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
	User     string        `json:"user,omitempty"`
}

type completionMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type completionChoice struct {
	Index        int                `json:"index"`
	Message      *completionMessage `json:"message,omitempty"`
	Delta        *completionMessage `json:"delta,omitempty"`
	FinishReason *string            `json:"finish_reason"`
}

type completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

const (
	finishStop  = "stop"
	finishError = "error"
)

func handleChatCompletions(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if len(req.Messages) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
			return
		}
		input, ok := lastUserMessage(req.Messages)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "messages must contain a user message")
			return
		}

		mem, release := selectSession(deps.Sessions, r, req.User)
		defer release()
		w.Header().Set(SessionHeader, mem.ID())

		out := completion{
			ID:      "chatcmpl-" + uuid.New().String(),
			Created: time.Now().Unix(),
			Model:   req.Model,
		}
		if out.Model == "" {
			out.Model = deps.Model
		}

		if req.Stream {
			streamCompletion(w, r, deps.Service, mem, input, out)
			return
		}

		reply := deps.Service.Send(r.Context(), mem, input)
		slog.Debug("chat completion", "session", mem.ID(), "duration_ms", reply.DurationMs, "error", reply.Err)

		finish := finishStop
		if reply.Err != nil {
			finish = finishError
		}
		out.Object = "chat.completion"
		out.Choices = []completionChoice{{
			Message:      &completionMessage{Role: memory.RoleAssistant, Content: reply.Content()},
			FinishReason: &finish,
		}}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// selectSession picks the conversation for r: the session header, then the
// request's user field, then a throwaway window released with the request.
func selectSession(sessions *chat.Sessions, r *http.Request, user string) (*memory.Memory, func()) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		id = user
	}
	if id != "" {
		return sessions.Get(id), func() {}
	}
	mem := sessions.Ephemeral()
	return mem, func() { mem.Close() }
}

func lastUserMessage(msgs []chatMessage) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == memory.RoleUser {
			return msgs[i].text(), true
		}
	}
	return "", false
}

// streamCompletion sends the reply as chat.completion.chunk events. Raw
// engine fragments are forwarded as they arrive unless output hooks will
// rewrite the text, in which case the final text is sent as one chunk.
func streamCompletion(w http.ResponseWriter, r *http.Request, svc *chat.Service, mem *memory.Memory, input string, out completion) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	out.Object = "chat.completion.chunk"
	send := func(delta completionMessage, finish *string) {
		out.Choices = []completionChoice{{Delta: &delta, FinishReason: finish}}
		payload, err := json.Marshal(out)
		if err != nil {
			slog.Error("marshaling stream chunk", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	send(completionMessage{Role: memory.RoleAssistant}, nil)

	raw := !svc.TransformsOutput()
	var onFragment func(string)
	if raw {
		onFragment = func(text string) { send(completionMessage{Content: text}, nil) }
	}

	reply := svc.SendStream(r.Context(), mem, input, onFragment)

	finish := finishStop
	switch {
	case reply.Err != nil:
		finish = finishError
		msg := engine.Describe(reply.Err)
		if raw && reply.Text != "" {
			msg = "\n" + msg
		} else if !raw {
			msg = reply.Content()
		}
		send(completionMessage{Content: msg}, &finish)
	case !raw:
		send(completionMessage{Content: reply.Text}, &finish)
	default:
		send(completionMessage{}, &finish)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
