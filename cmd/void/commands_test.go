package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/void/internal/chat"
	"github.com/kalambet/void/internal/config"
	"github.com/kalambet/void/internal/engine"
	"github.com/kalambet/void/internal/hooks"
	"github.com/kalambet/void/internal/memory"
	"github.com/kalambet/void/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

// replayEngine answers every request with the same fragments.
type replayEngine struct {
	frags []string
	err   error
}

func (e replayEngine) Stream(context.Context, engine.Request) *engine.Stream {
	return engine.NewStaticStream(e.frags, e.err)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestMemory(t *testing.T) *memory.Memory {
	t.Helper()
	m := memory.New(memory.Options{SessionID: "test-session", Logger: quietLogger()})
	t.Cleanup(func() { m.Close() })
	return m
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	resp, err := ts.client().get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestAPIClientNoToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = ""
	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want no header without a token", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/sessions")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sessions": `[{"id":"0b6f1c2e-aaaa","started_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:05:00Z","turn_count":4}]`,
	})

	sessions, err := listSessions(ctx, ts.client(), 5)
	if err != nil {
		t.Fatalf("listSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].TurnCount != 4 {
		t.Fatalf("sessions = %+v", sessions)
	}
	if ts.requests[0].Path != "/sessions?limit=5" {
		t.Errorf("path = %q, want /sessions?limit=5", ts.requests[0].Path)
	}
	if got := shortID(sessions[0].ID); got != "0b6f1c2e" {
		t.Errorf("shortID = %q", got)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Engine.Threads = 6

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d", pid)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file still readable after removal")
	}
}

func TestEngineRequest(t *testing.T) {
	cfg := config.Config{}
	cfg.Engine.DriverPath = "drivers/llama-cli"
	cfg.Engine.ModelPath = "models/m.gguf"
	cfg.Engine.GPULayers = 33
	cfg.Engine.CtxSize = 4096
	cfg.Engine.Threads = 8
	cfg.Engine.Temperature = 0.7
	cfg.Engine.MaxTokens = 1024

	req := engineRequest(cfg)
	if req.ExecutablePath != "drivers/llama-cli" || req.ModelPath != "models/m.gguf" {
		t.Errorf("paths = %q, %q", req.ExecutablePath, req.ModelPath)
	}
	if req.ContextSize != 4096 || req.Threads != 8 || req.GPULayers != 33 || req.MaxTokens != 1024 {
		t.Errorf("numeric parameters not copied: %+v", req)
	}
	if req.Prompt != "" || len(req.Messages) != 0 {
		t.Error("template must not carry a prompt")
	}
}

func TestModelName(t *testing.T) {
	cfg := config.Config{}
	cfg.Engine.Mode = config.ModeLocal
	cfg.Engine.ModelPath = "models/llama-3-8b.gguf"
	if got := modelName(cfg); got != "llama-3-8b" {
		t.Errorf("local modelName = %q", got)
	}

	cfg.Engine.Mode = config.ModeAPI
	cfg.Remote.Model = "gpt-4o-mini"
	if got := modelName(cfg); got != "gpt-4o-mini" {
		t.Errorf("api modelName = %q", got)
	}
}

func TestChatLoop(t *testing.T) {
	svc := chat.NewService(replayEngine{frags: []string{"Hi", " there\n"}}, nil, engine.Request{}, quietLogger())
	mem := newTestMemory(t)

	var out bytes.Buffer
	in := strings.NewReader("hello\n\nexit\nignored\n")
	if err := chatLoop(ctx, svc, mem, in, &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	if !strings.Contains(out.String(), "Hi there\n") {
		t.Errorf("output = %q, want the streamed reply", out.String())
	}
	turns := mem.Turns()
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2 (blank line and input after exit ignored)", len(turns))
	}
	if turns[0].Text != "hello" || turns[1].Text != "Hi there\n" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestChatLoop_EndOfInput(t *testing.T) {
	svc := chat.NewService(replayEngine{frags: []string{"ok"}}, nil, engine.Request{}, quietLogger())
	mem := newTestMemory(t)

	var out bytes.Buffer
	if err := chatLoop(ctx, svc, mem, strings.NewReader("last words"), &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
	if mem.Len() != 2 {
		t.Errorf("turns = %d, want the unterminated line answered", mem.Len())
	}
}

func TestExchange_HookedOutputPrintsFinalText(t *testing.T) {
	reg := hooks.NewRegistry(hooks.TrimOutput{})
	svc := chat.NewService(replayEngine{frags: []string{"  padded  \n"}}, reg, engine.Request{}, quietLogger())

	var out bytes.Buffer
	reply := exchange(ctx, svc, newTestMemory(t), "q", &out)
	if reply.Err != nil {
		t.Fatalf("unexpected error: %v", reply.Err)
	}
	if !strings.HasSuffix(out.String(), "padded\n") || strings.Contains(out.String(), "  padded") {
		t.Errorf("output = %q, want only the trimmed reply", out.String())
	}
}

func TestExchange_ErrorKeepsPartialText(t *testing.T) {
	failure := &engine.Error{Class: engine.ErrProcess, Reason: engine.ReasonNonZeroExit, Detail: "exit 1"}
	svc := chat.NewService(replayEngine{frags: []string{"half"}, err: failure}, nil, engine.Request{}, quietLogger())

	var out bytes.Buffer
	reply := exchange(ctx, svc, newTestMemory(t), "q", &out)
	if reply.Err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(out.String(), "half") {
		t.Errorf("output = %q, want partial text", out.String())
	}
}

func TestRouter(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	cfg := config.Config{}
	cfg.Engine.Mode = config.ModeLocal
	cfg.Engine.ModelPath = "models/tiny.gguf"
	cfg.Server.APIToken = "secret"

	rt := &runtime{cfg: cfg, logger: quietLogger(), store: store}
	rt.service = chat.NewService(replayEngine{frags: []string{"pong"}}, nil, engine.Request{}, quietLogger())

	opts := rt.memoryOptions()
	opts.LogDir = ""
	sessions := chat.NewSessions(0, opts)
	defer sessions.Close()

	srv := httptest.NewServer(newRouter(rt, sessions))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	var models struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&models)
	resp.Body.Close()
	if len(models.Data) != 1 || models.Data[0].ID != "tiny" {
		t.Errorf("models = %+v, want tiny", models.Data)
	}

	body := strings.NewReader(`{"messages":[{"role":"user","content":"ping"}]}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/chat/completions", body)
	req.Header.Set("X-Void-Session", "s-1")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("completion = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/sessions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("/sessions without token = %d, want 401", resp.StatusCode)
	}

	client := &apiClient{baseURL: srv.URL, token: "secret", httpClient: srv.Client()}
	sessionsList, err := listSessions(ctx, client, 10)
	if err != nil {
		t.Fatalf("listSessions: %v", err)
	}
	if len(sessionsList) != 1 || sessionsList[0].ID != "s-1" || sessionsList[0].TurnCount != 2 {
		t.Errorf("sessions = %+v, want s-1 with two turns", sessionsList)
	}
}
