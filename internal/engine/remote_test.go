package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type countingHealth struct{ calls atomic.Int32 }

func (h *countingHealth) CheckHealth(context.Context) { h.calls.Add(1) }

func newTestRemote(srv *httptest.Server) *Remote {
	c := NewRemote(srv.URL+"/", "test-key", "gpt-4o-mini")
	c.httpClient = srv.Client()
	return c
}

func TestRemote_Success(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello there"}}]}`)
	}))
	defer srv.Close()

	text, err := Collect(newTestRemote(srv).Stream(context.Background(), Request{Prompt: "hi"}))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello there" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestRemote_ReplyPassesHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	health := &countingHealth{}
	c := newTestRemote(srv)
	c.health = health

	if _, err := Collect(c.Stream(context.Background(), Request{Prompt: "hi"})); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if n := health.calls.Load(); n != 1 {
		t.Errorf("health checks = %d, want 1 for the reply", n)
	}

	e, err := New(Config{Mode: "api", RemoteAPIKey: "k", RemoteBaseURL: srv.URL, Health: health})
	if err != nil {
		t.Fatal(err)
	}
	if e.(*Remote).health != health {
		t.Error("New did not pass the health checker to the remote engine")
	}
}

func TestRemote_SendsStructuredMessages(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	msgs := []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}}
	if _, err := newTestRemote(srv).Complete(context.Background(), Request{Messages: msgs, Model: "other"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Model != "other" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("request = %+v", got)
	}
}

func TestRemote_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantReason string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, ReasonAuth},
		{"forbidden", http.StatusForbidden, `{}`, ReasonAuth},
		{"server error", http.StatusInternalServerError, `oops`, ReasonNetwork},
		{"rate limited", http.StatusTooManyRequests, `slow down`, ReasonNetwork},
		{"malformed body", http.StatusOK, `not json`, ReasonNetwork},
		{"no choices", http.StatusOK, `{"choices":[]}`, ReasonNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestRemote(srv).Complete(context.Background(), Request{Prompt: "hi"})
			if !errors.Is(err, ErrNetwork) {
				t.Fatalf("err = %v, want ErrNetwork", err)
			}
			if got := Reason(err); got != tt.wantReason {
				t.Errorf("reason = %q, want %q", got, tt.wantReason)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("server called %d times, want a single attempt", n)
			}
		})
	}
}

func TestRemote_Timeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestRemote(srv)
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	if Reason(err) != ReasonTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want a single attempt", n)
	}
	if got := Describe(err); got != "[Network Error] timeout" {
		t.Errorf("Describe = %q", got)
	}
}

func TestRemote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestRemote(srv)
	srv.Close()

	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	if Reason(err) != ReasonNetwork {
		t.Errorf("err = %v, want network-error", err)
	}
}
