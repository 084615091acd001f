package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/void/internal/chat"
	"github.com/kalambet/void/internal/storage"
)

// HistoryDeps holds dependencies for the transcript endpoints.
type HistoryDeps struct {
	Store    *storage.Store
	Sessions *chat.Sessions // optional; live windows are dropped on delete
	Token    string         // bearer token; empty disables auth
}

// NewHistoryHandler serves the recorded sessions.
func NewHistoryHandler(deps HistoryDeps) http.Handler {
	r := chi.NewRouter()
	if deps.Token != "" {
		r.Use(BearerAuth(deps.Token))
	}

	r.Get("/sessions", handleListSessions(deps))
	r.Get("/sessions/{id}", handleGetSession(deps))
	r.Delete("/sessions/{id}", handleDeleteSession(deps))

	return r
}

type sessionJSON struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	TurnCount int        `json:"turn_count"`
	Turns     []turnJSON `json:"turns,omitempty"`
}

type turnJSON struct {
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionJSON(s storage.Session) sessionJSON {
	return sessionJSON{ID: s.ID, StartedAt: s.StartedAt, UpdatedAt: s.UpdatedAt, TurnCount: s.TurnCount}
}

func handleListSessions(deps HistoryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		sessions, err := deps.Store.ListSessions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		out := make([]sessionJSON, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, toSessionJSON(s))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleGetSession(deps HistoryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sess, err := deps.Store.GetSession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}

		turns, err := deps.Store.ListTurns(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list turns: %v", err)
			return
		}

		out := toSessionJSON(sess)
		out.Turns = make([]turnJSON, 0, len(turns))
		for _, t := range turns {
			out.Turns = append(out.Turns, turnJSON{Seq: t.Seq, Role: t.Role, Text: t.Text, CreatedAt: t.CreatedAt})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleDeleteSession(deps HistoryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteSession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}
		if deps.Sessions != nil {
			deps.Sessions.Delete(id)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
