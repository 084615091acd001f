package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session summarizes one recorded conversation.
type Session struct {
	ID        string
	StartedAt time.Time
	UpdatedAt time.Time
	TurnCount int
}

// Turn is one recorded message. Seq orders turns within a session,
// starting at 1.
type Turn struct {
	ID        string
	SessionID string
	Seq       int
	Role      string
	Text      string
	CreatedAt time.Time
}
