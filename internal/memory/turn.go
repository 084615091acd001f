package memory

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one immutable message in a conversation.
type Turn struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// Len is the turn's size in characters (Unicode code points).
func (t Turn) Len() int {
	return utf8.RuneCountInString(t.Text)
}

// label returns the speaker prefix used in assembled prompts.
func (t Turn) label() string {
	switch t.Role {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	}
	if t.Role == "" {
		return "User"
	}
	return strings.ToUpper(t.Role[:1]) + t.Role[1:]
}

var logEscaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\n`)

// logLine renders the turn as a single session log line.
func (t Turn) logLine() string {
	return "[" + strings.ToUpper(t.Role) + "]: " + logEscaper.Replace(t.Text) + "\n"
}
