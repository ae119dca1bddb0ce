// Package history defines the conversation persistence collaborator: learner
// sessions bound to a client address and the ordered messages exchanged in
// them.
//
// The interface is public so that alternative backends (PostgreSQL,
// in-process, test doubles) can be swapped without touching the HTTP layer.
// Every implementation must be safe for concurrent use.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("history: session not found")

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Session is one learner conversation.
type Session struct {
	// ID is a random UUID (version 4) in canonical string form.
	ID string

	// UserIP is the client address the session was created from.
	UserIP string

	CreatedAt time.Time
}

// Message is a single entry in a session.
type Message struct {
	ID        int64
	SessionID string
	Role      Role
	Content   string

	// Meta carries arbitrary JSON-compatible metadata such as scores. It is
	// never nil on messages returned by a Store.
	Meta map[string]any

	CreatedAt time.Time
}

// Store persists sessions and their messages.
type Store interface {
	// CreateSession starts a new session for userIP.
	CreateSession(ctx context.Context, userIP string) (Session, error)

	// GetSession returns the session with id, or [ErrNotFound].
	GetSession(ctx context.Context, id string) (Session, error)

	// AppendMessage adds a message to the end of the session. It returns
	// [ErrNotFound] when the session does not exist.
	AppendMessage(ctx context.Context, sessionID string, role Role, content string, meta map[string]any) (Message, error)

	// GetMessages returns every message of the session in insertion order.
	// A known session without messages yields an empty, non-nil slice; an
	// unknown one yields [ErrNotFound].
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)
}
