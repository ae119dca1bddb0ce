// Package memstore is an in-process [history.Store]. It is the default when no
// database is configured; its contents are lost on restart.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/genautapi/pkg/history"
)

var _ history.Store = (*Store)(nil)

type session struct {
	history.Session
	messages []history.Message
}

// Store keeps sessions in a map guarded by a single mutex.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	nextID   int64
	now      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*session), now: time.Now}
}

// CreateSession implements [history.Store].
func (s *Store) CreateSession(_ context.Context, userIP string) (history.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := history.Session{ID: uuid.NewString(), UserIP: userIP, CreatedAt: s.now().UTC()}
	s.sessions[sess.ID] = &session{Session: sess}
	return sess, nil
}

// GetSession implements [history.Store].
func (s *Store) GetSession(_ context.Context, id string) (history.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return history.Session{}, fmt.Errorf("memstore: get session %q: %w", id, history.ErrNotFound)
	}
	return sess.Session, nil
}

// AppendMessage implements [history.Store].
func (s *Store) AppendMessage(_ context.Context, sessionID string, role history.Role, content string, meta map[string]any) (history.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return history.Message{}, fmt.Errorf("memstore: append message to %q: %w", sessionID, history.ErrNotFound)
	}
	s.nextID++
	msg := history.Message{
		ID:        s.nextID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Meta:      cloneMeta(meta),
		CreatedAt: s.now().UTC(),
	}
	sess.messages = append(sess.messages, msg)
	return msg, nil
}

// GetMessages implements [history.Store]. The returned messages are copies.
func (s *Store) GetMessages(_ context.Context, sessionID string) ([]history.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("memstore: get messages of %q: %w", sessionID, history.ErrNotFound)
	}
	out := slices.Clone(sess.messages)
	if out == nil {
		out = []history.Message{}
	}
	for i := range out {
		out[i].Meta = cloneMeta(out[i].Meta)
	}
	return out, nil
}

// cloneMeta copies the top level of meta; nested values are shared.
func cloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return maps.Clone(meta)
}
