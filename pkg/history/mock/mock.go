// Package mock provides a recording test double for [history.Store].
//
// Store wraps a real in-process store so tests get working semantics by
// default, records every call, and lets tests inject per-method errors.
//
//	store := mock.New()
//	store.AppendErr = errors.New("disk full")
//	// inject store into the system under test …
//	if got := store.CallCount("AppendMessage"); got != 2 {
//	    t.Errorf("expected 2 AppendMessage calls, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/genautapi/pkg/history"
	"github.com/MrWong99/genautapi/pkg/history/memstore"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable [history.Store] double.
type Store struct {
	mu    sync.Mutex
	calls []Call
	inner *memstore.Store

	// CreateErr is returned by CreateSession when non-nil.
	CreateErr error

	// GetSessionErr is returned by GetSession when non-nil.
	GetSessionErr error

	// AppendErr is returned by AppendMessage when non-nil.
	AppendErr error

	// GetMessagesErr is returned by GetMessages when non-nil.
	GetMessagesErr error
}

var _ history.Store = (*Store)(nil)

// New returns a Store backed by an empty [memstore.Store].
func New() *Store {
	return &Store{inner: memstore.New()}
}

func (m *Store) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

func (m *Store) errFor(p *error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *p
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CreateSession implements [history.Store].
func (m *Store) CreateSession(ctx context.Context, userIP string) (history.Session, error) {
	m.record("CreateSession", userIP)
	if err := m.errFor(&m.CreateErr); err != nil {
		return history.Session{}, err
	}
	return m.inner.CreateSession(ctx, userIP)
}

// GetSession implements [history.Store].
func (m *Store) GetSession(ctx context.Context, id string) (history.Session, error) {
	m.record("GetSession", id)
	if err := m.errFor(&m.GetSessionErr); err != nil {
		return history.Session{}, err
	}
	return m.inner.GetSession(ctx, id)
}

// AppendMessage implements [history.Store].
func (m *Store) AppendMessage(ctx context.Context, sessionID string, role history.Role, content string, meta map[string]any) (history.Message, error) {
	m.record("AppendMessage", sessionID, role, content, meta)
	if err := m.errFor(&m.AppendErr); err != nil {
		return history.Message{}, err
	}
	return m.inner.AppendMessage(ctx, sessionID, role, content, meta)
}

// GetMessages implements [history.Store].
func (m *Store) GetMessages(ctx context.Context, sessionID string) ([]history.Message, error) {
	m.record("GetMessages", sessionID)
	if err := m.errFor(&m.GetMessagesErr); err != nil {
		return nil, err
	}
	return m.inner.GetMessages(ctx, sessionID)
}
