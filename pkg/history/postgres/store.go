package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/genautapi/pkg/history"
)

var _ history.Store = (*Store)(nil)

// Store is a [history.Store] on a [pgxpool.Pool]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateSession implements [history.Store].
func (s *Store) CreateSession(ctx context.Context, userIP string) (history.Session, error) {
	const q = `
		INSERT INTO user_sessions (id, user_ip)
		VALUES ($1, $2)
		RETURNING created_at`

	sess := history.Session{ID: uuid.NewString(), UserIP: userIP}
	if err := s.pool.QueryRow(ctx, q, sess.ID, userIP).Scan(&sess.CreatedAt); err != nil {
		return history.Session{}, fmt.Errorf("postgres store: create session: %w", err)
	}
	return sess, nil
}

// GetSession implements [history.Store].
func (s *Store) GetSession(ctx context.Context, id string) (history.Session, error) {
	if !validID(id) {
		return history.Session{}, fmt.Errorf("postgres store: get session %q: %w", id, history.ErrNotFound)
	}

	const q = `
		SELECT id::text, user_ip, created_at
		FROM   user_sessions
		WHERE  id = $1`

	var sess history.Session
	err := s.pool.QueryRow(ctx, q, id).Scan(&sess.ID, &sess.UserIP, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Session{}, fmt.Errorf("postgres store: get session %q: %w", id, history.ErrNotFound)
	}
	if err != nil {
		return history.Session{}, fmt.Errorf("postgres store: get session: %w", err)
	}
	return sess, nil
}

// AppendMessage implements [history.Store]. The insert selects from
// user_sessions so an unknown id inserts nothing and reports ErrNotFound.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role history.Role, content string, meta map[string]any) (history.Message, error) {
	if !validID(sessionID) {
		return history.Message{}, fmt.Errorf("postgres store: append message to %q: %w", sessionID, history.ErrNotFound)
	}
	if meta == nil {
		meta = map[string]any{}
	}

	const q = `
		INSERT INTO chat_messages (session_id, role, content, meta_data)
		SELECT id, $2::text, $3::text, $4::jsonb
		FROM   user_sessions
		WHERE  id = $1::uuid
		RETURNING id, created_at`

	msg := history.Message{SessionID: sessionID, Role: role, Content: content, Meta: meta}
	err := s.pool.QueryRow(ctx, q, sessionID, string(role), content, meta).Scan(&msg.ID, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Message{}, fmt.Errorf("postgres store: append message to %q: %w", sessionID, history.ErrNotFound)
	}
	if err != nil {
		return history.Message{}, fmt.Errorf("postgres store: append message: %w", err)
	}
	return msg, nil
}

// GetMessages implements [history.Store].
func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]history.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	const q = `
		SELECT id, session_id::text, role, content, meta_data, created_at
		FROM   chat_messages
		WHERE  session_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Message, error) {
		var (
			m    history.Message
			role string
		)
		if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Meta, &m.CreatedAt); err != nil {
			return history.Message{}, err
		}
		m.Role = history.Role(role)
		if m.Meta == nil {
			m.Meta = map[string]any{}
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan messages: %w", err)
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	return msgs, nil
}

// validID reports whether id can be a session key. Anything else cannot
// exist in a UUID column and is reported as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
