package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/MrWong99/genautapi/pkg/history"
)

func TestCreateSession(t *testing.T) {
	t.Parallel()

	s := New()
	sess, err := s.CreateSession(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id, err := uuid.Parse(sess.ID)
	if err != nil {
		t.Fatalf("session id %q is not a uuid: %v", sess.ID, err)
	}
	if id.Version() != 4 {
		t.Errorf("uuid version = %d, want 4", id.Version())
	}
	if sess.UserIP != "203.0.113.7" || sess.CreatedAt.IsZero() {
		t.Errorf("session = %+v", sess)
	}

	got, err := s.GetSession(context.Background(), sess.ID)
	if err != nil || got != sess {
		t.Errorf("GetSession = %+v, %v", got, err)
	}
}

func TestUnknownSession(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("GetSession err = %v, want ErrNotFound", err)
	}
	if _, err := s.AppendMessage(ctx, "nope", history.RoleUser, "hi", nil); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("AppendMessage err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetMessages(ctx, "nope"); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("GetMessages err = %v, want ErrNotFound", err)
	}
}

func TestMessagesInOrder(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	sess, _ := s.CreateSession(ctx, "::1")

	empty, err := s.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("GetMessages on new session = %#v, want empty non-nil slice", empty)
	}

	if _, err := s.AppendMessage(ctx, sess.ID, history.RoleUser, "Ich bin müde", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	meta := map[string]any{"score": 88}
	if _, err := s.AppendMessage(ctx, sess.ID, history.RoleAssistant, "Schlaf gut!", meta); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	meta["score"] = 1

	msgs, err := s.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != history.RoleUser || msgs[1].Role != history.RoleAssistant {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].ID >= msgs[1].ID {
		t.Errorf("ids not increasing: %d, %d", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Meta == nil {
		t.Error("nil meta on returned message")
	}
	if msgs[1].Meta["score"] != 88 {
		t.Errorf("stored meta aliased caller map: %v", msgs[1].Meta)
	}
}

func TestConcurrentAppend(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	sess, _ := s.CreateSession(ctx, "127.0.0.1")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AppendMessage(ctx, sess.ID, history.RoleUser, fmt.Sprint(i), nil); err != nil {
				t.Errorf("AppendMessage: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs, _ := s.GetMessages(ctx, sess.ID)
	if len(msgs) != 50 {
		t.Errorf("len = %d, want 50", len(msgs))
	}
}
