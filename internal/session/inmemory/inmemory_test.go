package inmemory

import (
	"context"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/vidqa/internal/session"
)

func TestUpdateThenGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.Update(ctx, "s1", func(buf *session.Buffer) error {
		buf.Turns = append(buf.Turns, session.Turn{Question: "q?", Answer: "a"})
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	buf, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(buf.Turns) != 1 || buf.Turns[0].Question != "q?" {
		t.Fatalf("unexpected buffer: %+v", buf)
	}

	// The returned slice is a copy; mutating it must not touch the store.
	buf.Turns[0].Question = "mutated"
	again, _ := s.Get(ctx, "s1")
	if again.Turns[0].Question != "q?" {
		t.Fatal("Get must return a copy of the turns")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.Update(ctx, "a", func(buf *session.Buffer) error {
		buf.Summary = "session a"
		return nil
	})
	buf, _ := s.Get(ctx, "b")
	if buf.Summary != "" || len(buf.Turns) != 0 {
		t.Fatalf("session b should be empty: %+v", buf)
	}
}

func TestConcurrentUpdatesKeepAllTurns(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, "s1", func(buf *session.Buffer) error {
				buf.Turns = append(buf.Turns, session.Turn{Question: "q?", Answer: "a"})
				return nil
			})
		}()
	}
	wg.Wait()

	buf, _ := s.Get(ctx, "s1")
	if len(buf.Turns) != 50 {
		t.Fatalf("lost updates: %d turns, want 50", len(buf.Turns))
	}
}
