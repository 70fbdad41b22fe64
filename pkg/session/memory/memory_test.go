package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/knikam3027/jnj/pkg/api"
	"github.com/knikam3027/jnj/pkg/session"
)

func TestAppendAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.Append(ctx, "u1_r1", api.UserTurn("hi"), api.AssistantTurn("hello")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, "u1_r1", api.UserTurn("leave policy?")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := s.Get(ctx, "u1_r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := []api.Turn{api.UserTurn("hi"), api.AssistantTurn("hello"), api.UserTurn("leave policy?")}
	if len(got) != len(want) {
		t.Fatalf("len(turns) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turns[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestGetUnknownIsEmpty(t *testing.T) {
	s := New(0)
	got, err := s.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Get(unknown) = %v, want empty non-nil slice", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.Append(ctx, "k", api.UserTurn("original"))

	got, _ := s.Get(ctx, "k")
	got[0].Content = "mutated"

	again, _ := s.Get(ctx, "k")
	if again[0].Content != "original" {
		t.Errorf("stored turn changed through returned slice: %q", again[0].Content)
	}
}

func TestClear(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.Append(ctx, "k", api.UserTurn("a"), api.AssistantTurn("b"))

	if err := s.Clear(ctx, "k"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	got, _ := s.Get(ctx, "k")
	if len(got) != 0 {
		t.Errorf("len(turns) after Clear = %d, want 0", len(got))
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.Append(ctx, "alice", api.UserTurn("maternity leave"))
	s.Append(ctx, "bob", api.UserTurn("pension"))

	a, _ := s.Get(ctx, "alice")
	b, _ := s.Get(ctx, "bob")
	if len(a) != 1 || a[0].Content != "maternity leave" {
		t.Errorf("alice = %v", a)
	}
	if len(b) != 1 || b[0].Content != "pension" {
		t.Errorf("bob = %v", b)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	s.Append(ctx, "s1", api.UserTurn("1"))
	s.Append(ctx, "s2", api.UserTurn("2"))
	s.Get(ctx, "s1") // s2 is now least recently used
	s.Append(ctx, "s3", api.UserTurn("3"))

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if got, _ := s.Get(ctx, "s2"); len(got) != 0 {
		t.Errorf("s2 should have been evicted, got %v", got)
	}
	if got, _ := s.Get(ctx, "s1"); len(got) != 1 {
		t.Errorf("s1 should survive, got %v", got)
	}
}

func TestSweep(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Append(ctx, "old", api.UserTurn("x"))

	s.now = func() time.Time { return base.Add(20 * time.Minute) }
	s.Append(ctx, "fresh", api.UserTurn("y"))

	s.now = func() time.Time { return base.Add(40 * time.Minute) }
	if removed := s.Sweep(30 * time.Minute); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if got, _ := s.Get(ctx, "fresh"); len(got) != 1 {
		t.Errorf("fresh session swept: %v", got)
	}
}

func TestLockedSessionSurvivesEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	s.Append(ctx, "s1", api.UserTurn("1"))
	s.Append(ctx, "s2", api.UserTurn("2"))

	// s1 is least recently used but mid-turn.
	unlock, err := s.Lock(ctx, "s1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer unlock()

	s.Append(ctx, "s3", api.UserTurn("3"))

	if got, _ := s.Get(ctx, "s1"); len(got) != 1 {
		t.Errorf("locked s1 was evicted, got %v", got)
	}
	if got, _ := s.Get(ctx, "s2"); len(got) != 0 {
		t.Errorf("s2 should have been evicted, got %v", got)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestEvictionWhenEverySessionLocked(t *testing.T) {
	s := New(1)
	ctx := context.Background()

	s.Append(ctx, "s1", api.UserTurn("1"))
	unlock, err := s.Lock(ctx, "s1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer unlock()

	s.Append(ctx, "s2", api.UserTurn("2"))

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2 while s1 is locked", s.Len())
	}
	if got, _ := s.Get(ctx, "s1"); len(got) != 1 {
		t.Errorf("locked s1 was evicted, got %v", got)
	}
}

func TestSweepKeepsLockedSession(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Append(ctx, "busy", api.UserTurn("x"))
	s.Append(ctx, "idle", api.UserTurn("y"))

	unlock, err := s.Lock(ctx, "busy")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	s.now = func() time.Time { return base.Add(time.Hour) }
	if removed := s.Sweep(30 * time.Minute); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if got, _ := s.Get(ctx, "busy"); len(got) != 1 {
		t.Errorf("locked session swept: %v", got)
	}
	unlock()

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if removed := s.Sweep(30 * time.Minute); removed != 1 {
		t.Errorf("Sweep after unlock removed %d, want 1", removed)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestConcurrentAppendsUnderLock(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock, err := s.Lock(ctx, "shared")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			defer unlock()
			s.Append(ctx, "shared",
				api.UserTurn(fmt.Sprintf("q%d", i)),
				api.AssistantTurn(fmt.Sprintf("a%d", i)))
		}(i)
	}
	wg.Wait()

	got, _ := s.Get(ctx, "shared")
	if len(got) != 40 {
		t.Fatalf("len(turns) = %d, want 40", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != api.RoleUser || got[i+1].Role != api.RoleAssistant {
			t.Fatalf("turn pair %d interleaved: %+v %+v", i/2, got[i], got[i+1])
		}
		if got[i].Content[1:] != got[i+1].Content[1:] {
			t.Errorf("turn pair %d mismatched: %q / %q", i/2, got[i].Content, got[i+1].Content)
		}
	}
}

func TestClosedStore(t *testing.T) {
	s := New(0)
	s.Close()

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.HealthCheck(context.Background()); !errors.Is(err, session.ErrClosed) {
		t.Errorf("HealthCheck after Close = %v, want ErrClosed", err)
	}
}
