package queue

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edgard/queuebot/internal/database"
	"github.com/edgard/queuebot/internal/resilience"
)

const testChatID = int64(-1001)

type recordingTrigger struct {
	mu       sync.Mutex
	requests []RenderRequest
}

func (r *recordingTrigger) Render(_ context.Context, req RenderRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recordingTrigger) last(t *testing.T) RenderRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		t.Fatal("no render triggered")
	}
	return r.requests[len(r.requests)-1]
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type fixture struct {
	store   database.Store
	engine  *Engine
	service *Service
	trigger *recordingTrigger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "queue.db"), database.Options{})
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, nil)
	trigger := &recordingTrigger{}
	retry := resilience.RetryConfig{MaxAttempts: 5, InitialInterval: time.Millisecond, MaxInterval: 20 * time.Millisecond, Multiplier: 2, RandomFactor: 0.2}
	engine := NewEngine(store, trigger, retry, nil)
	return &fixture{
		store:   store,
		engine:  engine,
		service: NewService(store, engine, nil),
		trigger: trigger,
	}
}

func (f *fixture) createQueue(t *testing.T, name string) database.Queue {
	t.Helper()
	out := f.service.CreateQueue(context.Background(), Action{ChatID: testChatID, ChatName: "test chat", Name: name})
	if !out.OK() {
		t.Fatalf("CreateQueue(%q) kind = %v", name, out.Kind)
	}
	return out.Snapshot.Queue
}

func (f *fixture) join(t *testing.T, queueID int64, users ...int64) {
	t.Helper()
	for _, id := range users {
		if _, err := f.engine.Join(context.Background(), queueID, user(id)); err != nil {
			t.Fatalf("Join(%d) error = %v", id, err)
		}
	}
}

func user(id int64) User {
	return User{ID: id, DisplayName: "user" + string(rune('A'+id%26))}
}

// userIDs returns the snapshot's user IDs in queue order and fails if the
// orders are not exactly 1..N.
func userIDs(t *testing.T, s Snapshot) []int64 {
	t.Helper()
	ids := make([]int64, len(s.Members))
	for i, m := range s.Members {
		if m.UserOrder != i+1 {
			t.Fatalf("member %d has order %d at position %d", m.UserID, m.UserOrder, i+1)
		}
		ids[i] = m.UserID
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
