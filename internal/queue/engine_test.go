package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/edgard/queuebot/internal/database"
	"github.com/edgard/queuebot/internal/resilience"
)

func TestEngineJoin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("appends in arrival order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		q := f.createQueue(t, "lab")
		f.join(t, q.QueueID, 1, 2, 3)

		snap, err := f.engine.ShowMembers(ctx, q.QueueID)
		if err != nil {
			t.Fatalf("ShowMembers() error = %v", err)
		}
		if got := userIDs(t, snap); !equalIDs(got, []int64{1, 2, 3}) {
			t.Errorf("members = %v, want [1 2 3]", got)
		}
		if snap.Queue.CurrentOrder != 0 {
			t.Errorf("current order = %d, want 0", snap.Queue.CurrentOrder)
		}
	})

	t.Run("rejects a second join without changes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		q := f.createQueue(t, "lab")
		f.join(t, q.QueueID, 1)
		renders := f.trigger.count()

		_, err := f.engine.Join(ctx, q.QueueID, user(1))
		if KindOf(err) != KindAlreadyMember {
			t.Fatalf("Join() kind = %v, want %v", KindOf(err), KindAlreadyMember)
		}
		snap, _ := f.engine.ShowMembers(ctx, q.QueueID)
		if got := userIDs(t, snap); !equalIDs(got, []int64{1}) {
			t.Errorf("members = %v, want [1]", got)
		}
		if f.trigger.count() != renders {
			t.Errorf("rejected join triggered a render")
		}
	})

	t.Run("unknown queue", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.engine.Join(ctx, 42, user(1))
		if KindOf(err) != KindQueueNotFound {
			t.Errorf("Join() kind = %v, want %v", KindOf(err), KindQueueNotFound)
		}
	})
}

func TestEngineLeave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name        string
		advances    int
		leaver      int64
		wantMembers []int64
		wantOrder   int
		wantKind    Kind
	}{
		{name: "middle member before any call", leaver: 2, wantMembers: []int64{1, 3, 4}, wantOrder: 0},
		{name: "active member steps pointer back", advances: 2, leaver: 2, wantMembers: []int64{1, 3, 4}, wantOrder: 1},
		{name: "called member keeps pointer on same person", advances: 3, leaver: 1, wantMembers: []int64{2, 3, 4}, wantOrder: 2},
		{name: "member after pointer", advances: 1, leaver: 3, wantMembers: []int64{1, 2, 4}, wantOrder: 1},
		{name: "last member", advances: 1, leaver: 4, wantMembers: []int64{1, 2, 3}, wantOrder: 1},
		{name: "non-member", advances: 1, leaver: 9, wantMembers: []int64{1, 2, 3, 4}, wantOrder: 1, wantKind: KindNotAMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			q := f.createQueue(t, "lab")
			f.join(t, q.QueueID, 1, 2, 3, 4)
			for i := 0; i < tt.advances; i++ {
				if _, err := f.engine.Advance(ctx, q.QueueID); err != nil {
					t.Fatalf("Advance() error = %v", err)
				}
			}

			_, err := f.engine.Leave(ctx, q.QueueID, tt.leaver)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("Leave() kind = %v, want %v (err %v)", KindOf(err), tt.wantKind, err)
			}

			snap, err := f.engine.ShowMembers(ctx, q.QueueID)
			if err != nil {
				t.Fatalf("ShowMembers() error = %v", err)
			}
			if got := userIDs(t, snap); !equalIDs(got, tt.wantMembers) {
				t.Errorf("members = %v, want %v", got, tt.wantMembers)
			}
			if snap.Queue.CurrentOrder != tt.wantOrder {
				t.Errorf("current order = %d, want %d", snap.Queue.CurrentOrder, tt.wantOrder)
			}
		})
	}

	t.Run("rejoin goes to the tail", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		q := f.createQueue(t, "lab")
		f.join(t, q.QueueID, 1, 2, 3)
		if _, err := f.engine.Leave(ctx, q.QueueID, 1); err != nil {
			t.Fatalf("Leave() error = %v", err)
		}
		f.join(t, q.QueueID, 1)

		snap, _ := f.engine.ShowMembers(ctx, q.QueueID)
		if got := userIDs(t, snap); !equalIDs(got, []int64{2, 3, 1}) {
			t.Errorf("members = %v, want [2 3 1]", got)
		}
	})
}

func TestEngineSkipAndMoveToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name        string
		op          func(e *Engine, ctx context.Context, queueID, userID int64) (Change, error)
		user        int64
		wantMembers []int64
		wantKind    Kind
	}{
		{name: "skip swaps with next", op: (*Engine).Skip, user: 2, wantMembers: []int64{1, 3, 2, 4}},
		{name: "skip first", op: (*Engine).Skip, user: 1, wantMembers: []int64{2, 1, 3, 4}},
		{name: "skip last", op: (*Engine).Skip, user: 4, wantMembers: []int64{1, 2, 3, 4}, wantKind: KindCannotSkip},
		{name: "skip non-member", op: (*Engine).Skip, user: 7, wantMembers: []int64{1, 2, 3, 4}, wantKind: KindNotAMember},
		{name: "move first to end", op: (*Engine).MoveToEnd, user: 1, wantMembers: []int64{2, 3, 4, 1}},
		{name: "move middle to end", op: (*Engine).MoveToEnd, user: 2, wantMembers: []int64{1, 3, 4, 2}},
		{name: "move last", op: (*Engine).MoveToEnd, user: 4, wantMembers: []int64{1, 2, 3, 4}, wantKind: KindCannotSkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			q := f.createQueue(t, "lab")
			f.join(t, q.QueueID, 1, 2, 3, 4)
			if _, err := f.engine.Advance(ctx, q.QueueID); err != nil {
				t.Fatalf("Advance() error = %v", err)
			}

			_, err := tt.op(f.engine, ctx, q.QueueID, tt.user)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("kind = %v, want %v (err %v)", KindOf(err), tt.wantKind, err)
			}
			snap, _ := f.engine.ShowMembers(ctx, q.QueueID)
			if got := userIDs(t, snap); !equalIDs(got, tt.wantMembers) {
				t.Errorf("members = %v, want %v", got, tt.wantMembers)
			}
			if snap.Queue.CurrentOrder != 1 {
				t.Errorf("current order = %d, want unchanged 1", snap.Queue.CurrentOrder)
			}
		})
	}

	t.Run("sole member cannot skip", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		q := f.createQueue(t, "lab")
		f.join(t, q.QueueID, 1)
		if _, err := f.engine.Skip(ctx, q.QueueID, 1); KindOf(err) != KindCannotSkip {
			t.Errorf("Skip() kind = %v, want %v", KindOf(err), KindCannotSkip)
		}
	})
}

func TestEngineAdvance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	q := f.createQueue(t, "lab")
	f.join(t, q.QueueID, 1, 2)

	for i, want := range []int64{1, 2} {
		change, err := f.engine.Advance(ctx, q.QueueID)
		if err != nil {
			t.Fatalf("Advance() #%d error = %v", i, err)
		}
		if change.Called == nil || change.Called.UserID != want {
			t.Fatalf("Advance() #%d called = %+v, want user %d", i, change.Called, want)
		}
		if idx := change.Snapshot.ActiveIndex(); idx != i {
			t.Errorf("active index = %d, want %d", idx, i)
		}
	}

	for _, wantOrder := range []int{3, 4} {
		change, err := f.engine.Advance(ctx, q.QueueID)
		if err != nil {
			t.Fatalf("Advance() past end error = %v", err)
		}
		if !change.Exhausted || change.Called != nil {
			t.Errorf("Advance() past end = %+v, want exhausted", change)
		}
		if change.Snapshot.Queue.CurrentOrder != wantOrder {
			t.Errorf("current order = %d, want %d", change.Snapshot.Queue.CurrentOrder, wantOrder)
		}
		if change.Snapshot.ActiveIndex() != -1 {
			t.Errorf("active index = %d, want -1", change.Snapshot.ActiveIndex())
		}
	}

	req := f.trigger.last(t)
	if req.CurrentOrder != 4 || req.ActiveIndex != -1 {
		t.Errorf("last render = %+v, want order 4 and no active member", req)
	}
}

func TestEngineRevisionsIncrease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	q := f.createQueue(t, "lab")

	prev := f.trigger.last(t).Revision
	f.join(t, q.QueueID, 1, 2)
	if _, err := f.engine.Skip(ctx, q.QueueID, 1); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	if _, err := f.engine.Advance(ctx, q.QueueID); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	f.trigger.mu.Lock()
	defer f.trigger.mu.Unlock()
	for _, req := range f.trigger.requests[1:] {
		if req.Revision <= prev {
			t.Fatalf("revision %d did not increase past %d", req.Revision, prev)
		}
		prev = req.Revision
	}
}

func TestEngineRefusesCorruptedQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	q := f.createQueue(t, "lab")
	f.join(t, q.QueueID, 1, 2)

	if err := f.store.SetMemberOrder(ctx, q.QueueID, 2, 5); err != nil {
		t.Fatalf("SetMemberOrder() error = %v", err)
	}

	_, err := f.engine.Join(ctx, q.QueueID, user(3))
	if KindOf(err) != KindInternal {
		t.Fatalf("Join() on corrupted queue kind = %v, want %v", KindOf(err), KindInternal)
	}
	members, _ := f.store.ListMembers(ctx, q.QueueID)
	if len(members) != 2 {
		t.Errorf("corrupted queue was mutated: %d members", len(members))
	}
}

func TestEngineRandomOperationsStayContiguous(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	q := f.createQueue(t, "lab")
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		id := int64(rnd.Intn(8) + 1)
		var err error
		switch rnd.Intn(5) {
		case 0, 1:
			_, err = f.engine.Join(ctx, q.QueueID, user(id))
		case 2:
			_, err = f.engine.Leave(ctx, q.QueueID, id)
		case 3:
			_, err = f.engine.Skip(ctx, q.QueueID, id)
		case 4:
			_, err = f.engine.MoveToEnd(ctx, q.QueueID, id)
		}
		if k := KindOf(err); k == KindInternal || k == KindStorageConflict {
			t.Fatalf("step %d: unexpected error %v", i, err)
		}

		members, err := f.store.ListMembers(ctx, q.QueueID)
		if err != nil {
			t.Fatalf("ListMembers() error = %v", err)
		}
		if err := checkContiguous(members); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestEngineConcurrentJoins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	q := f.createQueue(t, "lab")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.engine.Join(ctx, q.QueueID, user(id))
			errs <- err
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Join() error = %v", err)
		}
	}

	members, err := f.store.ListMembers(ctx, q.QueueID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != n {
		t.Fatalf("len(members) = %d, want %d", len(members), n)
	}
	if err := checkContiguous(members); err != nil {
		t.Error(err)
	}
}

func TestSnapshotRenderRequest(t *testing.T) {
	t.Parallel()

	s := Snapshot{
		Queue: database.Queue{QueueID: 3, ChatID: testChatID, Name: "lab", CurrentOrder: 2, Revision: 9},
		Members: []database.Member{
			{UserID: 1, UserOrder: 1, DisplayName: "Ann"},
			{UserID: 2, UserOrder: 2, DisplayName: "Bob"},
		},
	}
	s.Queue.MessageID.Int64, s.Queue.MessageID.Valid = 77, true

	req := s.RenderRequest()
	if req.MessageID != 77 || req.ActiveIndex != 1 || req.Revision != 9 || req.QueueName != "lab" {
		t.Errorf("RenderRequest() = %+v", req)
	}
	if len(req.Members) != 2 || req.Members[1] != "Bob" {
		t.Errorf("RenderRequest().Members = %v", req.Members)
	}
	if active := s.Active(); active == nil || active.UserID != 2 {
		t.Errorf("Active() = %+v, want Bob", active)
	}
}

func TestEngineMarksMutationsPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	q := f.createQueue(t, "lab")

	pendingRevisions := func() []int64 {
		t.Helper()
		queues, err := f.store.ListRenderPending(ctx)
		if err != nil {
			t.Fatalf("ListRenderPending() error = %v", err)
		}
		revs := make([]int64, len(queues))
		for i, pq := range queues {
			revs[i] = pq.Revision
		}
		return revs
	}

	if got := pendingRevisions(); !equalIDs(got, []int64{1}) {
		t.Fatalf("pending after create = %v, want [1]", got)
	}
	if err := f.store.ClearRenderPending(ctx, q.QueueID, 1); err != nil {
		t.Fatalf("ClearRenderPending() error = %v", err)
	}

	f.join(t, q.QueueID, 1)
	if got := pendingRevisions(); !equalIDs(got, []int64{2}) {
		t.Fatalf("pending after join = %v, want [2]", got)
	}
	if err := f.store.ClearRenderPending(ctx, q.QueueID, 2); err != nil {
		t.Fatalf("ClearRenderPending() error = %v", err)
	}

	if _, err := f.engine.ShowMembers(ctx, q.QueueID); err != nil {
		t.Fatalf("ShowMembers() error = %v", err)
	}
	if got := pendingRevisions(); len(got) != 0 {
		t.Errorf("pending after show = %v, want none", got)
	}
}

// conflictingStore runs each transaction but fails the first failures of them
// with ErrConflict before commit, so their writes are rolled back.
type conflictingStore struct {
	database.Store
	failures int
	attempts int
}

func (s *conflictingStore) WithTx(ctx context.Context, fn func(tx database.Tx) error) error {
	s.attempts++
	return s.Store.WithTx(ctx, func(tx database.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if s.attempts <= s.failures {
			return fmt.Errorf("database is locked: %w", database.ErrConflict)
		}
		return nil
	})
}

func TestEngineRetriesConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	retry := resilience.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}

	t.Run("transient conflicts are retried", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		q := f.createQueue(t, "lab")
		f.join(t, q.QueueID, 1, 2, 3)
		before, err := f.engine.Snapshot(ctx, q.QueueID)
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		renders := f.trigger.count()

		cs := &conflictingStore{Store: f.store, failures: 2}
		change, err := NewEngine(cs, f.trigger, retry, nil).Leave(ctx, q.QueueID, 2)
		if err != nil {
			t.Fatalf("Leave() error = %v", err)
		}
		if cs.attempts != 3 {
			t.Errorf("attempts = %d, want 3", cs.attempts)
		}
		if got := userIDs(t, change.Snapshot); !equalIDs(got, []int64{1, 3}) {
			t.Errorf("members = %v, want [1 3]", got)
		}
		if change.Snapshot.Queue.Revision != before.Queue.Revision+1 {
			t.Errorf("revision = %d, want %d", change.Snapshot.Queue.Revision, before.Queue.Revision+1)
		}
		if got := f.trigger.count() - renders; got != 1 {
			t.Errorf("renders = %d, want 1", got)
		}
	})

	t.Run("exhausted retries surface as storage conflict", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		q := f.createQueue(t, "lab")
		f.join(t, q.QueueID, 1, 2, 3)
		renders := f.trigger.count()

		cs := &conflictingStore{Store: f.store, failures: 10}
		engine := NewEngine(cs, f.trigger, retry, nil)
		if _, err := engine.Skip(ctx, q.QueueID, 1); !errors.Is(err, database.ErrConflict) {
			t.Fatalf("Skip() error = %v, want ErrConflict", err)
		}
		if cs.attempts != 3 {
			t.Errorf("attempts = %d, want 3", cs.attempts)
		}

		out := NewService(cs, engine, nil).Skip(ctx, Action{ChatID: testChatID, User: user(1), Name: "lab"})
		if out.Kind != KindStorageConflict {
			t.Errorf("Skip() outcome = %v, want %v", out.Kind, KindStorageConflict)
		}

		snapshot, err := f.engine.Snapshot(ctx, q.QueueID)
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if got := userIDs(t, snapshot); !equalIDs(got, []int64{1, 2, 3}) {
			t.Errorf("members after failed skips = %v, want [1 2 3]", got)
		}
		if f.trigger.count() != renders {
			t.Error("failed action triggered a render")
		}
	})
}
