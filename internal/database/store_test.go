package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "store.db"), Options{})
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { CloseDB(db) })
	return NewStore(db, nil)
}

func seedQueue(t *testing.T, s Store, chatID int64, name string) *Queue {
	t.Helper()
	ctx := context.Background()
	if err := s.EnsureChat(ctx, &Chat{ChatID: chatID, Name: "chat", Notify: true}); err != nil {
		t.Fatalf("EnsureChat() error = %v", err)
	}
	q := &Queue{ChatID: chatID, Name: name, Notify: true}
	if err := s.CreateQueue(ctx, q); err != nil {
		t.Fatalf("CreateQueue() error = %v", err)
	}
	return q
}

func TestStoreChats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if chat, err := s.GetChat(ctx, 1); err != nil || chat != nil {
		t.Fatalf("GetChat() on empty store = %+v, %v", chat, err)
	}

	if err := s.EnsureChat(ctx, &Chat{ChatID: 1, Name: "first", Notify: true}); err != nil {
		t.Fatalf("EnsureChat() error = %v", err)
	}
	if err := s.EnsureChat(ctx, &Chat{ChatID: 1, Name: "renamed", Silent: true}); err != nil {
		t.Fatalf("EnsureChat() upsert error = %v", err)
	}

	chat, err := s.GetChat(ctx, 1)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat.Name != "renamed" || !chat.Notify || chat.Silent || chat.Language != "en" {
		t.Errorf("GetChat() = %+v, want renamed chat with original settings", chat)
	}

	chat.Language = "ru"
	if err := s.UpdateChatSettings(ctx, chat); err != nil {
		t.Fatalf("UpdateChatSettings() error = %v", err)
	}
	if got, _ := s.GetChat(ctx, 1); got.Language != "ru" {
		t.Errorf("language = %q, want ru", got.Language)
	}

	if err := s.DeleteChat(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteChat() unknown error = %v, want ErrNotFound", err)
	}
}

func TestStoreQueues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	q := seedQueue(t, s, 1, "lab")

	if q.QueueID == 0 {
		t.Fatal("CreateQueue() did not set QueueID")
	}
	if err := s.CreateQueue(ctx, &Queue{ChatID: 1, Name: "lab"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("CreateQueue() duplicate error = %v, want ErrDuplicate", err)
	}
	if err := s.CreateQueue(ctx, &Queue{ChatID: 99, Name: "orphan"}); err == nil {
		t.Error("CreateQueue() for unknown chat succeeded, want foreign key error")
	}

	if err := s.SetMessageReference(ctx, q.QueueID, 321); err != nil {
		t.Fatalf("SetMessageReference() error = %v", err)
	}
	got, err := s.GetQueueByMessage(ctx, 1, 321)
	if err != nil || got == nil || got.QueueID != q.QueueID {
		t.Fatalf("GetQueueByMessage() = %+v, %v", got, err)
	}
	if got, _ := s.GetQueueByMessage(ctx, 2, 321); got != nil {
		t.Errorf("GetQueueByMessage() crossed chats: %+v", got)
	}
	if got, _ := s.GetQueueByName(ctx, 1, "lab"); got == nil || !got.MessageID.Valid || got.MessageID.Int64 != 321 {
		t.Errorf("GetQueueByName() = %+v", got)
	}

	rev1, err := s.BumpRevision(ctx, q.QueueID)
	if err != nil {
		t.Fatalf("BumpRevision() error = %v", err)
	}
	rev2, _ := s.BumpRevision(ctx, q.QueueID)
	if rev2 != rev1+1 {
		t.Errorf("revisions %d, %d are not consecutive", rev1, rev2)
	}
	if _, err := s.BumpRevision(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("BumpRevision() unknown error = %v, want ErrNotFound", err)
	}

	pending, err := s.ListRenderPending(ctx)
	if err != nil || len(pending) != 1 || pending[0].Revision != rev2 {
		t.Fatalf("ListRenderPending() after bump = %+v, %v", pending, err)
	}
	// A delivery of an older revision must not clear the flag.
	if err := s.ClearRenderPending(ctx, q.QueueID, rev1); err != nil {
		t.Fatalf("ClearRenderPending() error = %v", err)
	}
	if pending, _ := s.ListRenderPending(ctx); len(pending) != 1 {
		t.Errorf("ClearRenderPending(rev1) cleared the flag of revision %d", rev2)
	}
	if err := s.ClearRenderPending(ctx, q.QueueID, rev2); err != nil {
		t.Fatalf("ClearRenderPending() error = %v", err)
	}
	if pending, _ := s.ListRenderPending(ctx); len(pending) != 0 {
		t.Errorf("ListRenderPending() after clear = %+v, want none", pending)
	}
	if err := s.SetRenderPending(ctx, q.QueueID, true); err != nil {
		t.Fatalf("SetRenderPending() error = %v", err)
	}
	if pending, _ := s.ListRenderPending(ctx); len(pending) != 1 {
		t.Errorf("ListRenderPending() after SetRenderPending = %+v, want one", pending)
	}

	if err := s.DeleteQueue(ctx, q.QueueID); err != nil {
		t.Fatalf("DeleteQueue() error = %v", err)
	}
	if err := s.DeleteQueue(ctx, q.QueueID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteQueue() twice error = %v, want ErrNotFound", err)
	}
}

func TestStoreMembers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	q := seedQueue(t, s, 1, "lab")

	for i, id := range []int64{10, 20, 30} {
		if err := s.InsertMember(ctx, &Member{QueueID: q.QueueID, UserID: id, UserOrder: i + 1, DisplayName: "u"}); err != nil {
			t.Fatalf("InsertMember(%d) error = %v", id, err)
		}
	}
	if err := s.InsertMember(ctx, &Member{QueueID: q.QueueID, UserID: 10, UserOrder: 4}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("InsertMember() duplicate error = %v, want ErrDuplicate", err)
	}
	if err := s.InsertMember(ctx, &Member{QueueID: q.QueueID, UserID: 40}); err == nil {
		t.Error("InsertMember() with order 0 succeeded")
	}

	if err := s.DeleteMember(ctx, q.QueueID, 10); err != nil {
		t.Fatalf("DeleteMember() error = %v", err)
	}
	if err := s.ShiftMemberOrders(ctx, q.QueueID, 1, -1); err != nil {
		t.Fatalf("ShiftMemberOrders() error = %v", err)
	}

	members, err := s.ListMembers(ctx, q.QueueID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 2 || members[0].UserID != 20 || members[0].UserOrder != 1 || members[1].UserOrder != 2 {
		t.Errorf("ListMembers() = %+v, want 20 then 30 at orders 1, 2", members)
	}
	if members[0].JoinedAt.IsZero() || time.Since(members[0].JoinedAt) > time.Hour {
		t.Errorf("JoinedAt = %v, want recent", members[0].JoinedAt)
	}

	if err := s.DeleteMember(ctx, q.QueueID, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteMember() twice error = %v, want ErrNotFound", err)
	}
}

func TestStoreCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	q := seedQueue(t, s, 1, "lab")
	if err := s.InsertMember(ctx, &Member{QueueID: q.QueueID, UserID: 10, UserOrder: 1, DisplayName: "u"}); err != nil {
		t.Fatalf("InsertMember() error = %v", err)
	}

	if err := s.DeleteChat(ctx, 1); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if got, _ := s.GetQueue(ctx, q.QueueID); got != nil {
		t.Errorf("queue survived chat deletion: %+v", got)
	}
	if members, _ := s.ListMembers(ctx, q.QueueID); len(members) != 0 {
		t.Errorf("members survived chat deletion: %+v", members)
	}
}

func TestStoreWithTxRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	q := seedQueue(t, s, 1, "lab")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.SetCurrentOrder(ctx, q.QueueID, 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	if got, _ := s.GetQueue(ctx, q.QueueID); got.CurrentOrder != 0 {
		t.Errorf("current order = %d after rollback, want 0", got.CurrentOrder)
	}
}

func TestStoreMigrateChat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	q := seedQueue(t, s, 1, "lab")

	if err := s.MigrateChat(ctx, 1, 2); err != nil {
		t.Fatalf("MigrateChat() error = %v", err)
	}
	got, err := s.GetQueue(ctx, q.QueueID)
	if err != nil || got == nil || got.ChatID != 2 {
		t.Errorf("queue after migration = %+v, %v; want chat 2", got, err)
	}
	if err := s.MigrateChat(ctx, 1, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("MigrateChat() unknown chat error = %v, want ErrNotFound", err)
	}
}

func TestStoreMaintenance(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := s.RunSQLMaintenance(context.Background()); err != nil {
		t.Errorf("RunSQLMaintenance() error = %v", err)
	}
}

func TestBuildDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "plain path", path: "bot.db", want: "bot.db?"},
		{name: "path with query", path: "file:bot.db?cache=shared", want: "file:bot.db?cache=shared&"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := BuildDSN(tt.path, 2*time.Second)
			if len(got) <= len(tt.want) || got[:len(tt.want)] != tt.want {
				t.Errorf("BuildDSN() = %q, want prefix %q", got, tt.want)
			}
			if ExtractDBNameFromPath(got) != ExtractDBNameFromPath(tt.path) {
				t.Errorf("ExtractDBNameFromPath() = %q", ExtractDBNameFromPath(got))
			}
		})
	}
}
