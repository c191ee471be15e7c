package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Tx is the set of data operations available both inside a transaction and,
// for single-statement calls, directly on the Store. Lookups return (nil, nil)
// when the row does not exist.
type Tx interface {
	// EnsureChat inserts the chat if it is unknown and refreshes its name otherwise.
	EnsureChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, chatID int64) (*Chat, error)
	UpdateChatSettings(ctx context.Context, chat *Chat) error
	DeleteChat(ctx context.Context, chatID int64) error

	GetQueue(ctx context.Context, queueID int64) (*Queue, error)
	GetQueueByName(ctx context.Context, chatID int64, name string) (*Queue, error)
	GetQueueByMessage(ctx context.Context, chatID int64, messageID int64) (*Queue, error)
	ListQueues(ctx context.Context, chatID int64) ([]Queue, error)
	CreateQueue(ctx context.Context, queue *Queue) error
	DeleteQueue(ctx context.Context, queueID int64) error
	SetCurrentOrder(ctx context.Context, queueID int64, order int) error
	// BumpRevision increments the queue's mutation counter, marks the queue as
	// awaiting a render and returns the new revision.
	BumpRevision(ctx context.Context, queueID int64) (int64, error)
	SetMessageReference(ctx context.Context, queueID int64, messageID int64) error
	SetRenderPending(ctx context.Context, queueID int64, pending bool) error
	// ClearRenderPending clears the pending flag unless the queue has moved
	// past revision since.
	ClearRenderPending(ctx context.Context, queueID, revision int64) error
	ListRenderPending(ctx context.Context) ([]Queue, error)

	// ListMembers returns the queue's members ordered by user_order.
	ListMembers(ctx context.Context, queueID int64) ([]Member, error)
	InsertMember(ctx context.Context, member *Member) error
	DeleteMember(ctx context.Context, queueID, userID int64) error
	SetMemberOrder(ctx context.Context, queueID, userID int64, order int) error
	// ShiftMemberOrders adds delta to the order of every member ranked after the given order.
	ShiftMemberOrders(ctx context.Context, queueID int64, after, delta int) error
}

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	Tx

	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// WithTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. Lock contention surfaces as ErrConflict.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// MigrateChat moves a chat and its queues to a new chat ID.
	MigrateChat(ctx context.Context, fromChatID, toChatID int64) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	ops
	db *sqlx.DB
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := logger.With("component", "store")
	return &sqlxStore{
		ops: ops{ext: db, logger: log},
		db:  db,
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to begin transaction", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	if err := fn(ops{ext: tx, logger: s.logger}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	// Successfully committed, set tx to nil to avoid rollback
	tx = nil
	return nil
}

// MigrateChat follows a group-to-supergroup migration. If the new chat is
// already known, queues whose names do not collide are moved over and the old
// chat is dropped together with anything left behind.
func (s *sqlxStore) MigrateChat(ctx context.Context, fromChatID, toChatID int64) error {
	if fromChatID == toChatID {
		return nil
	}

	return s.WithTx(ctx, func(tx Tx) error {
		o := tx.(ops)

		target, err := o.GetChat(ctx, toChatID)
		if err != nil {
			return err
		}

		if target == nil {
			res, err := o.ext.ExecContext(ctx,
				`UPDATE chats SET chat_id = ?, updated_at = ? WHERE chat_id = ?`,
				toChatID, time.Now().UTC(), fromChatID)
			if err != nil {
				return fmt.Errorf("failed to migrate chat %d to %d: %w", fromChatID, toChatID, classify(err))
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("chat %d: %w", fromChatID, ErrNotFound)
			}
			s.logger.InfoContext(ctx, "Migrated chat", "from_chat_id", fromChatID, "to_chat_id", toChatID)
			return nil
		}

		res, err := o.ext.ExecContext(ctx, `
			UPDATE queues SET chat_id = ?, updated_at = ?
			WHERE chat_id = ? AND name NOT IN (SELECT name FROM queues WHERE chat_id = ?)`,
			toChatID, time.Now().UTC(), fromChatID, toChatID)
		if err != nil {
			return fmt.Errorf("failed to move queues from chat %d to %d: %w", fromChatID, toChatID, classify(err))
		}
		moved, _ := res.RowsAffected()

		if err := o.DeleteChat(ctx, fromChatID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		s.logger.InfoContext(ctx, "Merged migrated chat into existing chat",
			"from_chat_id", fromChatID, "to_chat_id", toChatID, "queues_moved", moved)
		return nil
	})
}

// RunSQLMaintenance executes VACUUM and ANALYZE on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	start := time.Now()

	// VACUUM cannot run inside a transaction.
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		s.logger.ErrorContext(ctx, "Error running VACUUM", "error", err)
		return fmt.Errorf("failed to vacuum database: %w", classify(err))
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		s.logger.ErrorContext(ctx, "Error running ANALYZE", "error", err)
		return fmt.Errorf("failed to analyze database: %w", classify(err))
	}

	s.logger.InfoContext(ctx, "Database maintenance completed", "duration", time.Since(start))
	return nil
}

// ops implements Tx over either the pool or an open transaction.
type ops struct {
	ext    sqlx.ExtContext
	logger *slog.Logger
}

const queueColumns = `queue_id, chat_id, name, current_order, message_id_to_edit, notify,
	revision, render_pending, created_at, updated_at`

func (o ops) EnsureChat(ctx context.Context, chat *Chat) error {
	if chat == nil {
		return fmt.Errorf("cannot save nil chat")
	}
	if chat.ChatID == 0 {
		return fmt.Errorf("chat must have a non-zero chat_id")
	}
	if chat.Language == "" {
		chat.Language = "en"
	}

	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now

	query := `
		INSERT INTO chats (chat_id, name, notify, silent, language, created_at, updated_at)
		VALUES (:chat_id, :name, :notify, :silent, :language, :created_at, :updated_at)
		ON CONFLICT (chat_id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE chats.name END,
			updated_at = excluded.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, o.ext, query, chat); err != nil {
		o.logger.ErrorContext(ctx, "Error saving chat", "chat_id", chat.ChatID, "error", err)
		return fmt.Errorf("failed to save chat %d: %w", chat.ChatID, classify(err))
	}

	o.logger.DebugContext(ctx, "Chat saved", "chat_id", chat.ChatID)
	return nil
}

func (o ops) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var chat Chat
	err := sqlx.GetContext(ctx, o.ext, &chat,
		`SELECT chat_id, name, notify, silent, language, created_at, updated_at FROM chats WHERE chat_id = ?`, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get chat %d: %w", chatID, classify(err))
	}
	return &chat, nil
}

func (o ops) UpdateChatSettings(ctx context.Context, chat *Chat) error {
	if chat == nil {
		return fmt.Errorf("cannot update nil chat")
	}
	chat.UpdatedAt = time.Now().UTC()

	res, err := sqlx.NamedExecContext(ctx, o.ext, `
		UPDATE chats SET notify = :notify, silent = :silent, language = :language, updated_at = :updated_at
		WHERE chat_id = :chat_id`, chat)
	if err != nil {
		return fmt.Errorf("failed to update settings of chat %d: %w", chat.ChatID, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %d: %w", chat.ChatID, ErrNotFound)
	}
	return nil
}

// DeleteChat removes the chat; its queues and their members cascade.
func (o ops) DeleteChat(ctx context.Context, chatID int64) error {
	res, err := o.ext.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?`, chatID)
	if err != nil {
		o.logger.ErrorContext(ctx, "Error deleting chat", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to delete chat %d: %w", chatID, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %d: %w", chatID, ErrNotFound)
	}
	o.logger.InfoContext(ctx, "Deleted chat", "chat_id", chatID)
	return nil
}

func (o ops) getQueue(ctx context.Context, where string, args ...any) (*Queue, error) {
	var queue Queue
	err := sqlx.GetContext(ctx, o.ext, &queue, `SELECT `+queueColumns+` FROM queues WHERE `+where, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, classify(err)
	}
	return &queue, nil
}

func (o ops) GetQueue(ctx context.Context, queueID int64) (*Queue, error) {
	queue, err := o.getQueue(ctx, `queue_id = ?`, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue %d: %w", queueID, err)
	}
	return queue, nil
}

func (o ops) GetQueueByName(ctx context.Context, chatID int64, name string) (*Queue, error) {
	queue, err := o.getQueue(ctx, `chat_id = ? AND name = ?`, chatID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue %q in chat %d: %w", name, chatID, err)
	}
	return queue, nil
}

func (o ops) GetQueueByMessage(ctx context.Context, chatID int64, messageID int64) (*Queue, error) {
	queue, err := o.getQueue(ctx, `chat_id = ? AND message_id_to_edit = ?`, chatID, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue by message %d in chat %d: %w", messageID, chatID, err)
	}
	return queue, nil
}

func (o ops) ListQueues(ctx context.Context, chatID int64) ([]Queue, error) {
	var queues []Queue
	err := sqlx.SelectContext(ctx, o.ext, &queues,
		`SELECT `+queueColumns+` FROM queues WHERE chat_id = ? ORDER BY created_at, queue_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues of chat %d: %w", chatID, classify(err))
	}
	return queues, nil
}

// CreateQueue inserts the queue and fills in its generated ID. A name that is
// already taken in the chat yields ErrDuplicate.
func (o ops) CreateQueue(ctx context.Context, queue *Queue) error {
	if queue == nil {
		return fmt.Errorf("cannot create nil queue")
	}
	if queue.ChatID == 0 {
		return fmt.Errorf("queue must have a non-zero chat_id")
	}
	if queue.Name == "" {
		return fmt.Errorf("queue must have a non-empty name")
	}

	now := time.Now().UTC()
	queue.CreatedAt = now
	queue.UpdatedAt = now

	res, err := sqlx.NamedExecContext(ctx, o.ext, `
		INSERT INTO queues (chat_id, name, current_order, message_id_to_edit, notify, revision, render_pending, created_at, updated_at)
		VALUES (:chat_id, :name, :current_order, :message_id_to_edit, :notify, :revision, :render_pending, :created_at, :updated_at)`,
		queue)
	if err != nil {
		return fmt.Errorf("failed to create queue %q in chat %d: %w", queue.Name, queue.ChatID, classify(err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read id of queue %q: %w", queue.Name, err)
	}
	queue.QueueID = id

	o.logger.InfoContext(ctx, "Queue created", "queue_id", queue.QueueID, "chat_id", queue.ChatID, "name", queue.Name)
	return nil
}

// DeleteQueue removes the queue; its members cascade.
func (o ops) DeleteQueue(ctx context.Context, queueID int64) error {
	res, err := o.ext.ExecContext(ctx, `DELETE FROM queues WHERE queue_id = ?`, queueID)
	if err != nil {
		return fmt.Errorf("failed to delete queue %d: %w", queueID, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue %d: %w", queueID, ErrNotFound)
	}
	o.logger.InfoContext(ctx, "Queue deleted", "queue_id", queueID)
	return nil
}

func (o ops) SetCurrentOrder(ctx context.Context, queueID int64, order int) error {
	return o.updateQueue(ctx, queueID, `current_order = ?`, order)
}

func (o ops) BumpRevision(ctx context.Context, queueID int64) (int64, error) {
	var revision int64
	err := sqlx.GetContext(ctx, o.ext, &revision,
		`UPDATE queues SET revision = revision + 1, render_pending = 1, updated_at = ? WHERE queue_id = ? RETURNING revision`,
		time.Now().UTC(), queueID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("queue %d: %w", queueID, ErrNotFound)
	case err != nil:
		return 0, fmt.Errorf("failed to bump revision of queue %d: %w", queueID, classify(err))
	}
	return revision, nil
}

func (o ops) SetMessageReference(ctx context.Context, queueID int64, messageID int64) error {
	return o.updateQueue(ctx, queueID, `message_id_to_edit = ?`, messageID)
}

func (o ops) SetRenderPending(ctx context.Context, queueID int64, pending bool) error {
	return o.updateQueue(ctx, queueID, `render_pending = ?`, pending)
}

func (o ops) ClearRenderPending(ctx context.Context, queueID, revision int64) error {
	_, err := o.ext.ExecContext(ctx,
		`UPDATE queues SET render_pending = 0 WHERE queue_id = ? AND revision <= ? AND render_pending = 1`,
		queueID, revision)
	if err != nil {
		return fmt.Errorf("failed to clear render pending flag of queue %d: %w", queueID, classify(err))
	}
	return nil
}

func (o ops) updateQueue(ctx context.Context, queueID int64, set string, value any) error {
	res, err := o.ext.ExecContext(ctx,
		`UPDATE queues SET `+set+`, updated_at = ? WHERE queue_id = ?`, value, time.Now().UTC(), queueID)
	if err != nil {
		return fmt.Errorf("failed to update queue %d: %w", queueID, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue %d: %w", queueID, ErrNotFound)
	}
	return nil
}

func (o ops) ListRenderPending(ctx context.Context) ([]Queue, error) {
	var queues []Queue
	err := sqlx.SelectContext(ctx, o.ext, &queues,
		`SELECT `+queueColumns+` FROM queues WHERE render_pending = 1 ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues pending render: %w", classify(err))
	}
	return queues, nil
}

func (o ops) ListMembers(ctx context.Context, queueID int64) ([]Member, error) {
	var members []Member
	err := sqlx.SelectContext(ctx, o.ext, &members, `
		SELECT queue_id, user_id, user_order, display_name, joined_at
		FROM members WHERE queue_id = ? ORDER BY user_order`, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of queue %d: %w", queueID, classify(err))
	}
	return members, nil
}

// InsertMember adds a member. A user already present in the queue yields ErrDuplicate.
func (o ops) InsertMember(ctx context.Context, member *Member) error {
	if member == nil {
		return fmt.Errorf("cannot insert nil member")
	}
	if member.UserOrder <= 0 {
		return fmt.Errorf("member must have a positive user_order, got %d", member.UserOrder)
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}

	_, err := sqlx.NamedExecContext(ctx, o.ext, `
		INSERT INTO members (queue_id, user_id, user_order, display_name, joined_at)
		VALUES (:queue_id, :user_id, :user_order, :display_name, :joined_at)`, member)
	if err != nil {
		return fmt.Errorf("failed to add user %d to queue %d: %w", member.UserID, member.QueueID, classify(err))
	}
	return nil
}

func (o ops) DeleteMember(ctx context.Context, queueID, userID int64) error {
	res, err := o.ext.ExecContext(ctx, `DELETE FROM members WHERE queue_id = ? AND user_id = ?`, queueID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove user %d from queue %d: %w", userID, queueID, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member %d of queue %d: %w", userID, queueID, ErrNotFound)
	}
	return nil
}

func (o ops) SetMemberOrder(ctx context.Context, queueID, userID int64, order int) error {
	res, err := o.ext.ExecContext(ctx,
		`UPDATE members SET user_order = ? WHERE queue_id = ? AND user_id = ?`, order, queueID, userID)
	if err != nil {
		return fmt.Errorf("failed to set order of user %d in queue %d: %w", userID, queueID, classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member %d of queue %d: %w", userID, queueID, ErrNotFound)
	}
	return nil
}

func (o ops) ShiftMemberOrders(ctx context.Context, queueID int64, after, delta int) error {
	_, err := o.ext.ExecContext(ctx,
		`UPDATE members SET user_order = user_order + ? WHERE queue_id = ? AND user_order > ?`, delta, queueID, after)
	if err != nil {
		return fmt.Errorf("failed to shift orders after %d in queue %d: %w", after, queueID, classify(err))
	}
	return nil
}
