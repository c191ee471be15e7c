package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/edgard/queuebot/internal/database"
)

// Action is an inbound queue action from a chat.
type Action struct {
	ChatID   int64
	ChatName string
	User     User
	// ReplyTo is the referenced message ID, zero when absent.
	ReplyTo int64
	// Name is the free-text queue name, possibly empty.
	Name string
	// Raw is the original input, kept for logging.
	Raw string
}

func (a Action) input(passThrough bool) Input {
	return Input{ReplyTo: a.ReplyTo, Name: a.Name, PassThrough: passThrough}
}

// Outcome is the user-facing result of a service call. Storage errors never
// leave the service; they become KindStorageConflict or KindInternal with an
// IncidentID.
type Outcome struct {
	Kind Kind
	// Queue is the name of the queue the action applied to, when known.
	Queue      string
	Snapshot   *Snapshot
	Called     *database.Member
	Queues     []database.Queue
	Chat       *database.Chat
	IncidentID string
	// Err is the classified cause, kept for logging and incident reports.
	Err error
}

// OK reports whether the action succeeded.
func (o Outcome) OK() bool { return o.Kind == KindOK }

// Service exposes queue actions and chat lifecycle operations.
type Service struct {
	store    database.Store
	engine   *Engine
	resolver Resolver
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(store database.Store, engine *Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:  store,
		engine: engine,
		logger: logger.With("component", "queue_service"),
	}
}

func (s *Service) logAction(ctx context.Context, verb string, a Action) {
	s.logger.InfoContext(ctx, "Queue action",
		"action", verb,
		"chat_id", a.ChatID,
		"user_id", a.User.ID,
		"reply_to", a.ReplyTo,
		"input", a.Raw,
	)
}

// Join adds the acting user to the end of the targeted queue.
func (s *Service) Join(ctx context.Context, a Action) Outcome {
	s.logAction(ctx, "join", a)
	change, err := s.engine.apply(ctx, s.resolver.locator(a.ChatID, a.input(false)), joinOp(a.User))
	return s.outcome(ctx, "join", change, err)
}

// Leave removes the acting user from the targeted queue.
func (s *Service) Leave(ctx context.Context, a Action) Outcome {
	s.logAction(ctx, "leave", a)
	change, err := s.engine.apply(ctx, s.resolver.locator(a.ChatID, a.input(false)), leaveOp(a.User.ID))
	return s.outcome(ctx, "leave", change, err)
}

// Skip lets the member behind the acting user go first.
func (s *Service) Skip(ctx context.Context, a Action) Outcome {
	s.logAction(ctx, "skip", a)
	change, err := s.engine.apply(ctx, s.resolver.locator(a.ChatID, a.input(false)), skipOp(a.User.ID))
	return s.outcome(ctx, "skip", change, err)
}

// MoveToEnd puts the acting user behind everyone else.
func (s *Service) MoveToEnd(ctx context.Context, a Action) Outcome {
	s.logAction(ctx, "move_to_end", a)
	change, err := s.engine.apply(ctx, s.resolver.locator(a.ChatID, a.input(false)), moveToEndOp(a.User.ID))
	return s.outcome(ctx, "move_to_end", change, err)
}

// Advance calls the next member. Moving past the last member is reported as
// KindQueueExhausted, the pointer still moves.
func (s *Service) Advance(ctx context.Context, a Action) Outcome {
	s.logAction(ctx, "advance", a)
	change, err := s.engine.apply(ctx, s.resolver.locator(a.ChatID, a.input(false)), advanceOp)
	out := s.outcome(ctx, "advance", change, err)
	if out.OK() && change.Exhausted {
		out.Kind = KindQueueExhausted
	}
	return out
}

// Show returns the targeted queue's members and reposts its message. Without
// any target it returns KindNeedsQueueName along with the chat's queues.
func (s *Service) Show(ctx context.Context, a Action) Outcome {
	s.logAction(ctx, "show", a)

	lookup, err := Plan(a.ReplyTo, a.Name, true)
	if err != nil {
		return s.outcome(ctx, "show", Change{}, err)
	}
	if lookup.Kind == LookupNone {
		queues, err := s.store.ListQueues(ctx, a.ChatID)
		if err != nil {
			return s.outcome(ctx, "show", Change{}, err)
		}
		return Outcome{Kind: KindNeedsQueueName, Queues: queues}
	}

	change, err := s.engine.apply(ctx, s.resolver.locator(a.ChatID, a.input(true)), showOp)
	out := s.outcome(ctx, "show", change, err)
	if out.OK() {
		req := change.Snapshot.RenderRequest()
		req.Repost = true
		s.engine.trigger.Render(ctx, req)
	}
	return out
}

// CreateQueue creates an empty queue in the chat and renders its message.
func (s *Service) CreateQueue(ctx context.Context, a Action) Outcome {
	s.logAction(ctx, "create_queue", a)

	name := strings.TrimSpace(a.Name)
	if name == "" {
		return Outcome{Kind: KindNoQueueSpecified}
	}

	var snapshot Snapshot
	err := s.engine.inTx(ctx, func(tx database.Tx) error {
		if err := tx.EnsureChat(ctx, &database.Chat{ChatID: a.ChatID, Name: a.ChatName, Notify: true}); err != nil {
			return err
		}
		chat, err := tx.GetChat(ctx, a.ChatID)
		if err != nil {
			return err
		}

		q := &database.Queue{
			ChatID:        a.ChatID,
			Name:          name,
			Notify:        chat != nil && chat.Notify,
			Revision:      1,
			RenderPending: true,
		}
		if err := tx.CreateQueue(ctx, q); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return &Error{Kind: KindNameConflict, Name: name, Err: err}
			}
			return err
		}
		snapshot = Snapshot{Queue: *q}
		return nil
	})
	if err != nil {
		return s.outcome(ctx, "create_queue", Change{}, err)
	}

	s.engine.trigger.Render(ctx, snapshot.RenderRequest())
	return Outcome{Kind: KindOK, Queue: name, Snapshot: &snapshot}
}

// DeleteQueue deletes the named queue with its members. The outcome carries
// the deleted queue so its message can be cleaned up.
func (s *Service) DeleteQueue(ctx context.Context, a Action) Outcome {
	s.logAction(ctx, "delete_queue", a)

	var deleted database.Queue
	err := s.engine.inTx(ctx, func(tx database.Tx) error {
		q, err := s.resolver.Resolve(ctx, tx, a.ChatID, a.input(false))
		if err != nil {
			return err
		}
		if err := tx.DeleteQueue(ctx, q.QueueID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return &Error{Kind: KindQueueNotFound, Name: q.Name, Err: err}
			}
			return err
		}
		deleted = *q
		return nil
	})
	if err != nil {
		return s.outcome(ctx, "delete_queue", Change{}, err)
	}
	return Outcome{Kind: KindOK, Queue: deleted.Name, Snapshot: &Snapshot{Queue: deleted}}
}

// ListQueues returns the chat's queues in creation order.
func (s *Service) ListQueues(ctx context.Context, chatID int64) Outcome {
	queues, err := s.store.ListQueues(ctx, chatID)
	if err != nil {
		return s.outcome(ctx, "list_queues", Change{}, err)
	}
	return Outcome{Kind: KindOK, Queues: queues}
}

// UpdateMessageReference records the message that now displays the queue.
func (s *Service) UpdateMessageReference(ctx context.Context, queueID, messageID int64) error {
	if err := s.store.SetMessageReference(ctx, queueID, messageID); err != nil {
		return fmt.Errorf("failed to update message reference of queue %d: %w", queueID, err)
	}
	s.logger.DebugContext(ctx, "Updated message reference", "queue_id", queueID, "message_id", messageID)
	return nil
}

// Rerender triggers a render for every queue whose latest revision has not
// been displayed yet.
func (s *Service) Rerender(ctx context.Context) (int, error) {
	queues, err := s.store.ListRenderPending(ctx)
	if err != nil {
		return 0, err
	}

	rendered := 0
	for _, q := range queues {
		snapshot, err := s.engine.Snapshot(ctx, q.QueueID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return rendered, err
		}
		s.engine.trigger.Render(ctx, snapshot.RenderRequest())
		rendered++
	}
	return rendered, nil
}

// RegisterChat records a chat the bot was added to.
func (s *Service) RegisterChat(ctx context.Context, chatID int64, name string) error {
	if err := s.store.EnsureChat(ctx, &database.Chat{ChatID: chatID, Name: name, Notify: true}); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Registered chat", "chat_id", chatID, "name", name)
	return nil
}

// ForgetChat deletes a chat and all of its queues.
func (s *Service) ForgetChat(ctx context.Context, chatID int64) error {
	err := s.store.DeleteChat(ctx, chatID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	return err
}

// MigrateChat moves a chat's queues to its new ID after a supergroup upgrade.
func (s *Service) MigrateChat(ctx context.Context, fromChatID, toChatID int64) error {
	err := s.store.MigrateChat(ctx, fromChatID, toChatID)
	if errors.Is(err, database.ErrNotFound) {
		s.logger.InfoContext(ctx, "Nothing to migrate for unknown chat", "from_chat_id", fromChatID)
		return nil
	}
	return err
}

// ChatSettings returns the chat's settings, or the defaults for an unknown chat.
func (s *Service) ChatSettings(ctx context.Context, chatID int64) (*database.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		chat = &database.Chat{ChatID: chatID, Notify: true, Language: "en"}
	}
	return chat, nil
}

// ToggleNotify flips whether new queue messages are pinned.
func (s *Service) ToggleNotify(ctx context.Context, chatID int64, chatName string) Outcome {
	return s.updateChat(ctx, "toggle_notify", chatID, chatName, func(c *database.Chat) { c.Notify = !c.Notify })
}

// ToggleSilent flips whether non-essential replies are suppressed.
func (s *Service) ToggleSilent(ctx context.Context, chatID int64, chatName string) Outcome {
	return s.updateChat(ctx, "toggle_silent", chatID, chatName, func(c *database.Chat) { c.Silent = !c.Silent })
}

// SetLanguage sets the chat's message language.
func (s *Service) SetLanguage(ctx context.Context, chatID int64, chatName, language string) Outcome {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return Outcome{Kind: KindNoQueueSpecified}
	}
	return s.updateChat(ctx, "set_language", chatID, chatName, func(c *database.Chat) { c.Language = language })
}

func (s *Service) updateChat(ctx context.Context, verb string, chatID int64, chatName string, mutate func(*database.Chat)) Outcome {
	s.logger.InfoContext(ctx, "Chat settings action", "action", verb, "chat_id", chatID)

	var updated database.Chat
	err := s.engine.inTx(ctx, func(tx database.Tx) error {
		if err := tx.EnsureChat(ctx, &database.Chat{ChatID: chatID, Name: chatName, Notify: true}); err != nil {
			return err
		}
		chat, err := tx.GetChat(ctx, chatID)
		if err != nil {
			return err
		}
		if chat == nil {
			return fmt.Errorf("chat %d: %w", chatID, database.ErrNotFound)
		}
		mutate(chat)
		if err := tx.UpdateChatSettings(ctx, chat); err != nil {
			return err
		}
		updated = *chat
		return nil
	})
	if err != nil {
		return s.outcome(ctx, verb, Change{}, err)
	}
	return Outcome{Kind: KindOK, Chat: &updated}
}

// outcome maps an engine result onto an Outcome.
func (s *Service) outcome(ctx context.Context, verb string, change Change, err error) Outcome {
	if err == nil {
		snapshot := change.Snapshot
		return Outcome{
			Kind:     KindOK,
			Queue:    snapshot.Queue.Name,
			Snapshot: &snapshot,
			Called:   change.Called,
		}
	}

	var qErr *Error
	switch {
	case errors.As(err, &qErr) && qErr.Kind != KindInternal:
		s.logger.InfoContext(ctx, "Queue action rejected", "action", verb, "kind", qErr.Kind, "queue", qErr.Name)
		return Outcome{Kind: qErr.Kind, Queue: qErr.Name, Err: err}
	case errors.Is(err, database.ErrConflict):
		s.logger.WarnContext(ctx, "Queue action lost to concurrent updates", "action", verb, "error", err)
		return Outcome{Kind: KindStorageConflict, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.WarnContext(ctx, "Queue action abandoned", "action", verb, "error", err)
		return Outcome{Kind: KindStorageConflict, Err: err}
	}

	incident := uuid.NewString()
	s.logger.ErrorContext(ctx, "Queue action failed", "action", verb, "incident_id", incident, "error", err)
	return Outcome{Kind: KindInternal, IncidentID: incident, Err: err}
}
