package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/database"
	"github.com/edgard/queuebot/internal/queue"
	"github.com/edgard/queuebot/internal/resilience"
)

// Messenger is the subset of the Bot API the presenter uses. *bot.Bot implements it.
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	PinChatMessage(ctx context.Context, params *bot.PinChatMessageParams) (bool, error)
}

// MessageRefUpdater records which message displays a queue.
type MessageRefUpdater interface {
	UpdateMessageReference(ctx context.Context, queueID, messageID int64) error
}

// MessageRefUpdaterFunc adapts a function to MessageRefUpdater.
type MessageRefUpdaterFunc func(ctx context.Context, queueID, messageID int64) error

func (f MessageRefUpdaterFunc) UpdateMessageReference(ctx context.Context, queueID, messageID int64) error {
	return f(ctx, queueID, messageID)
}

// TextSource returns the texts to render a chat's queues with.
type TextSource func(ctx context.Context, chatID int64) Texts

// Presenter displays queues in their chats. It edits the existing message in
// place and falls back to posting a new one (deleting the old) when editing is
// impossible, then records the new message as the queue's reference.
type Presenter struct {
	messenger Messenger
	refs      MessageRefUpdater
	texts     TextSource
	breaker   *resilience.CircuitBreaker
	logger    *slog.Logger
}

// NewPresenter creates a Presenter. Calls to Telegram go through breaker.
func NewPresenter(messenger Messenger, refs MessageRefUpdater, texts TextSource, breaker *resilience.CircuitBreaker, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if breaker == nil {
		breaker = NewBreaker(resilience.CircuitBreakerConfig{Logger: logger})
	}
	return &Presenter{
		messenger: messenger,
		refs:      refs,
		texts:     texts,
		breaker:   breaker,
		logger:    logger.With("component", "presenter"),
	}
}

// NewBreaker creates a circuit breaker for Telegram calls. Requests Telegram
// rejected (bad request, forbidden) do not count as failures.
func NewBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "telegram"
	}
	cfg.IsSuccessful = func(err error) bool {
		return errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorForbidden)
	}
	return resilience.NewCircuitBreaker(cfg)
}

// Present shows req in its chat.
func (p *Presenter) Present(ctx context.Context, req queue.RenderRequest) error {
	texts := p.texts(ctx, req.ChatID)
	text := FormatQueue(req, texts)
	markup := QueueKeyboard(texts)

	if req.MessageID != 0 && !req.Repost {
		err := p.call(ctx, func(ctx context.Context) error {
			_, err := p.messenger.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:      req.ChatID,
				MessageID:   int(req.MessageID),
				Text:        text,
				ParseMode:   models.ParseModeMarkdown,
				ReplyMarkup: markup,
			})
			return err
		})
		if err == nil || isNotModified(err) {
			return nil
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return err
		}
		p.logger.InfoContext(ctx, "Editing queue message failed, posting a new one",
			"queue_id", req.QueueID, "chat_id", req.ChatID, "message_id", req.MessageID, "error", err)
	}

	var sent *models.Message
	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		sent, err = p.messenger.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      req.ChatID,
			Text:        text,
			ParseMode:   models.ParseModeMarkdown,
			ReplyMarkup: markup,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send queue %d message: %w", req.QueueID, err)
	}

	if req.MessageID != 0 {
		p.deleteMessage(ctx, req.ChatID, req.MessageID)
	} else if req.Notify {
		p.pinMessage(ctx, req.ChatID, int64(sent.ID))
	}

	err = p.refs.UpdateMessageReference(ctx, req.QueueID, int64(sent.ID))
	if errors.Is(err, database.ErrNotFound) {
		// The queue was deleted while its render was in flight.
		p.logger.InfoContext(ctx, "Queue deleted before its message was recorded, removing message",
			"queue_id", req.QueueID, "chat_id", req.ChatID, "message_id", sent.ID)
		p.deleteMessage(ctx, req.ChatID, int64(sent.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record queue %d message: %w", req.QueueID, err)
	}
	return nil
}

// deleteMessage removes a superseded queue message; it may already be gone.
func (p *Presenter) deleteMessage(ctx context.Context, chatID, messageID int64) {
	err := p.call(ctx, func(ctx context.Context) error {
		_, err := p.messenger.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: int(messageID)})
		return err
	})
	if err != nil {
		p.logger.DebugContext(ctx, "Could not delete old queue message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (p *Presenter) pinMessage(ctx context.Context, chatID, messageID int64) {
	err := p.call(ctx, func(ctx context.Context) error {
		_, err := p.messenger.PinChatMessage(ctx, &bot.PinChatMessageParams{
			ChatID:              chatID,
			MessageID:           int(messageID),
			DisableNotification: false,
		})
		return err
	})
	if err != nil {
		p.logger.InfoContext(ctx, "Could not pin queue message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// DeleteQueueMessage removes the message of a deleted queue, best effort.
func (p *Presenter) DeleteQueueMessage(ctx context.Context, chatID, messageID int64) {
	if messageID == 0 {
		return
	}
	p.deleteMessage(ctx, chatID, messageID)
}

func (p *Presenter) call(ctx context.Context, fn func(context.Context) error) error {
	return p.breaker.Execute(ctx, fn)
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
