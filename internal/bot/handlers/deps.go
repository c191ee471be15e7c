package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/queuebot/internal/config"
	"github.com/edgard/queuebot/internal/queue"
)

// QueueMessageCleaner removes the rendered message of a deleted queue.
type QueueMessageCleaner interface {
	DeleteQueueMessage(ctx context.Context, chatID, messageID int64)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Service  *queue.Service
	Messages QueueMessageCleaner
}

// chatView returns the chat's messages in its language and whether it is silent.
// Lookup failures fall back to the default messages.
func (d HandlerDeps) chatView(ctx context.Context, chatID int64) (config.Messages, bool) {
	chat, err := d.Service.ChatSettings(ctx, chatID)
	if err != nil {
		d.Logger.WarnContext(ctx, "Failed to load chat settings, using defaults", "chat_id", chatID, "error", err)
		return d.Config.Messages, false
	}
	return d.Config.MessagesFor(chat.Language), chat.Silent
}

func (d HandlerDeps) botID() int64 {
	if info := d.Config.Telegram.BotInfo; info != nil {
		return info.ID
	}
	return 0
}
