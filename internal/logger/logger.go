// Package logger provides structured logging for QueueBot on top of log/slog,
// plus a Telegram middleware that logs every processed update.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewLogger creates a stdout slog Logger with the given level and format and
// installs it as the default logger.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	logger := New(os.Stdout, levelStr, jsonOutput)
	slog.SetDefault(logger)
	return logger
}

// New creates a slog Logger writing to w. Unknown levels fall back to info.
func New(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config level name onto a slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Middleware logs each incoming update with its kind, chat, user and duration.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()
			entry := log.With(append([]any{"update_id", update.ID}, UpdateAttrs(update)...)...)

			entry.DebugContext(ctx, "Processing update")
			next(ctx, b, update)
			entry.InfoContext(ctx, "Processed update", "duration", time.Since(startTime))
		}
	}
}

// UpdateAttrs describes an update as slog key/value pairs.
func UpdateAttrs(update *models.Update) []any {
	switch {
	case update.Message != nil:
		msg := update.Message
		attrs := []any{
			"update_type", "message",
			"chat_id", msg.Chat.ID,
			"chat_type", msg.Chat.Type,
			"message_id", msg.ID,
		}
		if msg.From != nil {
			attrs = append(attrs, "user_id", msg.From.ID)
		}
		if msg.Text != "" {
			attrs = append(attrs, "text_preview", truncateString(msg.Text, 50))
		}
		return attrs
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		attrs := []any{
			"update_type", "callback_query",
			"callback_query_id", cq.ID,
			"user_id", cq.From.ID,
			"data", cq.Data,
		}
		switch {
		case cq.Message.Message != nil:
			attrs = append(attrs, "chat_id", cq.Message.Message.Chat.ID, "message_id", cq.Message.Message.ID, "message_accessible", true)
		case cq.Message.InaccessibleMessage != nil:
			attrs = append(attrs, "chat_id", cq.Message.InaccessibleMessage.Chat.ID, "message_accessible", false)
		}
		return attrs
	case update.MyChatMember != nil:
		return []any{
			"update_type", "my_chat_member",
			"chat_id", update.MyChatMember.Chat.ID,
			"user_id", update.MyChatMember.From.ID,
		}
	default:
		return []any{"update_type", "other"}
	}
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
