package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/config"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return textHandler{deps: deps, name: "start", text: func(m config.Messages) string { return m.Welcome }}.Handle
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return textHandler{deps: deps, name: "help", text: func(m config.Messages) string { return m.Help }}.Handle
}

// textHandler answers a command with a fixed text in the chat's language.
type textHandler struct {
	deps HandlerDeps
	name string
	text func(config.Messages) string
}

func (h textHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /"+h.name+" command", "chat_id", chatID, "user_id", update.Message.From.ID)

	msgs, _ := h.deps.chatView(ctx, chatID)
	text := h.text(msgs)
	if info := h.deps.Config.Telegram.BotInfo; info != nil && info.Username != "" {
		text = strings.ReplaceAll(text, "@botname", "@"+info.Username)
	}
	sendText(ctx, b, log, chatID, 0, text)
}
