package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/config"
	"github.com/edgard/queuebot/internal/database"
	"github.com/edgard/queuebot/internal/queue"
)

// NewNotifyHandler returns a handler for /notify_all, which toggles pinning
// of new queue messages.
func NewNotifyHandler(deps HandlerDeps) bot.HandlerFunc {
	return settingsHandler{
		deps: deps,
		name: "notify_all",
		update: func(ctx context.Context, svc *queue.Service, msg *models.Message, _ string) queue.Outcome {
			return svc.ToggleNotify(ctx, msg.Chat.ID, chatTitle(msg.Chat))
		},
		confirm: func(msgs config.Messages, chat *database.Chat) string {
			if chat.Notify {
				return msgs.NotifyOnMsg
			}
			return msgs.NotifyOffMsg
		},
	}.Handle
}

// NewSilentHandler returns a handler for /silent, which toggles confirmation
// replies.
func NewSilentHandler(deps HandlerDeps) bot.HandlerFunc {
	return settingsHandler{
		deps: deps,
		name: "silent",
		update: func(ctx context.Context, svc *queue.Service, msg *models.Message, _ string) queue.Outcome {
			return svc.ToggleSilent(ctx, msg.Chat.ID, chatTitle(msg.Chat))
		},
		confirm: func(msgs config.Messages, chat *database.Chat) string {
			if chat.Silent {
				return msgs.SilentOnMsg
			}
			return msgs.SilentOffMsg
		},
	}.Handle
}

// NewLanguageHandler returns a handler for /language <tag>.
func NewLanguageHandler(deps HandlerDeps) bot.HandlerFunc {
	return settingsHandler{
		deps: deps,
		name: "language",
		validate: func(msgs config.Messages, args string) string {
			if args == "" || !deps.Config.HasLanguage(args) {
				return fmt.Sprintf(msgs.LanguageUsageFmt, strings.Join(deps.Config.Languages(), ", "))
			}
			return ""
		},
		update: func(ctx context.Context, svc *queue.Service, msg *models.Message, args string) queue.Outcome {
			return svc.SetLanguage(ctx, msg.Chat.ID, chatTitle(msg.Chat), args)
		},
		confirm: func(msgs config.Messages, chat *database.Chat) string {
			return fmt.Sprintf(msgs.LanguageSetFmt, chat.Language)
		},
	}.Handle
}

// settingsHandler changes one chat setting. Confirmations use the messages
// of the updated chat and are always sent, so a chat switching silent mode
// on still hears about it.
type settingsHandler struct {
	deps     HandlerDeps
	name     string
	validate func(msgs config.Messages, args string) string
	update   func(ctx context.Context, svc *queue.Service, msg *models.Message, args string) queue.Outcome
	confirm  func(msgs config.Messages, chat *database.Chat) string
}

func (h settingsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Settings handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	msg := update.Message
	_, args := parseCommand(msg.Text)
	msgs, _ := h.deps.chatView(ctx, msg.Chat.ID)

	if h.validate != nil {
		if problem := h.validate(msgs, args); problem != "" {
			sendText(ctx, b, log, msg.Chat.ID, msg.ID, problem)
			return
		}
	}

	out := h.update(ctx, h.deps.Service, msg, args)
	reportIncident(ctx, b, h.deps, actionFromMessage(msg), out)
	if !out.OK() || out.Chat == nil {
		sendText(ctx, b, log, msg.Chat.ID, msg.ID, rejectionText(msgs, out))
		return
	}

	log.InfoContext(ctx, "Updated chat settings", "chat_id", msg.Chat.ID, "notify", out.Chat.Notify, "silent", out.Chat.Silent, "language", out.Chat.Language)
	msgs = h.deps.Config.MessagesFor(out.Chat.Language)
	sendText(ctx, b, log, msg.Chat.ID, msg.ID, h.confirm(msgs, out.Chat))
}
