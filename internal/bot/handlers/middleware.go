package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// isGroup reports whether queues may live in a chat of this type.
func isGroup(chatType models.ChatType) bool {
	return chatType == models.ChatTypeGroup || chatType == models.ChatTypeSupergroup
}

// GroupOnly stops commands and button presses that do not come from a group
// or supergroup, replying with the group-only message.
func GroupOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			log := deps.Logger.With("middleware", "GroupOnly")

			switch {
			case update.Message != nil:
				if isGroup(update.Message.Chat.Type) {
					next(ctx, bot, update)
					return
				}
				chatID := update.Message.Chat.ID
				log.InfoContext(ctx, "Rejected queue command outside of a group", "chat_id", chatID, "chat_type", update.Message.Chat.Type)
				_, err := bot.SendMessage(ctx, &tgbot.SendMessageParams{
					ChatID: chatID,
					Text:   deps.Config.Messages.GroupOnlyMsg,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send group-only message", "error", err, "chat_id", chatID)
				}

			case update.CallbackQuery != nil:
				msg := update.CallbackQuery.Message.Message
				if msg != nil && isGroup(msg.Chat.Type) {
					next(ctx, bot, update)
					return
				}
				log.InfoContext(ctx, "Rejected button press outside of a group", "user_id", update.CallbackQuery.From.ID)
				answerCallback(ctx, bot, log, update.CallbackQuery.ID, deps.Config.Messages.GroupOnlyMsg)
			}
		}
	}
}
