package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewChatHandler returns the handler of membership updates. It follows the bot's
// membership in chats: registering chats it joins, forgetting chats it is
// removed from and moving queues when a group becomes a supergroup.
func NewChatHandler(deps HandlerDeps) bot.HandlerFunc {
	return chatHandler{deps}.Handle
}

type chatHandler struct {
	deps HandlerDeps
}

// chatEvent is a membership change of the bot itself.
type chatEvent int

const (
	chatEventNone chatEvent = iota
	chatEventJoined
	chatEventRemoved
	chatEventMigrated
)

// classifyChatEvent works out what update means for the bot with botID.
func classifyChatEvent(update *models.Update, botID int64) chatEvent {
	if m := update.MyChatMember; m != nil {
		switch m.NewChatMember.Type {
		case models.ChatMemberTypeLeft, models.ChatMemberTypeBanned:
			return chatEventRemoved
		case models.ChatMemberTypeMember, models.ChatMemberTypeAdministrator:
			if isGroup(m.Chat.Type) {
				return chatEventJoined
			}
		}
		return chatEventNone
	}

	msg := update.Message
	if msg == nil {
		return chatEventNone
	}
	switch {
	case msg.MigrateToChatID != 0:
		return chatEventMigrated
	case msg.LeftChatMember != nil && msg.LeftChatMember.ID == botID:
		return chatEventRemoved
	case msg.GroupChatCreated || msg.SupergroupChatCreated:
		return chatEventJoined
	}
	for _, u := range msg.NewChatMembers {
		if u.ID == botID {
			return chatEventJoined
		}
	}
	return chatEventNone
}

func (h chatHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "chat")

	switch classifyChatEvent(update, h.deps.botID()) {
	case chatEventJoined:
		chat := eventChat(update)
		if err := h.deps.Service.RegisterChat(ctx, chat.ID, chatTitle(chat)); err != nil {
			log.ErrorContext(ctx, "Failed to register chat", "chat_id", chat.ID, "error", err)
			return
		}
		// Only the service message carries a welcome, membership updates
		// arrive alongside it.
		if update.Message != nil {
			msgs, _ := h.deps.chatView(ctx, chat.ID)
			sendText(ctx, b, log, chat.ID, 0, msgs.Welcome)
		}

	case chatEventRemoved:
		chat := eventChat(update)
		if err := h.deps.Service.ForgetChat(ctx, chat.ID); err != nil {
			log.ErrorContext(ctx, "Failed to forget chat", "chat_id", chat.ID, "error", err)
			return
		}
		log.InfoContext(ctx, "Forgot chat the bot was removed from", "chat_id", chat.ID)

	case chatEventMigrated:
		from, to := update.Message.Chat.ID, update.Message.MigrateToChatID
		if err := h.deps.Service.MigrateChat(ctx, from, to); err != nil {
			log.ErrorContext(ctx, "Failed to migrate chat", "from_chat_id", from, "to_chat_id", to, "error", err)
			return
		}
		log.InfoContext(ctx, "Migrated chat", "from_chat_id", from, "to_chat_id", to)

	default:
		log.DebugContext(ctx, "Ignoring update", "update_id", update.ID)
	}
}

func eventChat(update *models.Update) models.Chat {
	if update.MyChatMember != nil {
		return update.MyChatMember.Chat
	}
	return update.Message.Chat
}
