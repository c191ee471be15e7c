package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/queue"
)

// Callback data of the queue message buttons.
const (
	CallbackPrefix    = "queue_"
	CallbackJoin      = CallbackPrefix + "join"
	CallbackLeave     = CallbackPrefix + "leave"
	CallbackSkip      = CallbackPrefix + "skip"
	CallbackMoveToEnd = CallbackPrefix + "end"
	CallbackNext      = CallbackPrefix + "next"
)

var callbackActions = map[string]Action{
	CallbackJoin:      ActionJoin,
	CallbackLeave:     ActionLeave,
	CallbackSkip:      ActionSkip,
	CallbackMoveToEnd: ActionMoveToEnd,
	CallbackNext:      ActionNext,
}

// NewCallbackHandler returns a handler for the queue message buttons. The
// pressed message identifies the queue.
func NewCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return callbackHandler{deps}.Handle
}

type callbackHandler struct {
	deps HandlerDeps
}

func (h callbackHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "callback")

	cb := update.CallbackQuery
	if cb == nil || cb.Message.Message == nil {
		log.WarnContext(ctx, "Callback handler received update without an accessible message", "update_id", update.ID)
		if cb != nil {
			answerCallback(ctx, b, log, cb.ID, "")
		}
		return
	}

	action, ok := callbackActions[cb.Data]
	if !ok {
		log.WarnContext(ctx, "Unknown callback data", "data", cb.Data, "user_id", cb.From.ID)
		answerCallback(ctx, b, log, cb.ID, "")
		return
	}

	msg := cb.Message.Message
	qa := queue.Action{
		ChatID:   msg.Chat.ID,
		ChatName: chatTitle(msg.Chat),
		User:     queue.User{ID: cb.From.ID, DisplayName: displayName(&cb.From)},
		ReplyTo:  int64(msg.ID),
		Raw:      cb.Data,
	}
	out := action.run(ctx, h.deps.Service, qa)
	reportIncident(ctx, b, h.deps, qa, out)

	msgs, _ := h.deps.chatView(ctx, qa.ChatID)
	r := replyFor(msgs, action, qa, out)
	if r.markdown {
		// Called members are announced in the chat so they get notified.
		sendMarkdown(ctx, b, log, qa.ChatID, r.text)
		answerCallback(ctx, b, log, cb.ID, "")
		return
	}
	answerCallback(ctx, b, log, cb.ID, r.text)
}
