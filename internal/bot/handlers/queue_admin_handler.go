package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/config"
	"github.com/edgard/queuebot/internal/queue"
)

// NewCreateQueueHandler returns a handler for /create_queue <name>.
func NewCreateQueueHandler(deps HandlerDeps) bot.HandlerFunc {
	return createQueueHandler{deps}.Handle
}

type createQueueHandler struct {
	deps HandlerDeps
}

func (h createQueueHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "create_queue")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Create handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	qa := actionFromMessage(update.Message)
	qa.ReplyTo = 0
	out := h.deps.Service.CreateQueue(ctx, qa)
	reportIncident(ctx, b, h.deps, qa, out)

	msgs, silent := h.deps.chatView(ctx, qa.ChatID)
	if out.OK() {
		if !silent {
			sendText(ctx, b, log, qa.ChatID, update.Message.ID, fmt.Sprintf(msgs.QueueCreatedFmt, out.Queue))
		}
		return
	}
	sendText(ctx, b, log, qa.ChatID, update.Message.ID, rejectionText(msgs, out))
}

// NewDeleteQueueHandler returns a handler for /delete_queue.
func NewDeleteQueueHandler(deps HandlerDeps) bot.HandlerFunc {
	return deleteQueueHandler{deps}.Handle
}

type deleteQueueHandler struct {
	deps HandlerDeps
}

func (h deleteQueueHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "delete_queue")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Delete handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	qa := actionFromMessage(update.Message)
	out := h.deps.Service.DeleteQueue(ctx, qa)
	reportIncident(ctx, b, h.deps, qa, out)

	msgs, silent := h.deps.chatView(ctx, qa.ChatID)
	if !out.OK() {
		sendText(ctx, b, log, qa.ChatID, update.Message.ID, rejectionText(msgs, out))
		return
	}

	if h.deps.Messages != nil && out.Snapshot != nil && out.Snapshot.Queue.MessageID.Valid {
		h.deps.Messages.DeleteQueueMessage(ctx, qa.ChatID, out.Snapshot.Queue.MessageID.Int64)
	}
	if !silent {
		sendText(ctx, b, log, qa.ChatID, update.Message.ID, fmt.Sprintf(msgs.QueueDeletedFmt, out.Queue))
	}
}

// NewShowQueuesHandler returns a handler for /show_queues.
func NewShowQueuesHandler(deps HandlerDeps) bot.HandlerFunc {
	return showQueuesHandler{deps}.Handle
}

type showQueuesHandler struct {
	deps HandlerDeps
}

func (h showQueuesHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "show_queues")

	if update.Message == nil {
		log.WarnContext(ctx, "Show queues handler received update with nil message", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	out := h.deps.Service.ListQueues(ctx, chatID)
	msgs, _ := h.deps.chatView(ctx, chatID)
	sendText(ctx, b, log, chatID, update.Message.ID, queuesText(msgs, out))
}

func queuesText(msgs config.Messages, out queue.Outcome) string {
	if !out.OK() {
		return rejectionText(msgs, out)
	}
	if len(out.Queues) == 0 {
		return msgs.NoQueuesMsg
	}
	return strings.Join([]string{msgs.QueuesHeader, queueList(out.Queues)}, "\n")
}
