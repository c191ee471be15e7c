package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/config"
	"github.com/edgard/queuebot/internal/queue"
	"github.com/edgard/queuebot/internal/text"
)

// Action is a queue operation a member can trigger by command or button.
type Action int

const (
	ActionJoin Action = iota
	ActionLeave
	ActionSkip
	ActionMoveToEnd
	ActionNext
	ActionShow
)

func (a Action) String() string {
	switch a {
	case ActionJoin:
		return "join"
	case ActionLeave:
		return "leave"
	case ActionSkip:
		return "skip"
	case ActionMoveToEnd:
		return "move_to_end"
	case ActionNext:
		return "next"
	case ActionShow:
		return "show"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

func (a Action) run(ctx context.Context, svc *queue.Service, qa queue.Action) queue.Outcome {
	switch a {
	case ActionJoin:
		return svc.Join(ctx, qa)
	case ActionLeave:
		return svc.Leave(ctx, qa)
	case ActionSkip:
		return svc.Skip(ctx, qa)
	case ActionMoveToEnd:
		return svc.MoveToEnd(ctx, qa)
	case ActionNext:
		return svc.Advance(ctx, qa)
	default:
		return svc.Show(ctx, qa)
	}
}

// reply is the chat response to an outcome. Essential replies are sent even
// in silent chats.
type reply struct {
	text      string
	markdown  bool
	essential bool
}

// replyFor builds the response to an action outcome. An empty text means the
// rendered queue message is the whole response.
func replyFor(msgs config.Messages, action Action, qa queue.Action, out queue.Outcome) reply {
	if !out.OK() {
		return reply{text: rejectionText(msgs, out), essential: true}
	}

	switch action {
	case ActionJoin:
		return reply{text: fmt.Sprintf(msgs.JoinedFmt, qa.User.DisplayName, out.Queue)}
	case ActionLeave:
		return reply{text: fmt.Sprintf(msgs.LeftFmt, qa.User.DisplayName, out.Queue)}
	case ActionSkip:
		return reply{text: fmt.Sprintf(msgs.SkippedFmt, qa.User.DisplayName, out.Queue)}
	case ActionMoveToEnd:
		return reply{text: fmt.Sprintf(msgs.MovedToEndFmt, qa.User.DisplayName, out.Queue)}
	case ActionNext:
		if out.Called == nil {
			return reply{}
		}
		return reply{
			text:      markdownf(msgs.CalledFmt, mention(out.Called.UserID, out.Called.DisplayName), bot.EscapeMarkdown(out.Queue)),
			markdown:  true,
			essential: true,
		}
	default:
		return reply{}
	}
}

// actionFromMessage builds a queue action from a command message.
func actionFromMessage(msg *models.Message) queue.Action {
	_, args := parseCommand(msg.Text)
	qa := queue.Action{
		ChatID:   msg.Chat.ID,
		ChatName: chatTitle(msg.Chat),
		Name:     text.Name(args, maxQueueNameRunes),
		Raw:      msg.Text,
	}
	if msg.From != nil {
		qa.User = queue.User{ID: msg.From.ID, DisplayName: displayName(msg.From)}
	}
	// In forum chats every message replies to its topic's first message.
	if r := msg.ReplyToMessage; r != nil && r.ForumTopicCreated == nil {
		qa.ReplyTo = int64(r.ID)
	}
	return qa
}

// NewQueueActionHandler returns a handler for a queue action command.
func NewQueueActionHandler(deps HandlerDeps, action Action) bot.HandlerFunc {
	return queueActionHandler{deps: deps, action: action}.Handle
}

type queueActionHandler struct {
	deps   HandlerDeps
	action Action
}

func (h queueActionHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.action.String())

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Queue handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	msg := update.Message
	qa := actionFromMessage(msg)
	out := h.action.run(ctx, h.deps.Service, qa)
	reportIncident(ctx, b, h.deps, qa, out)

	msgs, silent := h.deps.chatView(ctx, qa.ChatID)
	r := replyFor(msgs, h.action, qa, out)
	if r.text == "" || (silent && !r.essential) {
		return
	}
	if r.markdown {
		sendMarkdown(ctx, b, log, qa.ChatID, r.text)
		return
	}
	sendText(ctx, b, log, qa.ChatID, msg.ID, r.text)
}
