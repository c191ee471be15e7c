package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/config"
	"github.com/edgard/queuebot/internal/database"
	"github.com/edgard/queuebot/internal/queue"
	"github.com/edgard/queuebot/internal/text"
)

// Names longer than this are cut.
const (
	maxQueueNameRunes   = 64
	maxDisplayNameRunes = 64
)

// parseCommand splits "/cmd@bot some args" into "cmd" and "some args".
func parseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(strings.TrimPrefix(head, "/"), "@")
	return cmd, strings.TrimSpace(rest)
}

// displayName is how a user appears in queues.
func displayName(u *models.User) string {
	if u == nil {
		return ""
	}
	name := text.Name(u.FirstName+" "+u.LastName, maxDisplayNameRunes)
	switch {
	case name != "":
		return name
	case u.Username != "":
		return "@" + u.Username
	default:
		return fmt.Sprintf("user %d", u.ID)
	}
}

// chatTitle returns a human-readable chat name for storage.
func chatTitle(chat models.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	return chat.Username
}

// rejectionText returns the message for an unsuccessful outcome.
func rejectionText(msgs config.Messages, out queue.Outcome) string {
	switch out.Kind {
	case queue.KindAlreadyMember:
		return fmt.Sprintf(msgs.AlreadyMemberFmt, out.Queue)
	case queue.KindNotAMember:
		return fmt.Sprintf(msgs.NotAMemberFmt, out.Queue)
	case queue.KindCannotSkip:
		return fmt.Sprintf(msgs.CannotSkipFmt, out.Queue)
	case queue.KindQueueExhausted:
		return fmt.Sprintf(msgs.QueueExhaustedFmt, out.Queue)
	case queue.KindQueueNotFound:
		return fmt.Sprintf(msgs.QueueNotFoundFmt, out.Queue)
	case queue.KindNameConflict:
		return fmt.Sprintf(msgs.NameConflictFmt, out.Queue)
	case queue.KindWrongReference:
		return msgs.WrongReferenceMsg
	case queue.KindNoQueueSpecified:
		return msgs.NoQueueNameMsg
	case queue.KindNeedsQueueName:
		if len(out.Queues) == 0 {
			return msgs.NoQueuesMsg
		}
		return msgs.ChooseQueueMsg + "\n" + queueList(out.Queues)
	case queue.KindStorageConflict:
		return msgs.StorageConflictMsg
	default:
		return fmt.Sprintf(msgs.ErrorInternalFmt, out.IncidentID)
	}
}

func queueList(queues []database.Queue) string {
	var sb strings.Builder
	for _, q := range queues {
		sb.WriteString("• ")
		sb.WriteString(q.Name)
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// mention links a user by ID in MarkdownV2.
func mention(userID int64, name string) string {
	return fmt.Sprintf("[%s](tg://user?id=%d)", tgbot.EscapeMarkdown(name), userID)
}

// markdownf formats a MarkdownV2 message from a plain format string and
// already escaped arguments.
func markdownf(format string, args ...any) string {
	return fmt.Sprintf(tgbot.EscapeMarkdown(format), args...)
}

func sendText(ctx context.Context, b *tgbot.Bot, log *slog.Logger, chatID int64, replyTo int, text string) {
	params := &tgbot.SendMessageParams{ChatID: chatID, Text: text}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

func sendMarkdown(ctx context.Context, b *tgbot.Bot, log *slog.Logger, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text, ParseMode: models.ParseModeMarkdown})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

func answerCallback(ctx context.Context, b *tgbot.Bot, log *slog.Logger, callbackID, text string) {
	_, err := b.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		log.WarnContext(ctx, "Failed to answer callback query", "error", err, "callback_query_id", callbackID)
	}
}

// reportIncident tells the configured admin about an internal failure.
func reportIncident(ctx context.Context, b *tgbot.Bot, deps HandlerDeps, a queue.Action, out queue.Outcome) {
	adminID := deps.Config.Telegram.AdminUserID
	if out.Kind != queue.KindInternal || adminID == 0 {
		return
	}
	cause := "unknown"
	if out.Err != nil {
		cause = out.Err.Error()
	}
	text := fmt.Sprintf(deps.Config.Messages.IncidentReportFmt, out.IncidentID, a.ChatID, a.User.ID, cause, a.Raw)
	sendText(ctx, b, deps.Logger, adminID, 0, text)
}
