package telegram

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/queuebot/internal/bot/handlers"
	"github.com/edgard/queuebot/internal/queue"
)

// Texts are the localized strings used when rendering a queue message.
type Texts struct {
	Empty       string
	ButtonJoin  string
	ButtonLeave string
	ButtonSkip  string
	ButtonEnd   string
	ButtonNext  string
}

// FormatQueue renders the queue as MarkdownV2: a bold title followed by the
// numbered members, the active one in bold with a marker.
func FormatQueue(req queue.RenderRequest, texts Texts) string {
	var sb strings.Builder
	sb.WriteString("*")
	sb.WriteString(bot.EscapeMarkdown(req.QueueName))
	sb.WriteString("*\n")

	if len(req.Members) == 0 {
		sb.WriteString("\n_")
		sb.WriteString(bot.EscapeMarkdown(texts.Empty))
		sb.WriteString("_")
		return sb.String()
	}

	for i, name := range req.Members {
		line := bot.EscapeMarkdown(fmt.Sprintf("%d. %s", i+1, name))
		if i == req.ActiveIndex {
			line = "▶ *" + line + "*"
		}
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}

// QueueKeyboard builds the inline buttons attached to a queue message.
func QueueKeyboard(texts Texts) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: texts.ButtonJoin, CallbackData: handlers.CallbackJoin},
				{Text: texts.ButtonLeave, CallbackData: handlers.CallbackLeave},
			},
			{
				{Text: texts.ButtonSkip, CallbackData: handlers.CallbackSkip},
				{Text: texts.ButtonEnd, CallbackData: handlers.CallbackMoveToEnd},
			},
			{
				{Text: texts.ButtonNext, CallbackData: handlers.CallbackNext},
			},
		},
	}
}
