// Package handlers contains Telegram bot command and callback handlers,
// along with their registration logic and middleware.
package handlers

import (
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RegisteredHandler represents a handler with its match rules and middleware.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType

	// Match, when set, selects updates instead of HandlerType and Pattern.
	Match tgbot.MatchFunc
}

func command(pattern string, handler tgbot.HandlerFunc, mw ...tgbot.Middleware) RegisteredHandler {
	return RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     pattern,
		Handler:     handler,
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  mw,
	}
}

// RegisterAllCommands initializes and returns a map of all bot commands and
// the inline button handler. Queue commands only work in groups.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = command("start", NewStartHandler(deps))
	handlers["/help"] = command("help", NewHelpHandler(deps))

	groupOnly := GroupOnly(deps)

	handlers["/create_queue"] = command("create_queue", NewCreateQueueHandler(deps), groupOnly)
	handlers["/delete_queue"] = command("delete_queue", NewDeleteQueueHandler(deps), groupOnly)
	handlers["/show_queues"] = command("show_queues", NewShowQueuesHandler(deps), groupOnly)
	handlers["/show_members"] = command("show_members", NewQueueActionHandler(deps, ActionShow), groupOnly)
	handlers["/add_me"] = command("add_me", NewQueueActionHandler(deps, ActionJoin), groupOnly)
	handlers["/remove_me"] = command("remove_me", NewQueueActionHandler(deps, ActionLeave), groupOnly)
	handlers["/skip_me"] = command("skip_me", NewQueueActionHandler(deps, ActionSkip), groupOnly)
	handlers["/move_me_to_end"] = command("move_me_to_end", NewQueueActionHandler(deps, ActionMoveToEnd), groupOnly)
	handlers["/next"] = command("next", NewQueueActionHandler(deps, ActionNext), groupOnly)

	handlers["/notify_all"] = command("notify_all", NewNotifyHandler(deps), groupOnly)
	handlers["/silent"] = command("silent", NewSilentHandler(deps), groupOnly)
	handlers["/language"] = command("language", NewLanguageHandler(deps), groupOnly)

	handlers["callback:queue"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     CallbackPrefix,
		Handler:     NewCallbackHandler(deps),
		MatchType:   tgbot.MatchTypePrefix,
		Middleware:  []tgbot.Middleware{groupOnly},
	}

	handlers["chat_membership"] = RegisteredHandler{
		Handler: NewChatHandler(deps),
		Match:   func(update *models.Update) bool {
			return classifyChatEvent(update, deps.botID()) != chatEventNone
		},
	}

	return handlers
}
