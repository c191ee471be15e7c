package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultLanguage is the language of the built-in messages.
const DefaultLanguage = "en"

var defaults = map[string]any{
	"logger.level": "info",
	"logger.json":  false,

	"database.path":           "queuebot.db",
	"database.max_open_conns": 1,
	"database.busy_timeout":   5 * time.Second,

	"telegram.token":         "",
	"telegram.admin_user_id": 0,

	"engine.conflict_retries": 5,
	"engine.retry_interval":   25 * time.Millisecond,

	"render.queue_size":             256,
	"render.timeout":                15 * time.Second,
	"render.breaker_max_failures":   5,
	"render.breaker_reset_interval": time.Minute,

	"scheduler.tasks": map[string]any{
		"sql_maintenance": map[string]any{"enabled": true, "schedule": "0 0 4 * * *"},
		"render_retry":    map[string]any{"enabled": true, "schedule": "*/30 * * * * *"},
	},

	"messages.welcome": "👋 Hi! I keep turn-ordered queues for this group. Add me to a group and send /help to see what I can do.",
	"messages.help": "Queue commands:\n" +
		"/create_queue <name> - create a queue\n" +
		"/delete_queue <name> - delete a queue\n" +
		"/show_queues - list queues of this chat\n" +
		"/show_members <name> - show a queue\n" +
		"/add_me <name> - join a queue\n" +
		"/remove_me <name> - leave a queue\n" +
		"/skip_me <name> - let the next person go first\n" +
		"/move_me_to_end <name> - move to the end of a queue\n" +
		"/next <name> - call the next person\n" +
		"/notify_all - toggle pinning of new queues\n" +
		"/silent - toggle confirmation replies\n" +
		"/language <tag> - change the bot language\n\n" +
		"Instead of a name you can reply to the queue message.",
	"messages.group_only_msg": "Queues live in groups. Add me to a group chat to use this command.",

	"messages.queue_created_fmt":   "Queue %s created.",
	"messages.queue_deleted_fmt":   "Queue %s deleted.",
	"messages.queues_header":       "Queues in this chat:",
	"messages.no_queues_msg":       "There are no queues in this chat yet. Create one with /create_queue <name>.",
	"messages.choose_queue_msg":    "Which queue? Send the command with a queue name or reply to a queue message.",
	"messages.joined_fmt":          "%s joined %s.",
	"messages.left_fmt":            "%s left %s.",
	"messages.skipped_fmt":         "%s let the next person in %s go first.",
	"messages.moved_to_end_fmt":    "%s moved to the end of %s.",
	"messages.called_fmt":          "%s, it's your turn in %s!",
	"messages.queue_exhausted_fmt": "Everyone in %s has been called.",

	"messages.already_member_fmt":   "You are already in %s.",
	"messages.not_a_member_fmt":     "You are not in %s.",
	"messages.cannot_skip_fmt":      "You are the last one in %s.",
	"messages.queue_not_found_fmt":  "There is no queue named %s.",
	"messages.name_conflict_fmt":    "A queue named %s already exists.",
	"messages.wrong_reference_msg":  "The message you replied to is not a queue.",
	"messages.no_queue_name_msg":    "Please give a queue name or reply to a queue message.",
	"messages.storage_conflict_msg": "The queue is busy right now. Please try again.",
	"messages.error_internal_fmt":   "Something went wrong. Incident: %s",
	"messages.incident_report_fmt":  "Incident %s in chat %d (user %d): %s\nInput: %s",

	"messages.notify_on_msg":      "New queues will be pinned.",
	"messages.notify_off_msg":     "New queues will not be pinned.",
	"messages.silent_on_msg":      "Silent mode on: I will only post queue updates.",
	"messages.silent_off_msg":     "Silent mode off.",
	"messages.language_set_fmt":   "Language set to %s.",
	"messages.language_usage_fmt": "Usage: /language <tag>. Available: %s",

	"messages.empty_queue_msg": "Nobody is here yet.",
	"messages.button_join":     "Add me",
	"messages.button_leave":    "Remove me",
	"messages.button_skip":     "Skip me",
	"messages.button_end":      "Move me to the end",
	"messages.button_next":     "Next",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
