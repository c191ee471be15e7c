package database

import (
	"database/sql"
	"time"
)

// Chat is a Telegram group the bot participates in. ChatID may change when
// Telegram migrates a group to a supergroup.
type Chat struct {
	ChatID   int64  `db:"chat_id"`
	Name     string `db:"name"`
	Notify   bool   `db:"notify"` // pin newly created queue messages
	Silent   bool   `db:"silent"` // suppress non-essential replies
	Language string `db:"language"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Queue is one named waitlist inside a chat.
type Queue struct {
	QueueID      int64  `db:"queue_id"`
	ChatID       int64  `db:"chat_id"`
	Name         string `db:"name"`
	CurrentOrder int    `db:"current_order"`

	// MessageID is the rendered message that displays the members. It may be
	// stale (deleted by someone) or absent.
	MessageID sql.NullInt64 `db:"message_id_to_edit"`

	Notify        bool  `db:"notify"`
	Revision      int64 `db:"revision"`
	RenderPending bool  `db:"render_pending"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Member is a user's slot in a queue.
type Member struct {
	QueueID     int64     `db:"queue_id"`
	UserID      int64     `db:"user_id"`
	UserOrder   int       `db:"user_order"`
	DisplayName string    `db:"display_name"`
	JoinedAt    time.Time `db:"joined_at"`
}
