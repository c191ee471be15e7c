package queue

import (
	"context"

	"github.com/edgard/queuebot/internal/database"
)

// RenderRequest is the post-commit state of a queue handed to the presentation
// layer. MessageID is zero when the queue has no rendered message yet.
type RenderRequest struct {
	QueueID      int64
	ChatID       int64
	QueueName    string
	MessageID    int64
	Members      []string
	CurrentOrder int
	// ActiveIndex is the position in Members of the member whose turn it is, or -1.
	ActiveIndex int
	Revision    int64
	Notify      bool
	// Repost asks for a fresh message below the conversation instead of an edit.
	Repost bool
}

// RenderTrigger redisplays a queue after a committed change. Implementations
// must not block the caller on delivery and own retrying failed deliveries.
type RenderTrigger interface {
	Render(ctx context.Context, req RenderRequest)
}

// RenderTriggerFunc adapts a function to RenderTrigger.
type RenderTriggerFunc func(ctx context.Context, req RenderRequest)

func (f RenderTriggerFunc) Render(ctx context.Context, req RenderRequest) { f(ctx, req) }

// Snapshot is a consistent view of a queue and its ordered members.
type Snapshot struct {
	Queue   database.Queue
	Members []database.Member
}

// ActiveIndex returns the index of the member whose order equals the queue's
// current order, or -1 when no one is active.
func (s Snapshot) ActiveIndex() int {
	if s.Queue.CurrentOrder <= 0 {
		return -1
	}
	for i, m := range s.Members {
		if m.UserOrder == s.Queue.CurrentOrder {
			return i
		}
	}
	return -1
}

// Active returns the member whose turn it is, if any.
func (s Snapshot) Active() *database.Member {
	if i := s.ActiveIndex(); i >= 0 {
		m := s.Members[i]
		return &m
	}
	return nil
}

// RenderRequest builds the request that displays this snapshot.
func (s Snapshot) RenderRequest() RenderRequest {
	names := make([]string, len(s.Members))
	for i, m := range s.Members {
		names[i] = m.DisplayName
	}
	var messageID int64
	if s.Queue.MessageID.Valid {
		messageID = s.Queue.MessageID.Int64
	}
	return RenderRequest{
		QueueID:      s.Queue.QueueID,
		ChatID:       s.Queue.ChatID,
		QueueName:    s.Queue.Name,
		MessageID:    messageID,
		Members:      names,
		CurrentOrder: s.Queue.CurrentOrder,
		ActiveIndex:  s.ActiveIndex(),
		Revision:     s.Queue.Revision,
		Notify:       s.Queue.Notify,
	}
}
