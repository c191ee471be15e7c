package queue

import (
	"context"
	"strings"

	"github.com/edgard/queuebot/internal/database"
)

// LookupKind is the strategy chosen to find the target queue.
type LookupKind int

const (
	// LookupNone means no queue is targeted; only produced in pass-through mode.
	LookupNone LookupKind = iota
	LookupByReference
	LookupByName
)

// Lookup is a planned queue lookup.
type Lookup struct {
	Kind      LookupKind
	MessageID int64
	Name      string
}

// Input is what an action carries to identify its queue. ReplyTo is the ID of
// the message the action refers to (a reply or the message an inline button
// sits on), zero when absent.
type Input struct {
	ReplyTo int64
	Name    string
	// PassThrough lets an action without any target continue with no queue.
	PassThrough bool
}

// Plan decides how to find the queue. A reference always wins over a name and
// never falls back to it.
func Plan(replyTo int64, name string, passThrough bool) (Lookup, error) {
	name = strings.TrimSpace(name)
	switch {
	case replyTo != 0:
		return Lookup{Kind: LookupByReference, MessageID: replyTo}, nil
	case name != "":
		return Lookup{Kind: LookupByName, Name: name}, nil
	case passThrough:
		return Lookup{Kind: LookupNone}, nil
	default:
		return Lookup{}, newError(KindNoQueueSpecified, "")
	}
}

// Resolver locates queues within a chat.
type Resolver struct{}

// Resolve executes the planned lookup inside tx. In pass-through mode with no
// target it returns (nil, nil).
func (Resolver) Resolve(ctx context.Context, tx database.Tx, chatID int64, in Input) (*database.Queue, error) {
	lookup, err := Plan(in.ReplyTo, in.Name, in.PassThrough)
	if err != nil {
		return nil, err
	}

	switch lookup.Kind {
	case LookupByReference:
		q, err := tx.GetQueueByMessage(ctx, chatID, lookup.MessageID)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, newError(KindWrongReference, "")
		}
		return q, nil
	case LookupByName:
		q, err := tx.GetQueueByName(ctx, chatID, lookup.Name)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, newError(KindQueueNotFound, lookup.Name)
		}
		return q, nil
	default:
		return nil, nil
	}
}

func (r Resolver) locator(chatID int64, in Input) locateFunc {
	return func(ctx context.Context, tx database.Tx) (*database.Queue, error) {
		return r.Resolve(ctx, tx, chatID, in)
	}
}
