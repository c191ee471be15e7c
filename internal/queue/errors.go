package queue

import (
	"errors"
	"fmt"
)

// Kind classifies the result of a queue action.
type Kind int

const (
	KindOK Kind = iota
	KindAlreadyMember
	KindNotAMember
	// KindCannotSkip is returned when the member is already last in line.
	KindCannotSkip
	// KindQueueExhausted is returned when advancing moved the pointer past the last member.
	KindQueueExhausted
	KindQueueNotFound
	KindNameConflict
	// KindWrongReference is returned when the replied-to message is not a queue message.
	KindWrongReference
	KindNoQueueSpecified
	// KindNeedsQueueName is the pass-through result of a read without a queue name.
	KindNeedsQueueName
	KindStorageConflict
	KindInternal
)

var kindNames = map[Kind]string{
	KindOK:               "ok",
	KindAlreadyMember:    "already_member",
	KindNotAMember:       "not_a_member",
	KindCannotSkip:       "cannot_skip",
	KindQueueExhausted:   "queue_exhausted",
	KindQueueNotFound:    "queue_not_found",
	KindNameConflict:     "name_conflict",
	KindWrongReference:   "wrong_reference",
	KindNoQueueSpecified: "no_queue_specified",
	KindNeedsQueueName:   "needs_queue_name",
	KindStorageConflict:  "storage_conflict",
	KindInternal:         "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified queue failure. Name carries the queue name when it is
// known, Err the underlying cause if any.
type Error struct {
	Kind Kind
	Name string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Name != "" {
		msg = fmt.Sprintf("%s: queue %q", msg, e.Name)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, name string) *Error {
	return &Error{Kind: kind, Name: name}
}

// errInvariant reports a corrupted member ordering found before a mutation.
var errInvariant = errors.New("queue order invariant violated")

// KindOf extracts the Kind from err. Errors that are not queue errors are
// reported as KindInternal and nil as KindOK.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var qErr *Error
	if errors.As(err, &qErr) {
		return qErr.Kind
	}
	return KindInternal
}
