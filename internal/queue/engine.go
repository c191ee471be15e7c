// Package queue implements per-chat waitlists: the turn-ordering engine that
// keeps each queue's member orders gapless, the resolver that decides which
// queue an action targets, and the service that exposes both as user actions.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/edgard/queuebot/internal/database"
	"github.com/edgard/queuebot/internal/resilience"
)

// User is the acting Telegram user.
type User struct {
	ID          int64
	DisplayName string
}

// Change is the committed result of an engine operation.
type Change struct {
	Snapshot Snapshot
	// Called is the member whose turn began, set by Advance.
	Called *database.Member
	// Exhausted is set by Advance when the pointer moved past the last member.
	Exhausted bool

	mutated bool
}

// locateFunc finds the target queue inside the operation's transaction.
type locateFunc func(ctx context.Context, tx database.Tx) (*database.Queue, error)

// opFunc mutates a located queue. members is ordered and verified contiguous.
type opFunc func(ctx context.Context, tx database.Tx, q *database.Queue, members []database.Member) (Change, error)

// Engine runs order-preserving operations on queues, one transaction each.
type Engine struct {
	store   database.Store
	retry   resilience.RetryConfig
	trigger RenderTrigger
	logger  *slog.Logger
}

// NewEngine creates an Engine. A nil trigger disables rendering.
func NewEngine(store database.Store, trigger RenderTrigger, retry resilience.RetryConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if trigger == nil {
		trigger = RenderTriggerFunc(func(context.Context, RenderRequest) {})
	}
	retry.Retryable = func(err error) bool { return errors.Is(err, database.ErrConflict) }
	return &Engine{
		store:   store,
		retry:   retry,
		trigger: trigger,
		logger:  logger.With("component", "queue_engine"),
	}
}

// Join appends the user at the end of the queue.
func (e *Engine) Join(ctx context.Context, queueID int64, user User) (Change, error) {
	return e.apply(ctx, byID(queueID), joinOp(user))
}

// Leave removes the user and closes the gap behind them.
func (e *Engine) Leave(ctx context.Context, queueID int64, userID int64) (Change, error) {
	return e.apply(ctx, byID(queueID), leaveOp(userID))
}

// Skip swaps the user with the member right behind them.
func (e *Engine) Skip(ctx context.Context, queueID int64, userID int64) (Change, error) {
	return e.apply(ctx, byID(queueID), skipOp(userID))
}

// MoveToEnd moves the user behind every other member.
func (e *Engine) MoveToEnd(ctx context.Context, queueID int64, userID int64) (Change, error) {
	return e.apply(ctx, byID(queueID), moveToEndOp(userID))
}

// Advance moves the pointer to the next order and reports who was called.
func (e *Engine) Advance(ctx context.Context, queueID int64) (Change, error) {
	return e.apply(ctx, byID(queueID), advanceOp)
}

// ShowMembers returns the current snapshot without changing anything.
func (e *Engine) ShowMembers(ctx context.Context, queueID int64) (Snapshot, error) {
	change, err := e.apply(ctx, byID(queueID), showOp)
	return change.Snapshot, err
}

func byID(queueID int64) locateFunc {
	return func(ctx context.Context, tx database.Tx) (*database.Queue, error) {
		q, err := tx.GetQueue(ctx, queueID)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, &Error{Kind: KindQueueNotFound, Err: fmt.Errorf("queue %d: %w", queueID, database.ErrNotFound)}
		}
		return q, nil
	}
}

// inTx runs fn in a transaction, retrying lost lock races.
func (e *Engine) inTx(ctx context.Context, fn func(tx database.Tx) error) error {
	return resilience.WithRetry(ctx, func(ctx context.Context) error {
		return e.store.WithTx(ctx, fn)
	}, e.retry)
}

// apply locates a queue, checks its ordering, runs op and, when op changed
// something, bumps the revision and triggers a render after commit. The bump
// marks the queue pending in the same transaction, so a render lost after
// commit is picked up by Service.Rerender.
func (e *Engine) apply(ctx context.Context, locate locateFunc, op opFunc) (Change, error) {
	var change Change
	err := e.inTx(ctx, func(tx database.Tx) error {
		q, err := locate(ctx, tx)
		if err != nil {
			return err
		}
		if q == nil {
			return newError(KindNeedsQueueName, "")
		}

		members, err := tx.ListMembers(ctx, q.QueueID)
		if err != nil {
			return err
		}
		if err := checkContiguous(members); err != nil {
			e.logger.ErrorContext(ctx, "Refusing to mutate corrupted queue",
				"queue_id", q.QueueID, "chat_id", q.ChatID, "error", err)
			return err
		}

		change, err = op(ctx, tx, q, members)
		if err != nil {
			return err
		}
		if !change.mutated {
			change.Snapshot = Snapshot{Queue: *q, Members: members}
			return nil
		}

		if _, err := tx.BumpRevision(ctx, q.QueueID); err != nil {
			return err
		}
		snapshot, err := loadSnapshot(ctx, tx, q.QueueID)
		if err != nil {
			return err
		}
		change.Snapshot = snapshot
		return nil
	})
	if err != nil {
		return Change{}, err
	}

	if change.mutated {
		e.trigger.Render(ctx, change.Snapshot.RenderRequest())
	}
	return change, nil
}

// Snapshot reads a queue and its members in one transaction.
func (e *Engine) Snapshot(ctx context.Context, queueID int64) (Snapshot, error) {
	var snapshot Snapshot
	err := e.inTx(ctx, func(tx database.Tx) error {
		var err error
		snapshot, err = loadSnapshot(ctx, tx, queueID)
		return err
	})
	return snapshot, err
}

func loadSnapshot(ctx context.Context, tx database.Tx, queueID int64) (Snapshot, error) {
	q, err := tx.GetQueue(ctx, queueID)
	if err != nil {
		return Snapshot{}, err
	}
	if q == nil {
		return Snapshot{}, fmt.Errorf("queue %d: %w", queueID, database.ErrNotFound)
	}
	members, err := tx.ListMembers(ctx, queueID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Queue: *q, Members: members}, nil
}

// checkContiguous verifies that the ordered members carry orders 1..N.
func checkContiguous(members []database.Member) error {
	for i, m := range members {
		if m.UserOrder != i+1 {
			return fmt.Errorf("%w: position %d has order %d", errInvariant, i+1, m.UserOrder)
		}
	}
	return nil
}

func indexOf(members []database.Member, userID int64) int {
	for i, m := range members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

func joinOp(user User) opFunc {
	return func(ctx context.Context, tx database.Tx, q *database.Queue, members []database.Member) (Change, error) {
		if indexOf(members, user.ID) >= 0 {
			return Change{}, newError(KindAlreadyMember, q.Name)
		}
		err := tx.InsertMember(ctx, &database.Member{
			QueueID:     q.QueueID,
			UserID:      user.ID,
			UserOrder:   len(members) + 1,
			DisplayName: user.DisplayName,
		})
		if errors.Is(err, database.ErrDuplicate) {
			return Change{}, newError(KindAlreadyMember, q.Name)
		}
		if err != nil {
			return Change{}, err
		}
		return Change{mutated: true}, nil
	}
}

func leaveOp(userID int64) opFunc {
	return func(ctx context.Context, tx database.Tx, q *database.Queue, members []database.Member) (Change, error) {
		i := indexOf(members, userID)
		if i < 0 {
			return Change{}, newError(KindNotAMember, q.Name)
		}
		order := members[i].UserOrder

		// Members up to the pointer have already been called. Stepping back for
		// any of them, not only the current one, keeps current_order on an
		// already-called member once the orders behind the leaver shift.
		if order <= q.CurrentOrder {
			if err := tx.SetCurrentOrder(ctx, q.QueueID, q.CurrentOrder-1); err != nil {
				return Change{}, err
			}
		}
		if err := tx.DeleteMember(ctx, q.QueueID, userID); err != nil {
			return Change{}, err
		}
		if err := tx.ShiftMemberOrders(ctx, q.QueueID, order, -1); err != nil {
			return Change{}, err
		}
		return Change{mutated: true}, nil
	}
}

func skipOp(userID int64) opFunc {
	return func(ctx context.Context, tx database.Tx, q *database.Queue, members []database.Member) (Change, error) {
		i := indexOf(members, userID)
		if i < 0 {
			return Change{}, newError(KindNotAMember, q.Name)
		}
		if i == len(members)-1 {
			return Change{}, newError(KindCannotSkip, q.Name)
		}

		me, next := members[i], members[i+1]
		if err := tx.SetMemberOrder(ctx, q.QueueID, me.UserID, next.UserOrder); err != nil {
			return Change{}, err
		}
		if err := tx.SetMemberOrder(ctx, q.QueueID, next.UserID, me.UserOrder); err != nil {
			return Change{}, err
		}
		return Change{mutated: true}, nil
	}
}

func moveToEndOp(userID int64) opFunc {
	return func(ctx context.Context, tx database.Tx, q *database.Queue, members []database.Member) (Change, error) {
		i := indexOf(members, userID)
		if i < 0 {
			return Change{}, newError(KindNotAMember, q.Name)
		}
		if i == len(members)-1 {
			return Change{}, newError(KindCannotSkip, q.Name)
		}

		order := members[i].UserOrder
		if err := tx.ShiftMemberOrders(ctx, q.QueueID, order, -1); err != nil {
			return Change{}, err
		}
		if err := tx.SetMemberOrder(ctx, q.QueueID, userID, len(members)); err != nil {
			return Change{}, err
		}
		return Change{mutated: true}, nil
	}
}

// advanceOp always moves the pointer, even past the end of the queue.
func advanceOp(ctx context.Context, tx database.Tx, q *database.Queue, members []database.Member) (Change, error) {
	next := q.CurrentOrder + 1
	if err := tx.SetCurrentOrder(ctx, q.QueueID, next); err != nil {
		return Change{}, err
	}

	change := Change{mutated: true}
	if next <= len(members) {
		called := members[next-1]
		change.Called = &called
	} else {
		change.Exhausted = true
	}
	return change, nil
}

func showOp(context.Context, database.Tx, *database.Queue, []database.Member) (Change, error) {
	return Change{}, nil
}
