// Package render delivers queue redisplays outside of the action's
// transaction, in order, dropping superseded revisions.
package render

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgard/queuebot/internal/queue"
)

// Presenter shows a queue in its chat.
type Presenter interface {
	Present(ctx context.Context, req queue.RenderRequest) error
}

// PendingMarker records whether a queue still needs to be rendered. Committed
// mutations already mark their queue pending; the dispatcher re-marks failures
// and clears the flag for the revision it delivered.
type PendingMarker interface {
	SetRenderPending(ctx context.Context, queueID int64, pending bool) error
	ClearRenderPending(ctx context.Context, queueID, revision int64) error
}

// Options tunes the dispatcher.
type Options struct {
	QueueSize int
	// Timeout bounds a single delivery.
	Timeout time.Duration
}

// Dispatcher implements queue.RenderTrigger with a buffered channel drained by
// a single worker. Failed or dropped deliveries stay pending in the store so a
// scheduled retry can pick them up.
type Dispatcher struct {
	presenter Presenter
	marker    PendingMarker
	requests  chan queue.RenderRequest
	timeout   time.Duration
	logger    *slog.Logger
	stopped   atomic.Bool

	mu        sync.Mutex
	delivered map[int64]int64 // queue ID -> last delivered revision
}

var _ queue.RenderTrigger = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher. Run must be started for requests to be delivered.
func NewDispatcher(presenter Presenter, marker PendingMarker, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		presenter: presenter,
		marker:    marker,
		requests:  make(chan queue.RenderRequest, opts.QueueSize),
		timeout:   opts.Timeout,
		logger:    logger.With("component", "render_dispatcher"),
		delivered: make(map[int64]int64),
	}
}

// Render enqueues req without blocking. A full buffer or a stopped worker
// marks the queue pending.
func (d *Dispatcher) Render(ctx context.Context, req queue.RenderRequest) {
	if d.stopped.Load() {
		d.markPending(context.WithoutCancel(ctx), req.QueueID)
		return
	}
	select {
	case d.requests <- req:
	default:
		d.logger.WarnContext(ctx, "Render buffer full, deferring render", "queue_id", req.QueueID, "revision", req.Revision)
		d.markPending(context.WithoutCancel(ctx), req.QueueID)
	}
}

// Run delivers requests until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Render dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.stopped.Store(true)
			d.drain()
			d.logger.Info("Render dispatcher stopped")
			return nil
		case req := <-d.requests:
			d.deliver(ctx, req)
		}
	}
}

// drain marks every undelivered request pending so it survives a restart.
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case req := <-d.requests:
			d.markPending(ctx, req.QueueID)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req queue.RenderRequest) {
	if d.stale(req) {
		d.logger.DebugContext(ctx, "Dropping stale render", "queue_id", req.QueueID, "revision", req.Revision)
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.presenter.Present(deliverCtx, req); err != nil {
		d.logger.WarnContext(ctx, "Failed to render queue",
			"queue_id", req.QueueID, "chat_id", req.ChatID, "revision", req.Revision, "error", err)
		d.markPending(context.WithoutCancel(ctx), req.QueueID)
		return
	}

	d.mu.Lock()
	if req.Revision > d.delivered[req.QueueID] {
		d.delivered[req.QueueID] = req.Revision
	}
	d.mu.Unlock()

	d.clearPending(context.WithoutCancel(ctx), req)
}

// stale reports whether a newer revision of the queue was already delivered.
func (d *Dispatcher) stale(req queue.RenderRequest) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return req.Revision < d.delivered[req.QueueID]
}

func (d *Dispatcher) markPending(ctx context.Context, queueID int64) {
	if d.marker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.marker.SetRenderPending(ctx, queueID, true); err != nil {
		d.logger.WarnContext(ctx, "Failed to mark queue render pending", "queue_id", queueID, "error", err)
	}
}

// clearPending leaves the flag set when a newer revision is still on its way.
func (d *Dispatcher) clearPending(ctx context.Context, req queue.RenderRequest) {
	if d.marker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.marker.ClearRenderPending(ctx, req.QueueID, req.Revision); err != nil {
		d.logger.WarnContext(ctx, "Failed to clear render pending flag", "queue_id", req.QueueID, "revision", req.Revision, "error", err)
	}
}
