// Package tasks implements the scheduled maintenance jobs of QueueBot.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/queuebot/internal/database"
)

// Rerenderer re-renders queues whose last render failed.
type Rerenderer interface {
	Rerender(ctx context.Context) (int, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Renders Rerenderer
}
