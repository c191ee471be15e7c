package tasks

import (
	"context"
	"fmt"
)

// newRenderRetryTask renders again every queue whose message could not be
// updated, so chats converge on the stored state after Telegram outages.
func newRenderRetryTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "render_retry")

	return func(ctx context.Context) error {
		n, err := deps.Renders.Rerender(ctx)
		if err != nil {
			return fmt.Errorf("render retry failed after %d queues: %w", n, err)
		}
		if n > 0 {
			log.InfoContext(ctx, "Retried pending renders", "queues", n)
		}
		return nil
	}
}
