// Package bot wires QueueBot's long-running components together and manages
// their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Poller receives Telegram updates until ctx is done. *tgbot.Bot implements it.
type Poller interface {
	Start(ctx context.Context)
}

// Renderer delivers queue renders until ctx is done.
type Renderer interface {
	Run(ctx context.Context) error
}

// Bot runs the update poller, the render dispatcher and the scheduler.
type Bot struct {
	logger    *slog.Logger
	poller    Poller
	renderer  Renderer
	scheduler *Scheduler
}

// NewBot creates a Bot from its components.
func NewBot(logger *slog.Logger, poller Poller, renderer Renderer, scheduler *Scheduler) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		poller:    poller,
		renderer:  renderer,
		scheduler: scheduler,
	}
}

// Run starts all components and blocks until ctx is cancelled or one of them
// fails. Cancellation is a clean shutdown and returns nil.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting render dispatcher...")
		err := b.renderer.Run(gCtx)
		b.logger.Info("Render dispatcher stopped.")
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("render dispatcher failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")
		b.poller.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(gCtx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
