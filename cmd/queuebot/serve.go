package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/edgard/queuebot/internal/bot"
	"github.com/edgard/queuebot/internal/bot/handlers"
	"github.com/edgard/queuebot/internal/bot/tasks"
	"github.com/edgard/queuebot/internal/config"
	"github.com/edgard/queuebot/internal/database"
	"github.com/edgard/queuebot/internal/logger"
	"github.com/edgard/queuebot/internal/queue"
	"github.com/edgard/queuebot/internal/render"
	"github.com/edgard/queuebot/internal/resilience"
	"github.com/edgard/queuebot/internal/telegram"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	path := configPath(cmd)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		slog.Error("Failed to load configuration", "path", path, "error", err)
		return err
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path, database.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return err
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.Middleware(log)))
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return err
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	// The presenter reports back through the service, which is built on top
	// of the dispatcher that drives the presenter.
	var service *queue.Service

	breaker := telegram.NewBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:   cfg.Render.BreakerMaxFailures,
		ResetInterval: cfg.Render.BreakerResetInterval,
		Timeout:       cfg.Render.Timeout,
		Logger:        log,
	})
	presenter := telegram.NewPresenter(
		tg,
		telegram.MessageRefUpdaterFunc(func(ctx context.Context, queueID, messageID int64) error {
			return service.UpdateMessageReference(ctx, queueID, messageID)
		}),
		func(ctx context.Context, chatID int64) telegram.Texts {
			return queueTexts(ctx, cfg, service, chatID)
		},
		breaker,
		log,
	)
	dispatcher := render.NewDispatcher(presenter, store, render.Options{
		QueueSize: cfg.Render.QueueSize,
		Timeout:   cfg.Render.Timeout,
	}, log)

	engine := queue.NewEngine(store, dispatcher, resilience.RetryConfig{
		MaxAttempts:     cfg.Engine.ConflictRetries,
		InitialInterval: cfg.Engine.RetryInterval,
		MaxInterval:     20 * cfg.Engine.RetryInterval,
		Multiplier:      2,
		RandomFactor:    0.5,
	}, log)
	service = queue.NewService(store, engine, log)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Service:  service,
		Messages: presenter,
	}
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return err
	}

	sched, err := bot.NewScheduler(log, cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Renders: service,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return err
	}

	// Catch up on renders that failed before the last shutdown.
	if n, err := service.Rerender(ctx); err != nil {
		log.Warn("Failed to queue pending renders", "error", err)
	} else if n > 0 {
		log.Info("Queued pending renders", "queues", n)
	}

	app := bot.NewBot(log, tg, dispatcher, sched)
	log.Info("Starting bot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return runErr
	}

	log.Info("Bot stopped gracefully.")
	return nil
}

// queueTexts returns the rendering texts in the chat's language.
func queueTexts(ctx context.Context, cfg *config.Config, service *queue.Service, chatID int64) telegram.Texts {
	msgs := cfg.Messages
	if chat, err := service.ChatSettings(ctx, chatID); err == nil {
		msgs = cfg.MessagesFor(chat.Language)
	}
	return telegram.Texts{
		Empty:       msgs.EmptyQueueMsg,
		ButtonJoin:  msgs.ButtonJoin,
		ButtonLeave: msgs.ButtonLeave,
		ButtonSkip:  msgs.ButtonSkip,
		ButtonEnd:   msgs.ButtonEnd,
		ButtonNext:  msgs.ButtonNext,
	}
}
