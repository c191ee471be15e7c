// Package main is the entrypoint of QueueBot, a Telegram bot that keeps
// turn-ordered queues in group chats.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "queuebot",
		Short: "Telegram bot for turn-ordered queues in group chats",
		Long: `QueueBot keeps named waitlists in Telegram groups. Members join, leave,
skip or move to the end, and anyone can call the next person. Each queue is
shown as a single message that the bot keeps up to date.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.PersistentFlags().StringP("config", "c", "./config.yaml", "path to the configuration file")
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func configPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		slog.Warn("Could not read config flag, using default", "error", err)
		return "./config.yaml"
	}
	return path
}
