package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/di"
	refreshService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/refresh/service"
	httpServer "github.com/reshetovitsme/tracker-bundle-bot/internal/transport/http"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the refresh scheduler and the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	injector, cfg, err := setup()
	if err != nil {
		return err
	}
	defer shutdown(injector)

	if _, err := do.Invoke[*di.StorageLock](injector); err != nil {
		return err
	}

	b, err := do.Invoke[*bot.Bot](injector)
	if err != nil {
		return err
	}
	handler := do.MustInvoke[*telegram.Handler](injector)
	scheduler := do.MustInvoke[*refreshService.Scheduler](injector)
	server := do.MustInvoke[*httpServer.Server](injector)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	handler.RegisterCommands(ctx, b)

	if err := scheduler.Start(); err != nil {
		return err
	}

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("HTTP server stopped", "error", err)
			cancel()
		}
	}()

	go b.Start(ctx)

	slog.Info("Application started",
		"port", cfg.HTTPPort,
		"repository", cfg.GitHubOwner+"/"+cfg.GitHubRepo,
		"storage_driver", cfg.StorageDriver,
		"tick", cfg.Tick(),
	)

	<-ctx.Done()
	slog.Info("Shutting down...")
	return nil
}
