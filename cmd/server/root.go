package main

import (
	"log/slog"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/di"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/config"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tracker-bundle-bot",
	Short: "Keep live tracker issue bundles in Telegram channels",
	Long: `tracker-bundle-bot maintains one self-updating message per Telegram channel
listing tracker issues grouped by label filters.

Without a subcommand it runs the bot (same as "serve").`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// setup builds the container and applies the configured log level
func setup() (do.Injector, *config.Config, error) {
	injector, err := di.Setup()
	if err != nil {
		return nil, nil, oops.With("context", "failed to setup dependency injection").Wrap(err)
	}
	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return nil, nil, err
	}
	if cfg.IsDebug() {
		logLevel.Set(slog.LevelDebug)
	}
	return injector, cfg, nil
}

func shutdown(injector do.Injector) {
	if err := di.Shutdown(injector); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
