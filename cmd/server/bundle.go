package main

import (
	"fmt"

	refreshService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/refresh/service"
	renderService "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/render/service"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(refreshCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render <channel-id>",
	Short: "Print the rendered bundle of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		injector, _, err := setup()
		if err != nil {
			return err
		}
		defer shutdown(injector)

		renderer, err := do.Invoke[*renderService.Renderer](injector)
		if err != nil {
			return err
		}
		text, err := renderer.RenderBundle(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <channel-id>",
	Short: "Refresh the bundle message of a channel once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		injector, _, err := setup()
		if err != nil {
			return err
		}
		defer shutdown(injector)

		scheduler, err := do.Invoke[*refreshService.Scheduler](injector)
		if err != nil {
			return err
		}
		if err := scheduler.RefreshNow(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bundle refreshed for %s\n", args[0])
		return nil
	},
}
