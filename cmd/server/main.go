package main

import (
	"log/slog"
	"os"

	_ "time/tzdata"

	slogmulti "github.com/samber/slog-multi"
)

// logLevel drives the stdout handler; raised to debug for local and development
var logLevel = new(slog.LevelVar)

func main() {
	// Text logs go to stdout, errors are duplicated as JSON on stderr
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	jsonHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})
	slog.SetDefault(slog.New(slogmulti.Fanout(textHandler, jsonHandler)))

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
