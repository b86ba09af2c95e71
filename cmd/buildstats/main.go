// v0
// cmd/buildstats/main.go
package main

import (
	"log/slog"
	"os"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("buildstats_failed", slog.Any("err", err))
		os.Exit(1)
	}
}
