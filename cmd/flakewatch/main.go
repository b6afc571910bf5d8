package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flakewatch/flakewatch/internal/cli"
	"github.com/flakewatch/flakewatch/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		logger.WithError(err).Error("run failed")
		stop()
		os.Exit(1)
	}
}
