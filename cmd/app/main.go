// Command app serves the smart notes HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanqian/smart-notes/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New()
	app, err := initializeApp()
	if err != nil {
		log.Error("failed to wire smart notes server", "error", err)
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		log.Error("smart notes server stopped", "error", err)
		os.Exit(1)
	}
}
