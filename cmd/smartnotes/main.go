package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanqian/smart-notes/internal/cli"
	"github.com/yanqian/smart-notes/internal/domain/packaging"
	"github.com/yanqian/smart-notes/internal/infra/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using defaults\n", err)
		cfg = config.Default()
	}

	root := cli.NewRootCommand(cfg, cli.Deps{})
	if err := root.ExecuteContext(ctx); err != nil {
		if !packaging.ToolReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
