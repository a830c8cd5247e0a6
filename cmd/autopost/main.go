package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"autopost/internal/app"
	"autopost/internal/config"
	"autopost/internal/logging"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "run the cycle without publishing")
	single := flag.Bool("single", false, "run exactly one cycle and exit")
	test := flag.Bool("test", false, "construct all components and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	if issues := cfg.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			logger.Error("configuration issue", "issue", issue)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Run(ctx, app.RunOptions{DryRun: *dryRun, Single: *single, Test: *test}); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
