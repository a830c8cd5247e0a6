package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"autopost/internal/config"
	"autopost/internal/infrastructure/facebook"
	"autopost/internal/infrastructure/storage"
	"autopost/internal/logging"
)

// fbtoken is the operator CLI for the one-time Facebook token bootstrap
// and for checking the current credential state.
func main() {
	setup := flag.String("setup", "", "short-lived user token to exchange")
	check := flag.Bool("check", false, "report current token validity")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	if *setup == "" && !*check {
		fmt.Fprintln(os.Stderr, "usage:")
		fmt.Fprintln(os.Stderr, "  fbtoken --setup YOUR_SHORT_LIVED_TOKEN")
		fmt.Fprintln(os.Stderr, "  fbtoken --check")
		os.Exit(2)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := storage.NewPostgresRepository(db)
	manager := facebook.NewTokenManager(cfg.Facebook, store, logger.With("component", "tokens"))

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Warn("schema check failed", "error", err)
	}

	if *setup != "" {
		if err := manager.Setup(ctx, *setup); err != nil {
			logger.Error("setup failed, check app id, app secret, and token", "error", err)
			os.Exit(1)
		}
		logger.Info("setup complete, tokens stored")
		return
	}

	if entries, err := store.AllContext(ctx); err != nil {
		logger.Warn("reading stored context failed", "error", err)
	} else {
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		logger.Info("stored context", "keys", strings.Join(keys, ","))
	}

	token, err := manager.PageToken(ctx)
	if err != nil {
		logger.Error("no valid token", "error", err)
		os.Exit(1)
	}

	suffix := token
	if len(suffix) > 10 {
		suffix = suffix[len(suffix)-10:]
	}
	logger.Info("valid token available", "ends_with", suffix)
}
