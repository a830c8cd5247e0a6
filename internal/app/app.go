package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"autopost/internal/config"
	"autopost/internal/infrastructure/cloudinary"
	"autopost/internal/infrastructure/facebook"
	"autopost/internal/infrastructure/feed"
	"autopost/internal/infrastructure/imagegen"
	"autopost/internal/infrastructure/llm"
	"autopost/internal/infrastructure/scheduler"
	"autopost/internal/infrastructure/storage"
	"autopost/internal/logging"
	"autopost/internal/usecase"
)

// RunOptions selects the run mode resolved from CLI flags.
type RunOptions struct {
	DryRun bool
	Single bool
	Test   bool
}

// Application wires configuration to components and drives the selected
// run mode.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
	store  *storage.PostgresRepository
	cycle  *usecase.Cycle
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := storage.NewPostgresRepository(db)
	category := cfg.Pipeline.Category

	source := feed.NewFetcher(cfg.FeedsFor(category), category, nil, baseLogger.With("component", "feed"))
	curator := llm.NewClient(cfg.LLM, baseLogger.With("component", "curator"))
	images := imagegen.NewClient(cfg.Images, baseLogger.With("component", "imagegen"))
	assets := cloudinary.NewUploader(cfg.Cloudinary, category, baseLogger.With("component", "assets"))
	tokens := facebook.NewTokenManager(cfg.Facebook, store, baseLogger.With("component", "tokens"))
	publisher := facebook.NewPoster(cfg.Facebook, tokens, baseLogger.With("component", "publisher"))

	cycle := usecase.NewCycle(usecase.CycleDeps{
		Source:       source,
		History:      store,
		Curator:      curator,
		Images:       images,
		Assets:       assets,
		Publisher:    publisher,
		Logger:       baseLogger.With("component", "cycle"),
		Category:     category,
		MaxAge:       time.Duration(cfg.Pipeline.MaxAgeHours) * time.Hour,
		HistoryLimit: cfg.Pipeline.HistoryLimit,
		RecentLimit:  cfg.Pipeline.RecentLimit,
	})

	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		db:     db,
		store:  store,
		cycle:  cycle,
	}, nil
}

// Run executes the selected mode: --test constructs and exits, --single
// runs one cycle, the default schedules cycles until the context ends.
func (a *Application) Run(ctx context.Context, opts RunOptions) error {
	if err := a.store.EnsureSchema(ctx); err != nil {
		// The cycle degrades gracefully when the store is unreachable.
		a.logger.Warn("schema check failed", "error", err)
	}

	if opts.Test {
		a.logger.Info("all components initialized")
		return nil
	}

	if opts.Single {
		a.cycle.Run(ctx, opts.DryRun)
		return nil
	}

	a.logger.Info("starting continuous mode",
		"category", a.cfg.Pipeline.Category,
		"cycle_hours", a.cfg.Pipeline.CycleHours)

	driver := scheduler.NewCronScheduler(
		time.Duration(a.cfg.Pipeline.CycleHours)*time.Hour,
		a.logger.With("component", "scheduler"))
	loop := usecase.NewScheduler(driver, a.cycle, opts.DryRun)

	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return loop.Stop(stopCtx)
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
