package usecase

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"autopost/internal/domain"
	"autopost/internal/ports"
)

// CycleDeps wires all driven adapters into the posting cycle.
type CycleDeps struct {
	Source    ports.ArticleSource
	History   ports.HistoryStore
	Curator   ports.Curator
	Images    ports.ImageGenerator
	Assets    ports.AssetStore
	Publisher ports.PostPublisher
	Logger    *slog.Logger

	Category     string
	MaxAge       time.Duration
	HistoryLimit int
	RecentLimit  int
}

// Cycle implements one complete run: fetch, filter against history,
// curate, generate an image, host it, publish, record.
type Cycle struct {
	source    ports.ArticleSource
	history   ports.HistoryStore
	curator   ports.Curator
	images    ports.ImageGenerator
	assets    ports.AssetStore
	publisher ports.PostPublisher
	logger    *slog.Logger

	category     string
	maxAge       time.Duration
	historyLimit int
	recentLimit  int
}

// NewCycle constructs the orchestration component.
func NewCycle(deps CycleDeps) *Cycle {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxAge <= 0 {
		deps.MaxAge = 24 * time.Hour
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 100
	}
	if deps.RecentLimit <= 0 {
		deps.RecentLimit = 10
	}

	return &Cycle{
		source:       deps.Source,
		history:      deps.History,
		curator:      deps.Curator,
		images:       deps.Images,
		assets:       deps.Assets,
		publisher:    deps.Publisher,
		logger:       deps.Logger,
		category:     deps.Category,
		maxAge:       deps.MaxAge,
		historyLimit: deps.HistoryLimit,
		recentLimit:  deps.RecentLimit,
	}
}

// Run executes the pipeline once. Empty-result steps end the cycle as an
// ordinary skip; a panic anywhere is caught here and converted into a
// failed cycle, never propagated.
func (c *Cycle) Run(ctx context.Context, dryRun bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
	}()

	c.logger.Info("cycle started", "category", c.category, "dry_run", dryRun)

	articles, err := c.source.FetchAll(ctx, c.maxAge)
	if err != nil {
		c.logger.Error("fetching articles failed", "error", err)
		return false
	}
	if len(articles) == 0 {
		c.logger.Info("no articles found, skipping cycle")
		return false
	}

	// A failed history lookup degrades to "no history": the worst case
	// is a repeated post, not a halted pipeline.
	posted, err := c.history.PostedURLs(ctx, c.historyLimit)
	if err != nil {
		c.logger.Warn("post history unavailable, proceeding without it", "error", err)
		posted = map[string]bool{}
	}

	var unposted []domain.Article
	for _, article := range articles {
		if !posted[article.URL] {
			unposted = append(unposted, article)
		}
	}
	c.logger.Info("filtered posted articles", "total", len(articles), "unposted", len(unposted))
	if len(unposted) == 0 {
		c.logger.Info("all articles already posted, skipping cycle")
		return false
	}

	recent, err := c.history.RecentPosts(ctx, c.recentLimit, c.category)
	if err != nil {
		c.logger.Warn("recent posts unavailable", "error", err)
		recent = nil
	}

	selected, found := c.curator.SelectBest(ctx, unposted, recent)
	if !found {
		c.logger.Info("no article selected, skipping cycle")
		return false
	}
	c.logger.Info("article selected", "title", selected.Title, "source", selected.Source)

	caption := c.curator.Caption(ctx, selected)
	imagePrompt := c.curator.ImagePrompt(ctx, selected)

	imageURL, err := c.images.Generate(ctx, imagePrompt)
	if err != nil {
		c.logger.Error("image generation failed, skipping cycle", "error", err)
		return false
	}

	hostedURL, err := c.assets.Upload(ctx, imageURL)
	if err != nil {
		c.logger.Warn("asset upload failed, using provider url", "error", err)
		hostedURL = imageURL
	}

	if dryRun {
		c.logger.Info("dry run, skipping publish",
			"title", selected.Title,
			"caption_chars", len(caption),
			"image", hostedURL,
			"link", selected.URL)
		return true
	}

	postID, err := c.publisher.Publish(ctx, caption, hostedURL, selected.URL)
	if err != nil {
		c.logger.Error("publishing failed, nothing recorded", "error", err)
		return false
	}

	record := domain.Post{
		URL:            selected.URL,
		Title:          selected.Title,
		Caption:        caption,
		ImageURL:       hostedURL,
		PlatformPostID: postID,
		Category:       c.category,
	}
	if id, err := c.history.SavePost(ctx, record); err != nil {
		c.logger.Error("recording post failed", "platform_post_id", postID, "error", err)
	} else {
		c.logger.Info("post recorded", "id", id)
	}

	c.logger.Info("cycle completed", "title", selected.Title, "platform_post_id", postID)
	return true
}
