package ports

import (
	"context"
	"time"

	"autopost/internal/domain"
)

// ArticleSource pulls fresh articles from configured feeds. Entries older
// than maxAge are dropped; individual feed failures are logged and the
// partial batch is still returned.
type ArticleSource interface {
	FetchAll(ctx context.Context, maxAge time.Duration) ([]domain.Article, error)
}

// HistoryStore persists published posts and generic context entries.
// Every method is a remote call; callers treat a failed call as missing
// history, never as a reason to abort.
type HistoryStore interface {
	PostedURLs(ctx context.Context, limit int) (map[string]bool, error)
	RecentPosts(ctx context.Context, limit int, category string) ([]domain.Post, error)
	SavePost(ctx context.Context, post domain.Post) (string, error)

	Context(ctx context.Context, key string) (string, bool, error)
	SetContext(ctx context.Context, key, value string) error
}

// Curator asks a language model to pick an article and produce the
// caption and image prompt for it. None of the methods fail outright:
// each falls back to a deterministic local result.
type Curator interface {
	SelectBest(ctx context.Context, candidates []domain.Article, recent []domain.Post) (domain.Article, bool)
	Caption(ctx context.Context, article domain.Article) string
	ImagePrompt(ctx context.Context, article domain.Article) string
}

// ImageGenerator turns a text prompt into a hosted image URL, blocking
// until the provider reports a terminal state or the wait budget expires.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AssetStore re-hosts an image (by source URL) on durable storage.
type AssetStore interface {
	Upload(ctx context.Context, sourceURL string) (string, error)
}

// TokenProvider yields a valid page-scoped platform token.
type TokenProvider interface {
	PageToken(ctx context.Context) (string, error)
}

// PostPublisher pushes a finished post to the social platform and
// returns the platform's post id.
type PostPublisher interface {
	Publish(ctx context.Context, caption, imageURL, link string) (string, error)
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
