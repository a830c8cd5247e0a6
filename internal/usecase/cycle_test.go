package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"autopost/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	articles []domain.Article
	err      error
}

func (s *fakeSource) FetchAll(context.Context, time.Duration) ([]domain.Article, error) {
	return s.articles, s.err
}

type fakeHistory struct {
	posted    map[string]bool
	postedErr error
	recent    []domain.Post
	recentErr error
	saved     []domain.Post
	saveErr   error
	values    map[string]string
}

func (h *fakeHistory) PostedURLs(context.Context, int) (map[string]bool, error) {
	return h.posted, h.postedErr
}

func (h *fakeHistory) RecentPosts(context.Context, int, string) ([]domain.Post, error) {
	return h.recent, h.recentErr
}

func (h *fakeHistory) SavePost(_ context.Context, post domain.Post) (string, error) {
	if h.saveErr != nil {
		return "", h.saveErr
	}
	h.saved = append(h.saved, post)
	return fmt.Sprintf("saved-%d", len(h.saved)), nil
}

func (h *fakeHistory) Context(_ context.Context, key string) (string, bool, error) {
	value, ok := h.values[key]
	return value, ok, nil
}

func (h *fakeHistory) SetContext(_ context.Context, key, value string) error {
	if h.values == nil {
		h.values = map[string]string{}
	}
	h.values[key] = value
	return nil
}

type fakeCurator struct {
	pickNone   bool
	seenInput  []domain.Article
	seenRecent []domain.Post
}

func (c *fakeCurator) SelectBest(_ context.Context, candidates []domain.Article, recent []domain.Post) (domain.Article, bool) {
	c.seenInput = candidates
	c.seenRecent = recent
	if c.pickNone || len(candidates) == 0 {
		return domain.Article{}, false
	}
	return candidates[0], true
}

func (c *fakeCurator) Caption(_ context.Context, article domain.Article) string {
	return "caption for " + article.Title
}

func (c *fakeCurator) ImagePrompt(_ context.Context, article domain.Article) string {
	return "image of " + article.Title
}

type fakeImages struct {
	url   string
	err   error
	calls int
}

func (i *fakeImages) Generate(context.Context, string) (string, error) {
	i.calls++
	return i.url, i.err
}

type fakeAssets struct {
	url string
	err error
}

func (a *fakeAssets) Upload(_ context.Context, sourceURL string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.url != "" {
		return a.url, nil
	}
	return sourceURL, nil
}

type fakePublisher struct {
	postID string
	err    error
	calls  int
}

func (p *fakePublisher) Publish(context.Context, string, string, string) (string, error) {
	p.calls++
	return p.postID, p.err
}

type panickingImages struct{}

func (panickingImages) Generate(context.Context, string) (string, error) {
	panic("generator exploded")
}

func testArticles(n int) []domain.Article {
	articles := make([]domain.Article, n)
	for i := range articles {
		articles[i] = domain.Article{
			ID:    fmt.Sprintf("id-%d", i+1),
			Title: fmt.Sprintf("Article %d", i+1),
			URL:   fmt.Sprintf("https://example.com/%d", i+1),
		}
	}
	return articles
}

type fixture struct {
	source    *fakeSource
	history   *fakeHistory
	curator   *fakeCurator
	images    *fakeImages
	assets    *fakeAssets
	publisher *fakePublisher
}

func newFixture() *fixture {
	return &fixture{
		source:    &fakeSource{articles: testArticles(8)},
		history:   &fakeHistory{posted: map[string]bool{"https://example.com/1": true}},
		curator:   &fakeCurator{},
		images:    &fakeImages{url: "https://provider.example.com/raw.png"},
		assets:    &fakeAssets{url: "https://cdn.example.com/hosted.png"},
		publisher: &fakePublisher{postID: "page_post-1"},
	}
}

func (f *fixture) cycle() *Cycle {
	return NewCycle(CycleDeps{
		Source:    f.source,
		History:   f.history,
		Curator:   f.curator,
		Images:    f.images,
		Assets:    f.assets,
		Publisher: f.publisher,
		Logger:    discard,
		Category:  "tech",
	})
}

func TestRunFullPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if !f.cycle().Run(context.Background(), false) {
		t.Fatal("expected a successful cycle")
	}

	if len(f.curator.seenInput) != 7 {
		t.Fatalf("expected 7 unposted candidates, got %d", len(f.curator.seenInput))
	}
	for _, candidate := range f.curator.seenInput {
		if candidate.URL == "https://example.com/1" {
			t.Fatal("already-posted article reached the curator")
		}
	}
	if f.publisher.calls != 1 {
		t.Fatalf("expected one publish, got %d", f.publisher.calls)
	}
	if len(f.history.saved) != 1 {
		t.Fatalf("expected one recorded post, got %d", len(f.history.saved))
	}

	record := f.history.saved[0]
	if record.PlatformPostID != "page_post-1" {
		t.Fatalf("unexpected platform post id: %s", record.PlatformPostID)
	}
	if record.ImageURL != "https://cdn.example.com/hosted.png" {
		t.Fatalf("expected the hosted url to be recorded, got %s", record.ImageURL)
	}
	if record.Category != "tech" {
		t.Fatalf("unexpected category: %s", record.Category)
	}
}

func TestRunDryRunPublishesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if !f.cycle().Run(context.Background(), true) {
		t.Fatal("expected the dry run to report success")
	}
	if f.publisher.calls != 0 {
		t.Fatalf("dry run must not publish, got %d calls", f.publisher.calls)
	}
	if len(f.history.saved) != 0 {
		t.Fatalf("dry run must not record, got %d records", len(f.history.saved))
	}
	if f.images.calls != 1 {
		t.Fatalf("dry run still generates the image, got %d calls", f.images.calls)
	}
}

func TestRunSkipsWhenNoArticles(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.source.articles = nil
	if f.cycle().Run(context.Background(), false) {
		t.Fatal("expected a skip with no articles")
	}
	if f.images.calls != 0 {
		t.Fatal("no image generation without articles")
	}
}

func TestRunSkipsWhenEverythingPosted(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.history.posted = map[string]bool{}
	for _, article := range f.source.articles {
		f.history.posted[article.URL] = true
	}
	if f.cycle().Run(context.Background(), false) {
		t.Fatal("expected a skip when all articles are posted")
	}
	if f.publisher.calls != 0 {
		t.Fatal("nothing should be published")
	}
}

func TestRunHistoryFailureDegradesToNoHistory(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.history.postedErr = fmt.Errorf("connection refused")
	f.history.recentErr = fmt.Errorf("connection refused")

	if !f.cycle().Run(context.Background(), false) {
		t.Fatal("a history outage must not halt the cycle")
	}
	if len(f.curator.seenInput) != 8 {
		t.Fatalf("expected all 8 articles as candidates, got %d", len(f.curator.seenInput))
	}
	if len(f.curator.seenRecent) != 0 {
		t.Fatal("expected no recent titles when the lookup fails")
	}
}

func TestRunImageFailureSkipsCycle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.images.err = fmt.Errorf("generation timed out")
	if f.cycle().Run(context.Background(), false) {
		t.Fatal("expected a failed cycle on image error")
	}
	if f.publisher.calls != 0 {
		t.Fatal("nothing should be published without an image")
	}
}

func TestRunAssetFailureFallsBackToProviderURL(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.assets.err = fmt.Errorf("cloud unavailable")

	if !f.cycle().Run(context.Background(), false) {
		t.Fatal("a hosting failure must not fail the cycle")
	}
	if f.history.saved[0].ImageURL != "https://provider.example.com/raw.png" {
		t.Fatalf("expected the provider url as fallback, got %s", f.history.saved[0].ImageURL)
	}
}

func TestRunPublishFailureRecordsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.publisher.err = fmt.Errorf("graph error 400")
	if f.cycle().Run(context.Background(), false) {
		t.Fatal("expected a failed cycle on publish error")
	}
	if len(f.history.saved) != 0 {
		t.Fatalf("a failed publish must not be recorded, got %d records", len(f.history.saved))
	}
}

func TestRunSaveFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.history.saveErr = fmt.Errorf("unique violation")
	if !f.cycle().Run(context.Background(), false) {
		t.Fatal("a failed record must not fail an already published cycle")
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cycle := NewCycle(CycleDeps{
		Source:    f.source,
		History:   f.history,
		Curator:   f.curator,
		Images:    panickingImages{},
		Assets:    f.assets,
		Publisher: f.publisher,
		Logger:    discard,
		Category:  "tech",
	})

	if cycle.Run(context.Background(), false) {
		t.Fatal("a panicking dependency must surface as a failed cycle")
	}
	if f.publisher.calls != 0 {
		t.Fatal("nothing should be published after a panic")
	}
}
