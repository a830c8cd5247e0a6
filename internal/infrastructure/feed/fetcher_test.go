package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func rssItem(title, link string, published time.Time, description string) string {
	var b strings.Builder
	b.WriteString("<item>")
	fmt.Fprintf(&b, "<title>%s</title>", title)
	fmt.Fprintf(&b, "<link>%s</link>", link)
	if !published.IsZero() {
		fmt.Fprintf(&b, "<pubDate>%s</pubDate>", published.Format(time.RFC1123Z))
	}
	if description != "" {
		fmt.Fprintf(&b, "<description>%s</description>", description)
	}
	b.WriteString("</item>")
	return b.String()
}

func rssFeed(title string, items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>` +
		title + `</title>` + strings.Join(items, "") + `</channel></rss>`
}

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestFetcher(feeds []string) *Fetcher {
	fetcher := NewFetcher(feeds, "tech", nil, nil)
	fetcher.now = func() time.Time { return testNow }
	return fetcher
}

func TestFetchAllFiltersOldArticles(t *testing.T) {
	t.Parallel()

	server := serveFeed(t, rssFeed("one",
		rssItem("fresh", "https://example.com/fresh", testNow.Add(-2*time.Hour), "fresh news"),
		rssItem("stale", "https://example.com/stale", testNow.Add(-48*time.Hour), "stale news"),
	))

	fetcher := newTestFetcher([]string{server.URL})
	articles, err := fetcher.FetchAll(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	if articles[0].URL != "https://example.com/fresh" {
		t.Fatalf("unexpected article kept: %s", articles[0].URL)
	}
}

func TestFetchAllDeduplicatesByURLFirstWins(t *testing.T) {
	t.Parallel()

	shared := "https://example.com/shared"
	first := serveFeed(t, rssFeed("first",
		rssItem("from first", shared, testNow.Add(-1*time.Hour), ""),
	))
	second := serveFeed(t, rssFeed("second",
		rssItem("from second", shared, testNow.Add(-1*time.Hour), ""),
		rssItem("unique", "https://example.com/unique", testNow.Add(-2*time.Hour), ""),
	))

	fetcher := newTestFetcher([]string{first.URL, second.URL})
	articles, err := fetcher.FetchAll(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if len(articles) != 2 {
		t.Fatalf("expected 2 unique articles, got %d", len(articles))
	}
	for _, article := range articles {
		if article.URL == shared && article.Title != "from first" {
			t.Fatalf("dedup kept the wrong occurrence: %s", article.Title)
		}
	}
}

func TestFetchAllSortsNewestFirst(t *testing.T) {
	t.Parallel()

	server := serveFeed(t, rssFeed("feed",
		rssItem("oldest", "https://example.com/1", testNow.Add(-10*time.Hour), ""),
		rssItem("newest", "https://example.com/2", testNow.Add(-1*time.Hour), ""),
		rssItem("middle", "https://example.com/3", testNow.Add(-5*time.Hour), ""),
	))

	fetcher := newTestFetcher([]string{server.URL})
	articles, err := fetcher.FetchAll(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}
	for i := 1; i < len(articles); i++ {
		if articles[i].PublishedAt.After(articles[i-1].PublishedAt) {
			t.Fatalf("articles not sorted newest first: %s before %s",
				articles[i-1].Title, articles[i].Title)
		}
	}
}

// An entry without any date gets the fetch time, so it always passes the
// age filter. That keeps date-less feeds postable; a change here must be
// deliberate.
func TestFetchAllMissingDateDefaultsToNow(t *testing.T) {
	t.Parallel()

	server := serveFeed(t, rssFeed("feed",
		rssItem("undated", "https://example.com/undated", time.Time{}, ""),
	))

	fetcher := newTestFetcher([]string{server.URL})
	articles, err := fetcher.FetchAll(context.Background(), 1*time.Hour)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("expected the undated article to survive the filter, got %d articles", len(articles))
	}
	if !articles[0].PublishedAt.Equal(testNow) {
		t.Fatalf("expected publish time %s, got %s", testNow, articles[0].PublishedAt)
	}
}

func TestFetchAllToleratesFailingFeed(t *testing.T) {
	t.Parallel()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	working := serveFeed(t, rssFeed("feed",
		rssItem("survivor", "https://example.com/ok", testNow.Add(-1*time.Hour), ""),
	))

	fetcher := newTestFetcher([]string{broken.URL, working.URL})
	articles, err := fetcher.FetchAll(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("expected partial result from working feed, got %d articles", len(articles))
	}
	if articles[0].Title != "survivor" {
		t.Fatalf("unexpected article: %s", articles[0].Title)
	}
}

func TestCleanSummaryStripsMarkupAndTruncates(t *testing.T) {
	t.Parallel()

	fetcher := newTestFetcher(nil)

	got := fetcher.cleanSummary("<p>Hello   <b>world</b> &amp; friends</p>")
	if got != "Hello world & friends" {
		t.Fatalf("unexpected cleaned summary: %q", got)
	}

	long := strings.Repeat("a", summaryLimit+50)
	if cleaned := fetcher.cleanSummary(long); len([]rune(cleaned)) != summaryLimit {
		t.Fatalf("expected truncation to %d runes, got %d", summaryLimit, len([]rune(cleaned)))
	}
}

func TestSourceName(t *testing.T) {
	t.Parallel()

	if name := sourceName("https://techcrunch.com/feed/"); name != "TechCrunch" {
		t.Fatalf("expected TechCrunch, got %s", name)
	}
	if name := sourceName("https://blog.example.org/rss"); name != "blog.example.org" {
		t.Fatalf("expected hostname fallback, got %s", name)
	}
}
