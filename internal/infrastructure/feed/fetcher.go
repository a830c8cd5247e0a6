package feed

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"autopost/internal/domain"
	"autopost/internal/ports"
)

const summaryLimit = 500

// sourceNames maps well-known feed hosts to display names; anything else
// falls back to the hostname.
var sourceNames = map[string]string{
	"techcrunch.com":       "TechCrunch",
	"theverge.com":         "The Verge",
	"arstechnica.com":      "Ars Technica",
	"wired.com":            "Wired",
	"hnrss.org":            "Hacker News",
	"technologyreview.com": "MIT Tech Review",
	"arxiv.org":            "arXiv",
}

// rawDateLayouts is tried, in order, against the raw published string when
// the parser could not produce a timestamp itself.
var rawDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006",
}

// Fetcher implements ports.ArticleSource over a set of RSS/Atom feeds.
type Fetcher struct {
	feeds    []string
	category string
	client   *http.Client
	strip    *bluemonday.Policy
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.ArticleSource = (*Fetcher)(nil)

// NewFetcher wires the feed list for one category. A nil client gets a
// default with a fixed timeout.
func NewFetcher(feeds []string, category string, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{
		feeds:    feeds,
		category: category,
		client:   client,
		strip:    bluemonday.StrictPolicy(),
		logger:   logger,
		now:      time.Now,
	}
}

// FetchAll pulls every configured feed, normalizes entries, drops those
// older than maxAge, deduplicates by URL (first occurrence wins), and
// returns the batch sorted newest first. A failing feed is logged and
// excluded; the partial result is still returned.
func (f *Fetcher) FetchAll(ctx context.Context, maxAge time.Duration) ([]domain.Article, error) {
	cutoff := f.now().Add(-maxAge)

	var all []domain.Article
	for _, feedURL := range f.feeds {
		articles, err := f.fetchFeed(ctx, feedURL, cutoff)
		if err != nil {
			f.warn("fetch feed failed", "feed", feedURL, "error", err)
			continue
		}
		f.debug("fetched feed", "feed", feedURL, "articles", len(articles))
		all = append(all, articles...)
	}

	seen := make(map[string]bool, len(all))
	unique := all[:0]
	for _, article := range all {
		if seen[article.URL] {
			continue
		}
		seen[article.URL] = true
		unique = append(unique, article)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].PublishedAt.After(unique[j].PublishedAt)
	})

	f.debug("feeds normalized", "feeds", len(f.feeds), "unique_articles", len(unique))
	return unique, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string, cutoff time.Time) ([]domain.Article, error) {
	parser := gofeed.NewParser()
	parser.Client = f.client

	parsed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	source := sourceName(feedURL)
	articles := make([]domain.Article, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil || item.Link == "" {
			continue
		}

		published := f.publishedAt(item)
		if published.Before(cutoff) {
			continue
		}

		articles = append(articles, domain.Article{
			ID:          articleID(item.Link),
			Title:       strings.TrimSpace(item.Title),
			URL:         item.Link,
			Summary:     f.cleanSummary(itemSummary(item)),
			Source:      source,
			PublishedAt: published,
			Category:    f.category,
		})
	}

	return articles, nil
}

// publishedAt derives the entry timestamp: parsed published, then parsed
// updated, then a best-effort parse of the raw published string. Entries
// carrying no usable date get the fetch time, which means they always
// pass the age filter.
func (f *Fetcher) publishedAt(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	if raw := strings.TrimSpace(item.Published); raw != "" {
		for _, layout := range rawDateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return f.now().UTC()
}

func itemSummary(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	return item.Content
}

// cleanSummary strips markup, unescapes entities, collapses whitespace,
// and truncates to the prompt budget.
func (f *Fetcher) cleanSummary(raw string) string {
	text := html.UnescapeString(f.strip.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > summaryLimit {
		return string(runes[:summaryLimit])
	}
	return text
}

func articleID(link string) string {
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:])[:12]
}

func sourceName(feedURL string) string {
	for domainPart, name := range sourceNames {
		if strings.Contains(feedURL, domainPart) {
			return name
		}
	}

	if parsed, err := url.Parse(feedURL); err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}
	return feedURL
}

func (f *Fetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func (f *Fetcher) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
