package domain

import "time"

// Article is a normalized feed entry produced by the feed source.
// URL is the natural key: deduplication and history lookups use it.
// Articles are not persisted; only the Post written after publication is.
type Article struct {
	ID          string
	Title       string
	URL         string
	Summary     string
	Source      string
	PublishedAt time.Time
	Category    string
}

// Post is the audit record written exactly once per successful cycle.
// URL is unique across the posts table.
type Post struct {
	ID             string
	URL            string
	Title          string
	Caption        string
	ImageURL       string
	PlatformPostID string
	Category       string
	PostedAt       time.Time
}
