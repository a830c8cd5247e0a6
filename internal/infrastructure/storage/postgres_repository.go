package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"autopost/internal/domain"
	"autopost/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepository persists posts and context entries into Postgres.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.HistoryStore = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema applies the embedded schema; every statement is
// IF NOT EXISTS so re-running is harmless.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostedURLs returns the most recently posted article URLs as a set.
func (r *PostgresRepository) PostedURLs(ctx context.Context, limit int) (map[string]bool, error) {
	if r.db == nil {
		return map[string]bool{}, nil
	}

	query, args, err := r.builder.
		Select("url").
		From("posts").
		OrderBy("posted_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posted urls: %w", err)
	}
	defer rows.Close()

	urls := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls[u] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return urls, nil
}

// RecentPosts returns the newest posts, optionally scoped to a category.
func (r *PostgresRepository) RecentPosts(ctx context.Context, limit int, category string) ([]domain.Post, error) {
	if r.db == nil {
		return nil, nil
	}

	q := r.builder.
		Select("id", "url", "title", "caption", "image_url", "fb_post_id", "category", "posted_at").
		From("posts").
		OrderBy("posted_at DESC").
		Limit(uint64(limit))
	if category != "" {
		q = q.Where(sq.Eq{"category": category})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var post domain.Post
		var caption, imageURL, fbID, categoryCol sql.NullString
		if err := rows.Scan(&post.ID, &post.URL, &post.Title, &caption, &imageURL, &fbID, &categoryCol, &post.PostedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		post.Caption = caption.String
		post.ImageURL = imageURL.String
		post.PlatformPostID = fbID.String
		post.Category = categoryCol.String
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return posts, nil
}

// SavePost inserts the publish record and returns its generated id. The
// unique constraint on url rejects a second post for the same article.
func (r *PostgresRepository) SavePost(ctx context.Context, post domain.Post) (string, error) {
	if r.db == nil {
		return "", errors.New("repository is not connected")
	}

	query, args, err := r.builder.
		Insert("posts").
		Columns("url", "title", "caption", "image_url", "fb_post_id", "category").
		Values(post.URL, post.Title, post.Caption, post.ImageURL, post.PlatformPostID, post.Category).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}

	var id string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}

	return id, nil
}

// Context reads one context value; the second result reports presence.
func (r *PostgresRepository) Context(ctx context.Context, key string) (string, bool, error) {
	if r.db == nil {
		return "", false, nil
	}

	query, args, err := r.builder.
		Select("value").
		From("context").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build query: %w", err)
	}

	var value sql.NullString
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query context %s: %w", key, err)
	}

	return value.String, true, nil
}

// SetContext upserts one key/value pair.
func (r *PostgresRepository) SetContext(ctx context.Context, key, value string) error {
	if r.db == nil {
		return errors.New("repository is not connected")
	}

	query, args, err := r.builder.
		Insert("context").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert context %s: %w", key, err)
	}

	return nil
}

// AllContext returns every context entry; used by the token CLI's status
// report.
func (r *PostgresRepository) AllContext(ctx context.Context) (map[string]string, error) {
	if r.db == nil {
		return map[string]string{}, nil
	}

	query, args, err := r.builder.
		Select("key", "value").
		From("context").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query context: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		entries[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return entries, nil
}
