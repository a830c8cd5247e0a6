package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"autopost/internal/config"
	"autopost/internal/ports"
)

// Poster publishes finished posts to a Facebook page. Publishing is
// two-step: upload the image as an unpublished photo, then create a feed
// post attaching it, so the post lands in the timeline rather than the
// photos tab. The article link goes into a follow-up comment.
type Poster struct {
	pageID     string
	apiVersion string
	graphURL   string
	tokens     ports.TokenProvider
	client     *resty.Client
	logger     *slog.Logger
}

var _ ports.PostPublisher = (*Poster)(nil)

// NewPoster wires the page configuration with a token provider.
func NewPoster(cfg config.FacebookConfig, tokens ports.TokenProvider, logger *slog.Logger) *Poster {
	return &Poster{
		pageID:     cfg.PageID,
		apiVersion: cfg.APIVersion,
		graphURL:   defaultGraphURL,
		tokens:     tokens,
		client:     resty.New().SetTimeout(30 * time.Second),
		logger:     logger,
	}
}

// Publish uploads the image, creates the feed post, and attaches the
// link as a comment. A failed comment does not invalidate the publish.
func (p *Poster) Publish(ctx context.Context, caption, imageURL, link string) (string, error) {
	token, err := p.tokens.PageToken(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve page token: %w", err)
	}

	photoID, err := p.uploadPhoto(ctx, imageURL, token)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}

	postID, err := p.createFeedPost(ctx, caption, photoID, token)
	if err != nil {
		return "", fmt.Errorf("create feed post: %w", err)
	}

	if link != "" {
		if err := p.addComment(ctx, postID, fmt.Sprintf("🔗 Read more: %s", link), token); err != nil {
			p.warn("attaching link comment failed", "post_id", postID, "error", err)
		}
	}

	return postID, nil
}

// uploadPhoto stores the image on the page without publishing it and
// returns the media id.
func (p *Poster) uploadPhoto(ctx context.Context, imageURL, token string) (string, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"url":          imageURL,
			"published":    "false",
			"access_token": token,
		}).
		Post(fmt.Sprintf("%s/%s/%s/photos", p.graphURL, p.apiVersion, p.pageID))
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("graph error %s: %s", resp.Status(), strings.TrimSpace(string(resp.Body())))
	}

	id, err := decodeID(resp.Body())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Poster) createFeedPost(ctx context.Context, caption, photoID, token string) (string, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"message":           caption,
			"attached_media[0]": fmt.Sprintf(`{"media_fbid":"%s"}`, photoID),
			"access_token":      token,
		}).
		Post(fmt.Sprintf("%s/%s/%s/feed", p.graphURL, p.apiVersion, p.pageID))
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("graph error %s: %s", resp.Status(), strings.TrimSpace(string(resp.Body())))
	}

	return decodeID(resp.Body())
}

func (p *Poster) addComment(ctx context.Context, postID, message, token string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"message":      message,
			"access_token": token,
		}).
		Post(fmt.Sprintf("%s/%s/%s/comments", p.graphURL, p.apiVersion, postID))
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("graph error %s", resp.Status())
	}
	return nil
}

func decodeID(body []byte) (string, error) {
	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("no id in response")
	}
	return decoded.ID, nil
}

func (p *Poster) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
