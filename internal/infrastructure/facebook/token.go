package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"autopost/internal/config"
	"autopost/internal/ports"
)

const (
	pageTokenKey = "fb_page_token"
	userTokenKey = "fb_long_lived_token"

	defaultGraphURL = "https://graph.facebook.com"
)

// contextStore is the slice of the history store the token manager needs.
type contextStore interface {
	Context(ctx context.Context, key string) (string, bool, error)
	SetContext(ctx context.Context, key, value string) error
}

// TokenManager resolves a page-scoped access token through an ordered
// list of strategies: cached page token, cached long-lived user token
// exchanged for a fresh page token, then the statically configured token.
type TokenManager struct {
	appID       string
	appSecret   string
	pageID      string
	staticToken string
	apiVersion  string
	graphURL    string
	store       contextStore
	client      *resty.Client
	logger      *slog.Logger
}

var _ ports.TokenProvider = (*TokenManager)(nil)

// NewTokenManager wires platform credentials with the context store used
// for token caching.
func NewTokenManager(cfg config.FacebookConfig, store contextStore, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		appID:       cfg.AppID,
		appSecret:   cfg.AppSecret,
		pageID:      cfg.PageID,
		staticToken: cfg.AccessToken,
		apiVersion:  cfg.APIVersion,
		graphURL:    defaultGraphURL,
		store:       store,
		client:      resty.New().SetTimeout(10 * time.Second),
		logger:      logger,
	}
}

type tokenStrategy struct {
	name  string
	fetch func(ctx context.Context) (string, bool)
}

// PageToken tries each strategy in order and returns the first token one
// of them yields.
func (m *TokenManager) PageToken(ctx context.Context) (string, error) {
	strategies := []tokenStrategy{
		{name: "cached-page-token", fetch: m.cachedPageToken},
		{name: "user-token-exchange", fetch: m.exchangedPageToken},
		{name: "static-token", fetch: m.configuredToken},
	}

	for _, strategy := range strategies {
		if token, ok := strategy.fetch(ctx); ok {
			m.debug("page token resolved", "strategy", strategy.name)
			return token, nil
		}
	}

	return "", fmt.Errorf("no valid page token available")
}

// Setup is the operator-invoked bootstrap: it exchanges a short-lived
// user token for a long-lived one, derives the page token, persists
// both, and verifies the result.
func (m *TokenManager) Setup(ctx context.Context, shortLivedToken string) error {
	if m.appID == "" || m.appSecret == "" {
		return fmt.Errorf("app id and app secret are required for setup")
	}

	longLived, err := m.exchangeLongLived(ctx, shortLivedToken)
	if err != nil {
		return fmt.Errorf("exchange long-lived token: %w", err)
	}
	if err := m.store.SetContext(ctx, userTokenKey, longLived); err != nil {
		return fmt.Errorf("persist long-lived token: %w", err)
	}

	pageToken, err := m.fetchPageToken(ctx, longLived)
	if err != nil {
		return fmt.Errorf("fetch page token: %w", err)
	}
	if err := m.store.SetContext(ctx, pageTokenKey, pageToken); err != nil {
		return fmt.Errorf("persist page token: %w", err)
	}

	if !m.validate(ctx, pageToken) {
		return fmt.Errorf("page token verification failed")
	}

	return nil
}

func (m *TokenManager) cachedPageToken(ctx context.Context) (string, bool) {
	token, ok, err := m.store.Context(ctx, pageTokenKey)
	if err != nil {
		m.warn("reading cached page token failed", "error", err)
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	if !m.validate(ctx, token) {
		m.warn("cached page token is no longer valid")
		return "", false
	}
	return token, true
}

func (m *TokenManager) exchangedPageToken(ctx context.Context) (string, bool) {
	userToken, ok, err := m.store.Context(ctx, userTokenKey)
	if err != nil {
		m.warn("reading long-lived token failed", "error", err)
		return "", false
	}
	if !ok || userToken == "" {
		return "", false
	}

	pageToken, err := m.fetchPageToken(ctx, userToken)
	if err != nil {
		m.warn("page token exchange failed", "error", err)
		return "", false
	}
	if err := m.store.SetContext(ctx, pageTokenKey, pageToken); err != nil {
		m.warn("caching page token failed", "error", err)
	}
	return pageToken, true
}

func (m *TokenManager) configuredToken(context.Context) (string, bool) {
	if m.staticToken == "" {
		return "", false
	}
	m.warn("using statically configured token, it may expire")
	return m.staticToken, true
}

// validate performs the lightweight "who am I" check.
func (m *TokenManager) validate(ctx context.Context, token string) bool {
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		Get(fmt.Sprintf("%s/%s/me", m.graphURL, m.apiVersion))
	return err == nil && resp.IsSuccess()
}

// fetchPageToken lists the accounts reachable from the user token and
// picks the configured page's token.
func (m *TokenManager) fetchPageToken(ctx context.Context, userToken string) (string, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", userToken).
		Get(fmt.Sprintf("%s/%s/me/accounts", m.graphURL, m.apiVersion))
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("list accounts: %s", resp.Status())
	}

	var decoded struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return "", fmt.Errorf("decode accounts: %w", err)
	}

	for _, page := range decoded.Data {
		if page.ID == m.pageID {
			return page.AccessToken, nil
		}
	}

	for _, page := range decoded.Data {
		m.warn("page not matched", "available_page", page.Name, "id", page.ID)
	}
	return "", fmt.Errorf("page %s not found among %d accounts", m.pageID, len(decoded.Data))
}

func (m *TokenManager) exchangeLongLived(ctx context.Context, shortToken string) (string, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":        "fb_exchange_token",
			"client_id":         m.appID,
			"client_secret":     m.appSecret,
			"fb_exchange_token": shortToken,
		}).
		Get(fmt.Sprintf("%s/%s/oauth/access_token", m.graphURL, m.apiVersion))
	if err != nil {
		return "", fmt.Errorf("exchange request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("exchange failed: %s", resp.Status())
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return "", fmt.Errorf("decode exchange response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", fmt.Errorf("no access token in exchange response")
	}

	return decoded.AccessToken, nil
}

func (m *TokenManager) debug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func (m *TokenManager) warn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
