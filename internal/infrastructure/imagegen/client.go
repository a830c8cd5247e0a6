package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"autopost/internal/config"
	"autopost/internal/domain"
	"autopost/internal/ports"
)

// Client talks to a submit-then-poll image generation API. A request is
// submitted once; afterwards the status resource is polled on a fixed
// interval until the provider reports done or error, or the wait budget
// runs out.
type Client struct {
	baseURL      string
	model        string
	apiKey       string
	width        int
	height       int
	pollInterval time.Duration
	maxWait      time.Duration
	httpClient   *http.Client
	logger       *slog.Logger

	// injected for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

var _ ports.ImageGenerator = (*Client)(nil)

// NewClient builds a generator from configuration.
func NewClient(cfg config.ImageConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		width:        cfg.Width,
		height:       cfg.Height,
		pollInterval: time.Duration(cfg.PollSeconds) * time.Second,
		maxWait:      time.Duration(cfg.MaxWaitSeconds) * time.Second,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Generate submits the prompt and blocks until the provider yields a
// result URL. Submission failure returns immediately; poll failures are
// tolerated until the wait budget expires.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	requestID, err := c.submit(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("submit generation: %w", err)
	}

	c.debug("generation submitted", "request_id", requestID)
	return c.awaitResult(ctx, requestID)
}

func (c *Client) submit(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"prompt":   prompt,
		"model":    c.model,
		"width":    c.width,
		"height":   c.height,
		"steps":    4,
		"guidance": 7.5,
		"seed":     -1,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/txt2img", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("provider error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded struct {
		Data struct {
			RequestID string `json:"request_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.Data.RequestID == "" {
		return "", fmt.Errorf("no request id in response")
	}

	return decoded.Data.RequestID, nil
}

func (c *Client) awaitResult(ctx context.Context, requestID string) (string, error) {
	deadline := c.now().Add(c.maxWait)

	for c.now().Before(deadline) {
		update, err := c.pollOnce(ctx, requestID)
		if err != nil {
			// Possibly transient; keep polling until the budget expires.
			c.warn("poll failed", "request_id", requestID, "error", err)
		} else {
			switch update.Status {
			case domain.GenerationDone:
				if update.ResultURL == "" {
					return "", fmt.Errorf("generation done but no result url")
				}
				return update.ResultURL, nil
			case domain.GenerationError:
				return "", fmt.Errorf("generation failed: %s", update.ErrorMessage)
			case domain.GenerationUnknown:
				c.warn("unrecognized poll response shape", "request_id", requestID)
			default:
				c.debug("generation pending", "request_id", requestID)
			}
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("generation timed out after %s", c.maxWait)
}

func (c *Client) pollOnce(ctx context.Context, requestID string) (domain.GenerationUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/request-status/"+requestID, nil)
	if err != nil {
		return domain.GenerationUpdate{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GenerationUpdate{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GenerationUpdate{}, fmt.Errorf("status check %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.GenerationUpdate{}, fmt.Errorf("read body: %w", err)
	}

	return decodeUpdate(requestID, body), nil
}

type statusPayload struct {
	Status    string          `json:"status"`
	ResultURL string          `json:"result_url"`
	Error     string          `json:"error"`
	Result    json.RawMessage `json:"result"`
}

// decodeUpdate interprets a poll response. The provider wraps the payload
// in a "data" object, but flat responses have been observed as well, so
// both shapes are decoded explicitly; anything else is reported as an
// unknown shape rather than silently probed.
func decodeUpdate(requestID string, body []byte) domain.GenerationUpdate {
	update := domain.GenerationUpdate{RequestID: requestID, Status: domain.GenerationUnknown}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	payloadBytes := body
	if err := json.Unmarshal(body, &envelope); err != nil {
		return update
	}
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		payloadBytes = envelope.Data
	}

	var payload statusPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return update
	}
	if payload.Status == "" {
		return update
	}

	switch payload.Status {
	case "done":
		update.Status = domain.GenerationDone
		update.ResultURL = resultURL(payload)
	case "error":
		update.Status = domain.GenerationError
		update.ErrorMessage = payload.Error
		if update.ErrorMessage == "" {
			update.ErrorMessage = "unknown error"
		}
	default:
		update.Status = domain.GenerationPending
	}

	return update
}

// resultURL extracts the image URL, preferring the documented result_url
// field and falling back through alternate nested shapes.
func resultURL(payload statusPayload) string {
	if payload.ResultURL != "" {
		return payload.ResultURL
	}
	if len(payload.Result) == 0 {
		return ""
	}

	var nested struct {
		URL      string `json:"url"`
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(payload.Result, &nested); err == nil {
		if nested.URL != "" {
			return nested.URL
		}
		if nested.ImageURL != "" {
			return nested.ImageURL
		}
	}

	var plain string
	if err := json.Unmarshal(payload.Result, &plain); err == nil {
		return plain
	}

	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
