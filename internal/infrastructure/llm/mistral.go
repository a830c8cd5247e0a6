package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autopost/internal/config"
	"autopost/internal/domain"
	"autopost/internal/ports"
)

const (
	candidateLimit       = 20
	candidateSummaryRune = 200
	recentTitleLimit     = 5
)

// Client implements ports.Curator against an OpenAI-compatible
// chat-completion endpoint. Every operation is a single request with a
// deterministic local fallback; nothing retries.
type Client struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.Curator = (*Client)(nil)

// NewClient builds a curator from configuration.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// SelectBest asks the model to pick one candidate by 1-based index. An
// unparsable or out-of-range reply, or a failed request, selects the
// first candidate; only an empty input yields no selection.
func (c *Client) SelectBest(ctx context.Context, candidates []domain.Article, recent []domain.Post) (domain.Article, bool) {
	if len(candidates) == 0 {
		return domain.Article{}, false
	}

	reply, err := c.complete(ctx, selectionPrompt(candidates, recent))
	if err != nil {
		c.warn("selection request failed, using first article", "error", err)
		return candidates[0], true
	}

	index, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil || index < 1 || index > len(candidates) {
		c.warn("invalid selection reply, using first article", "reply", strings.TrimSpace(reply))
		return candidates[0], true
	}

	return candidates[index-1], true
}

// Caption generates the post caption, falling back to a templated one
// built from the title.
func (c *Client) Caption(ctx context.Context, article domain.Article) string {
	caption, err := c.complete(ctx, captionPrompt(article))
	if err != nil {
		c.warn("caption request failed, using fallback", "error", err)
		return fmt.Sprintf("🚀 %s\n\nRead more in comments 👇", article.Title)
	}
	return strings.TrimSpace(caption)
}

// ImagePrompt generates a visual-scene description for the image
// provider, falling back to a templated prompt built from the title.
func (c *Client) ImagePrompt(ctx context.Context, article domain.Article) string {
	prompt, err := c.complete(ctx, imagePromptPrompt(article))
	if err != nil {
		c.warn("image prompt request failed, using fallback", "error", err)
		return fmt.Sprintf("Dramatic tech concept visualization, cinematic lighting, dark background, no text. Theme: %s", truncate(article.Title, 40))
	}
	return strings.TrimSpace(prompt)
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("llm client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion")
	}

	return decoded.Choices[0].Message.Content, nil
}

func selectionPrompt(candidates []domain.Article, recent []domain.Post) string {
	var b strings.Builder

	b.WriteString("You are a tech news curator for a popular Facebook page. Your job is to select the SINGLE MOST interesting and engaging tech news story from today's feeds.\n\n")

	b.WriteString("Recent posts (avoid similar topics):\n")
	if len(recent) == 0 {
		b.WriteString("None - this is the first post\n")
	}
	for i, post := range recent {
		if i == recentTitleLimit {
			break
		}
		fmt.Fprintf(&b, "- %s\n", post.Title)
	}

	shown := len(candidates)
	if shown > candidateLimit {
		shown = candidateLimit
	}

	b.WriteString("\nAvailable articles:\n")
	for i := 0; i < shown; i++ {
		article := candidates[i]
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, article.Source, article.Title)
		if article.Summary != "" {
			fmt.Fprintf(&b, "   Summary: %s...\n", truncate(article.Summary, candidateSummaryRune))
		}
	}

	b.WriteString("\nSelect the ONE article that:\n")
	b.WriteString("1. Is most newsworthy and impactful\n")
	b.WriteString("2. Will generate the most engagement on social media\n")
	b.WriteString("3. Is NOT similar to recent posts\n")
	b.WriteString("4. Has broad appeal to tech enthusiasts\n\n")
	fmt.Fprintf(&b, "Respond with ONLY the number (1-%d) of the best article. Nothing else.", shown)

	return b.String()
}

func captionPrompt(article domain.Article) string {
	summary := article.Summary
	if summary == "" {
		summary = "No summary available"
	}

	var b strings.Builder
	b.WriteString("Create an EDUCATIONAL Facebook post caption for this tech news article.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", article.Title)
	fmt.Fprintf(&b, "Summary: %s\n", summary)
	fmt.Fprintf(&b, "Source: %s\n\n", article.Source)
	b.WriteString("Write 2-3 substantial paragraphs that:\n")
	b.WriteString("- Hook the reader immediately with a compelling opening line\n")
	b.WriteString("- Explain what happened and why it's significant in the tech world\n")
	b.WriteString("- Provide context - how does this fit into the bigger picture? What led to this?\n")
	b.WriteString("- Include technical details that developers and tech enthusiasts would appreciate\n")
	b.WriteString("- Explain any jargon in simple terms so anyone can follow\n")
	b.WriteString("- Discuss potential implications or what this means for the future\n")
	b.WriteString("- Include 3-4 relevant emojis placed naturally throughout\n")
	b.WriteString("- End the final paragraph with \"Read more in comments 👇\"\n\n")
	b.WriteString("Write in an engaging, conversational tone - like you're explaining exciting tech news to a smart friend who wants to actually understand it, not just skim headlines.\n\n")
	b.WriteString("DO NOT use hashtags. DO NOT include the link. Write ONLY the caption.")

	return b.String()
}

func imagePromptPrompt(article domain.Article) string {
	var b strings.Builder
	b.WriteString("Analyze this tech article and create an image prompt that will stop people scrolling.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", article.Title)
	fmt.Fprintf(&b, "Summary: %s\n\n", article.Summary)
	b.WriteString("Your task:\n")
	b.WriteString("1. What is the CORE visual concept of this story? (A product? A breakthrough? A warning? An achievement?)\n")
	b.WriteString("2. What emotion should the image evoke? (Excitement, awe, curiosity, concern?)\n")
	b.WriteString("3. Create a scene-based image that tells part of the story visually\n\n")
	b.WriteString("Image requirements:\n")
	b.WriteString("- NO TEXT, NO WORDS, NO LETTERS, NO LOGOS - AI image generators cannot render text properly\n")
	b.WriteString("- NO human faces (they look uncanny)\n")
	b.WriteString("- Dramatic lighting and composition\n")
	b.WriteString("- Clean, uncluttered background\n")
	b.WriteString("- Professional quality suitable for social media\n")
	b.WriteString("- The image should make someone curious about the article\n\n")
	b.WriteString("Write a detailed image generation prompt (2-3 sentences) describing a specific scene or visual concept. Focus on what should be IN the image, not abstract styles.\n\n")
	b.WriteString("Write ONLY the image prompt, no explanation.")

	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
