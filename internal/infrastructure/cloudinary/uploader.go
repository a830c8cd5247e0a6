package cloudinary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"autopost/internal/config"
	"autopost/internal/ports"
)

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

// Uploader re-hosts images on Cloudinary. The upload call passes the
// source URL as the file parameter, so Cloudinary fetches it server-side;
// nothing is downloaded locally.
type Uploader struct {
	cloudName string
	apiKey    string
	apiSecret string
	folder    string
	category  string
	baseURL   string
	client    *resty.Client
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.AssetStore = (*Uploader)(nil)

// NewUploader builds an uploader from configuration.
func NewUploader(cfg config.CloudinaryConfig, category string, logger *slog.Logger) *Uploader {
	return &Uploader{
		cloudName: cfg.CloudName,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		folder:    cfg.Folder,
		category:  category,
		baseURL:   defaultBaseURL,
		client:    resty.New().SetTimeout(30 * time.Second),
		logger:    logger,
		now:       time.Now,
	}
}

// Upload sends the source URL to the signed upload endpoint and returns
// the durable secure URL.
func (u *Uploader) Upload(ctx context.Context, sourceURL string) (string, error) {
	if u.cloudName == "" || u.apiKey == "" || u.apiSecret == "" {
		return "", fmt.Errorf("cloudinary uploader misconfigured")
	}

	publicID := fmt.Sprintf("%s/%s/%s", u.folder, u.category, u.now().Format("20060102_150405"))
	timestamp := strconv.FormatInt(u.now().Unix(), 10)

	signed := map[string]string{
		"folder":    u.folder,
		"overwrite": "false",
		"public_id": publicID,
		"timestamp": timestamp,
	}

	form := map[string]string{
		"file":      sourceURL,
		"api_key":   u.apiKey,
		"signature": signature(signed, u.apiSecret),
	}
	for key, value := range signed {
		form[key] = value
	}

	u.debug("uploading asset", "public_id", publicID)

	resp, err := u.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(fmt.Sprintf("%s/%s/image/upload", u.baseURL, u.cloudName))
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("upload failed %s: %s", resp.Status(), strings.TrimSpace(string(resp.Body())))
	}

	var decoded struct {
		SecureURL string `json:"secure_url"`
	}
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.SecureURL == "" {
		return "", fmt.Errorf("no secure_url in response")
	}

	return decoded.SecureURL, nil
}

// signature computes the SHA-1 request signature: the signed parameters
// sorted by name, joined as a query string, with the API secret appended.
func signature(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func (u *Uploader) debug(msg string, args ...any) {
	if u.logger != nil {
		u.logger.Debug(msg, args...)
	}
}
