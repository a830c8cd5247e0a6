package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "AUTOPOST_CONFIG"

	databaseDSNEnv      = "DATABASE_DSN"
	categoryEnv         = "CATEGORY"
	mistralAPIKeyEnv    = "MISTRAL_API_KEY"
	mistralModelEnv     = "MISTRAL_MODEL"
	deapiKeyEnv         = "DEAPI_KEY"
	cloudinaryCloudEnv  = "CLOUDINARY_CLOUD_NAME"
	cloudinaryKeyEnv    = "CLOUDINARY_API_KEY"
	cloudinarySecretEnv = "CLOUDINARY_API_SECRET"
	fbPageIDEnv         = "FB_PAGE_ID"
	fbAppIDEnv          = "FB_APP_ID"
	fbAppSecretEnv      = "FB_APP_SECRET"
	fbAccessTokenEnv    = "FB_ACCESS_TOKEN"
)

// Config holds every setting the application needs; it is built once at
// startup and handed to component constructors, never read ambiently.
type Config struct {
	Logging    LoggingConfig       `yaml:"logging"`
	Database   DatabaseConfig      `yaml:"database"`
	Pipeline   PipelineConfig      `yaml:"pipeline"`
	Feeds      map[string][]string `yaml:"feeds"`
	LLM        LLMConfig           `yaml:"llm"`
	Images     ImageConfig         `yaml:"images"`
	Cloudinary CloudinaryConfig    `yaml:"cloudinary"`
	Facebook   FacebookConfig      `yaml:"facebook"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the Postgres connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// PipelineConfig groups cycle-level tunables.
type PipelineConfig struct {
	Category     string `yaml:"category"`
	CycleHours   int    `yaml:"cycleHours"`
	MaxAgeHours  int    `yaml:"maxAgeHours"`
	HistoryLimit int    `yaml:"historyLimit"`
	RecentLimit  int    `yaml:"recentLimit"`
}

// LLMConfig defines how to contact the chat-completion API.
type LLMConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// ImageConfig defines the image-generation provider and its parameters.
type ImageConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"apiKey"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	PollSeconds    int    `yaml:"pollSeconds"`
	MaxWaitSeconds int    `yaml:"maxWaitSeconds"`
}

// CloudinaryConfig wires the asset host account.
type CloudinaryConfig struct {
	CloudName string `yaml:"cloudName"`
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
	Folder    string `yaml:"folder"`
}

// FacebookConfig wires the Graph API page and app credentials.
type FacebookConfig struct {
	PageID      string `yaml:"pageId"`
	AppID       string `yaml:"appId"`
	AppSecret   string `yaml:"appSecret"`
	AccessToken string `yaml:"accessToken"`
	APIVersion  string `yaml:"apiVersion"`
}

// FeedsFor returns the feed list for the given category, falling back to
// the default category when the requested one is not configured.
func (c Config) FeedsFor(category string) []string {
	if feeds, ok := c.Feeds[category]; ok {
		return feeds
	}
	return c.Feeds["tech"]
}

// Load reads .env, YAML configuration (if present), and environment
// overrides, in that order of increasing precedence.
func Load() Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate enumerates missing required values. An empty result means the
// application may start.
func (c Config) Validate() []string {
	var issues []string

	if c.Database.DSN == "" {
		issues = append(issues, databaseDSNEnv+" not set")
	}
	if c.LLM.APIKey == "" {
		issues = append(issues, mistralAPIKeyEnv+" not set")
	}
	if c.Images.APIKey == "" {
		issues = append(issues, deapiKeyEnv+" not set")
	}
	if c.Cloudinary.CloudName == "" || c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
		issues = append(issues, "CLOUDINARY credentials not set")
	}
	if c.Facebook.AccessToken == "" {
		issues = append(issues, fbAccessTokenEnv+" not set")
	}
	if len(c.FeedsFor(c.Pipeline.Category)) == 0 {
		issues = append(issues, fmt.Sprintf("no feeds configured for category %q", c.Pipeline.Category))
	}

	return issues
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(categoryEnv); v != "" {
		c.Pipeline.Category = v
	}
	if v := os.Getenv(mistralAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(mistralModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(deapiKeyEnv); v != "" {
		c.Images.APIKey = v
	}
	if v := os.Getenv(cloudinaryCloudEnv); v != "" {
		c.Cloudinary.CloudName = v
	}
	if v := os.Getenv(cloudinaryKeyEnv); v != "" {
		c.Cloudinary.APIKey = v
	}
	if v := os.Getenv(cloudinarySecretEnv); v != "" {
		c.Cloudinary.APISecret = v
	}
	if v := os.Getenv(fbPageIDEnv); v != "" {
		c.Facebook.PageID = v
	}
	if v := os.Getenv(fbAppIDEnv); v != "" {
		c.Facebook.AppID = v
	}
	if v := os.Getenv(fbAppSecretEnv); v != "" {
		c.Facebook.AppSecret = v
	}
	if v := os.Getenv(fbAccessTokenEnv); v != "" {
		c.Facebook.AccessToken = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Pipeline.Category != "" {
		base.Pipeline.Category = override.Pipeline.Category
	}
	if override.Pipeline.CycleHours > 0 {
		base.Pipeline.CycleHours = override.Pipeline.CycleHours
	}
	if override.Pipeline.MaxAgeHours > 0 {
		base.Pipeline.MaxAgeHours = override.Pipeline.MaxAgeHours
	}
	if override.Pipeline.HistoryLimit > 0 {
		base.Pipeline.HistoryLimit = override.Pipeline.HistoryLimit
	}
	if override.Pipeline.RecentLimit > 0 {
		base.Pipeline.RecentLimit = override.Pipeline.RecentLimit
	}

	if len(override.Feeds) > 0 {
		base.Feeds = override.Feeds
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Temperature > 0 {
		base.LLM.Temperature = override.LLM.Temperature
	}
	if override.LLM.MaxTokens > 0 {
		base.LLM.MaxTokens = override.LLM.MaxTokens
	}

	if override.Images.BaseURL != "" {
		base.Images.BaseURL = override.Images.BaseURL
	}
	if override.Images.Model != "" {
		base.Images.Model = override.Images.Model
	}
	if override.Images.APIKey != "" {
		base.Images.APIKey = override.Images.APIKey
	}
	if override.Images.Width > 0 {
		base.Images.Width = override.Images.Width
	}
	if override.Images.Height > 0 {
		base.Images.Height = override.Images.Height
	}
	if override.Images.PollSeconds > 0 {
		base.Images.PollSeconds = override.Images.PollSeconds
	}
	if override.Images.MaxWaitSeconds > 0 {
		base.Images.MaxWaitSeconds = override.Images.MaxWaitSeconds
	}

	if override.Cloudinary.CloudName != "" {
		base.Cloudinary.CloudName = override.Cloudinary.CloudName
	}
	if override.Cloudinary.APIKey != "" {
		base.Cloudinary.APIKey = override.Cloudinary.APIKey
	}
	if override.Cloudinary.APISecret != "" {
		base.Cloudinary.APISecret = override.Cloudinary.APISecret
	}
	if override.Cloudinary.Folder != "" {
		base.Cloudinary.Folder = override.Cloudinary.Folder
	}

	if override.Facebook.PageID != "" {
		base.Facebook.PageID = override.Facebook.PageID
	}
	if override.Facebook.AppID != "" {
		base.Facebook.AppID = override.Facebook.AppID
	}
	if override.Facebook.AppSecret != "" {
		base.Facebook.AppSecret = override.Facebook.AppSecret
	}
	if override.Facebook.AccessToken != "" {
		base.Facebook.AccessToken = override.Facebook.AccessToken
	}
	if override.Facebook.APIVersion != "" {
		base.Facebook.APIVersion = override.Facebook.APIVersion
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{},
		Pipeline: PipelineConfig{
			Category:     "tech",
			CycleHours:   6,
			MaxAgeHours:  24,
			HistoryLimit: 100,
			RecentLimit:  10,
		},
		Feeds: map[string][]string{
			"tech": {
				"https://techcrunch.com/feed/",
				"https://www.theverge.com/rss/index.xml",
				"https://feeds.arstechnica.com/arstechnica/index",
				"https://www.wired.com/feed/rss",
				"https://hnrss.org/frontpage",
			},
		},
		LLM: LLMConfig{
			Endpoint:    "https://api.mistral.ai/v1/chat/completions",
			Model:       "mistral-large-latest",
			Temperature: 0.8,
			MaxTokens:   2500,
		},
		Images: ImageConfig{
			BaseURL:        "https://api.deapi.ai/api/v1/client",
			Model:          "Flux_2_Klein_4B_BF16",
			Width:          1024,
			Height:         1024,
			PollSeconds:    3,
			MaxWaitSeconds: 120,
		},
		Cloudinary: CloudinaryConfig{Folder: "autopost"},
		Facebook:   FacebookConfig{APIVersion: "v19.0"},
	}
}
