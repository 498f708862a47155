// Package config loads the process configuration from the environment once at
// startup. Components receive the parts they need; nothing reads the
// environment after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Source modes select how raw material is acquired before prompting. Agent
// mode acquires nothing up front: the model pulls material itself through the
// search tool.
const (
	ModeSearch    = "search"
	ModeAgent     = "agent"
	ModeScrape    = "scrape"
	ModeRSS       = "rss"
	ModeHeadlines = "headlines"
)

type Config struct {
	// Generative backend
	GeminiAPIKey string
	ModelChain   []string // ordered fallback chain, strongest first

	// Search backend
	GoogleAPIKey   string
	SearchEngineID string

	// Headlines backend
	NewsAPIKey  string
	NewsSources string // comma list passed to the headlines API and site: queries

	// Optional headline brief backend
	OpenAIAPIKey string

	// Email delivery
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	SMTPSenderName string
	ToEmail        string

	// Task tuning
	SourceMode    string
	ResultCount   int
	LookbackHours int
	Keywords      []string // optional filter over acquired items
	Timezone      string

	// RSS settings
	FeedsConfigPath string

	// Delivery dedup store
	DatabaseURL   string
	CacheFilePath string
	CacheTTLHours int

	// Daily call budgets (0 = unlimited)
	MaxModelCallsPerDay  int
	MaxSearchCallsPerDay int

	// App settings
	ScheduleCron      string
	Debug             bool
	DryRun            bool
	RequestTimeout    time.Duration
	MonitoringEnabled bool
	MonitoringPort    int
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		ModelChain:      []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-1.5-pro"},
		NewsSources:     "axios,reuters,bloomberg,xinhua-net,time",
		SourceMode:      ModeSearch,
		ResultCount:     10,
		LookbackHours:   24,
		Timezone:        "Asia/Shanghai",
		FeedsConfigPath: "configs/feeds.yaml",
		CacheFilePath:   "sent_articles.json",
		CacheTTLHours:   72,
		RequestTimeout:  15 * time.Second,
	}

	// Load from environment
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.SearchEngineID = os.Getenv("SEARCH_ENGINE_ID")
	cfg.NewsAPIKey = os.Getenv("NEWSAPI_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvIntOrDefault("SMTP_PORT", 465)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.SMTPSenderName = getEnvOrDefault("SMTP_SENDER_NAME", "News Digest")
	cfg.ToEmail = os.Getenv("TO_EMAIL")

	if chain := os.Getenv("MODEL_CHAIN"); chain != "" {
		cfg.ModelChain = splitTrimmed(chain)
	}
	if sources := os.Getenv("NEWS_SOURCES"); sources != "" {
		cfg.NewsSources = sources
	}
	if mode := os.Getenv("SOURCE_MODE"); mode != "" {
		cfg.SourceMode = mode
	}
	if kw := os.Getenv("KEYWORDS"); kw != "" {
		cfg.Keywords = splitTrimmed(kw)
	}
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}

	cfg.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", cfg.FeedsConfigPath)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.CacheFilePath = getEnvOrDefault("CACHE_FILE_PATH", cfg.CacheFilePath)
	cfg.CacheTTLHours = getEnvIntOrDefault("CACHE_TTL_HOURS", cfg.CacheTTLHours)

	if v := os.Getenv("RESULT_COUNT"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.ResultCount = val
		}
	}
	if v := os.Getenv("LOOKBACK_HOURS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.LookbackHours = val
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.RequestTimeout = time.Duration(val) * time.Second
		}
	}

	cfg.MaxModelCallsPerDay = getEnvIntOrDefault("MAX_MODEL_CALLS_PER_DAY", 0)
	cfg.MaxSearchCallsPerDay = getEnvIntOrDefault("MAX_SEARCH_CALLS_PER_DAY", 0)

	cfg.ScheduleCron = os.Getenv("SCHEDULE_CRON")

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}
	if dry := os.Getenv("DRY_RUN"); dry == "true" {
		cfg.DryRun = true
	}
	if mon := os.Getenv("ENABLE_HTTP_MONITORING"); mon == "true" {
		cfg.MonitoringEnabled = true
	}
	cfg.MonitoringPort = getEnvIntOrDefault("MONITORING_PORT", 8080)

	return cfg, cfg.Validate()
}

// SourceList returns NewsSources split into individual source names.
func (c *Config) SourceList() []string {
	return splitTrimmed(c.NewsSources)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if len(c.ModelChain) == 0 {
		return fmt.Errorf("MODEL_CHAIN must name at least one model")
	}
	switch c.SourceMode {
	case ModeSearch, ModeAgent:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required in %s mode", c.SourceMode)
		}
		if c.SearchEngineID == "" {
			return fmt.Errorf("SEARCH_ENGINE_ID is required in %s mode", c.SourceMode)
		}
	case ModeHeadlines:
		if c.NewsAPIKey == "" {
			return fmt.Errorf("NEWSAPI_KEY is required in headlines mode")
		}
	case ModeScrape, ModeRSS:
		// No extra credentials needed.
	default:
		return fmt.Errorf("SOURCE_MODE must be one of search, agent, scrape, rss, headlines")
	}
	if !c.DryRun {
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required")
		}
		if c.SMTPUser == "" {
			return fmt.Errorf("SMTP_USER is required")
		}
		if c.SMTPPass == "" {
			return fmt.Errorf("SMTP_PASS is required")
		}
		if c.ToEmail == "" {
			return fmt.Errorf("TO_EMAIL is required")
		}
	}
	return nil
}
