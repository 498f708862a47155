package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so ambient shell state cannot
// leak into a test. t.Setenv restores the originals afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"GEMINI_API_KEY", "MODEL_CHAIN",
		"GOOGLE_API_KEY", "SEARCH_ENGINE_ID",
		"NEWSAPI_KEY", "NEWS_SOURCES", "OPENAI_API_KEY",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_SENDER_NAME", "TO_EMAIL",
		"SOURCE_MODE", "RESULT_COUNT", "LOOKBACK_HOURS", "KEYWORDS", "TIMEZONE",
		"FEEDS_CONFIG_PATH", "DATABASE_URL", "CACHE_FILE_PATH", "CACHE_TTL_HOURS",
		"MAX_MODEL_CALLS_PER_DAY", "MAX_SEARCH_CALLS_PER_DAY",
		"SCHEDULE_CRON", "DEBUG", "DRY_RUN", "REQUEST_TIMEOUT_SECONDS",
		"ENABLE_HTTP_MONITORING", "MONITORING_PORT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func validEnv(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("GOOGLE_API_KEY", "test-google-key")
	t.Setenv("SEARCH_ENGINE_ID", "test-cx")
	t.Setenv("DRY_RUN", "true")
}

func TestLoadDefaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SourceMode != ModeSearch {
		t.Errorf("SourceMode = %q, want %q", cfg.SourceMode, ModeSearch)
	}
	wantChain := []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-1.5-pro"}
	if len(cfg.ModelChain) != len(wantChain) {
		t.Fatalf("ModelChain = %v, want %v", cfg.ModelChain, wantChain)
	}
	for i := range wantChain {
		if cfg.ModelChain[i] != wantChain[i] {
			t.Errorf("ModelChain[%d] = %q, want %q", i, cfg.ModelChain[i], wantChain[i])
		}
	}
	if cfg.ResultCount != 10 {
		t.Errorf("ResultCount = %d, want 10", cfg.ResultCount)
	}
	if cfg.LookbackHours != 24 {
		t.Errorf("LookbackHours = %d, want 24", cfg.LookbackHours)
	}
	if cfg.Timezone != "Asia/Shanghai" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.SMTPPort != 465 {
		t.Errorf("SMTPPort = %d, want 465", cfg.SMTPPort)
	}
	if cfg.CacheTTLHours != 72 {
		t.Errorf("CacheTTLHours = %d, want 72", cfg.CacheTTLHours)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
	if cfg.MonitoringPort != 8080 {
		t.Errorf("MonitoringPort = %d, want 8080", cfg.MonitoringPort)
	}
	if cfg.MonitoringEnabled {
		t.Errorf("MonitoringEnabled should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("MODEL_CHAIN", " gemini-2.5-flash , gemini-pro ")
	t.Setenv("KEYWORDS", "ai, climate ,")
	t.Setenv("SOURCE_MODE", "rss")
	t.Setenv("RESULT_COUNT", "5")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "30")
	t.Setenv("ENABLE_HTTP_MONITORING", "true")
	t.Setenv("MONITORING_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.ModelChain) != 2 || cfg.ModelChain[0] != "gemini-2.5-flash" || cfg.ModelChain[1] != "gemini-pro" {
		t.Errorf("ModelChain = %v, want trimmed two-entry chain", cfg.ModelChain)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[0] != "ai" || cfg.Keywords[1] != "climate" {
		t.Errorf("Keywords = %v, want [ai climate]", cfg.Keywords)
	}
	if cfg.SourceMode != ModeRSS {
		t.Errorf("SourceMode = %q, want rss", cfg.SourceMode)
	}
	if cfg.ResultCount != 5 {
		t.Errorf("ResultCount = %d, want 5", cfg.ResultCount)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if !cfg.MonitoringEnabled || cfg.MonitoringPort != 9090 {
		t.Errorf("monitoring = (%v, %d), want (true, 9090)", cfg.MonitoringEnabled, cfg.MonitoringPort)
	}
}

func TestValidateModeCredentials(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "gemini key always required",
			env:     map[string]string{"GEMINI_API_KEY": ""},
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "search mode needs google key",
			env:     map[string]string{"GOOGLE_API_KEY": ""},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "agent mode needs engine id",
			env:     map[string]string{"SOURCE_MODE": "agent", "SEARCH_ENGINE_ID": ""},
			wantErr: "SEARCH_ENGINE_ID",
		},
		{
			name:    "headlines mode needs newsapi key",
			env:     map[string]string{"SOURCE_MODE": "headlines"},
			wantErr: "NEWSAPI_KEY",
		},
		{
			name: "scrape mode needs no extra credentials",
			env:  map[string]string{"SOURCE_MODE": "scrape", "GOOGLE_API_KEY": "", "SEARCH_ENGINE_ID": ""},
		},
		{
			name:    "unknown mode rejected",
			env:     map[string]string{"SOURCE_MODE": "teletext"},
			wantErr: "SOURCE_MODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := Load()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSMTPUnlessDryRun(t *testing.T) {
	validEnv(t)
	t.Setenv("DRY_RUN", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SMTP_HOST") {
		t.Fatalf("expected SMTP_HOST error, got %v", err)
	}

	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USER", "digest@example.com")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("TO_EMAIL", "reader@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with full SMTP env: %v", err)
	}
	if cfg.SMTPSenderName != "News Digest" {
		t.Errorf("SMTPSenderName = %q, want default", cfg.SMTPSenderName)
	}
}
