package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("NODE_ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("CORS_ORIGIN", "")
	cfg := Load()
	if cfg.Port != "3001" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.FrontendURL != "http://localhost:3000" {
		t.Fatalf("expected default frontend url, got %s", cfg.FrontendURL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("expected wildcard CORS origin, got %v", cfg.CORSOrigins)
	}
	if cfg.SessionIdleTTL != 2*time.Hour || cfg.SessionCompletedRetention != 24*time.Hour {
		t.Fatalf("unexpected session retention defaults: %s / %s", cfg.SessionIdleTTL, cfg.SessionCompletedRetention)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue by default")
	}
	if _, err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("FRONTEND_URL", "https://app.agendmed.com.br/")
	t.Setenv("CORS_ORIGIN", "https://a.example, https://b.example")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SESSION_IDLE_TTL", "45m")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.FrontendURL != "https://app.agendmed.com.br" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.FrontendURL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORS origins: %v", cfg.CORSOrigins)
	}
	if cfg.UpstreamTimeout != 3*time.Second {
		t.Fatalf("expected upstream timeout override, got %s", cfg.UpstreamTimeout)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected two kafka brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.SessionIdleTTL != 45*time.Minute {
		t.Fatalf("expected idle ttl override, got %s", cfg.SessionIdleTTL)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
}

func TestValidateRejectsMissingChannelCredentials(t *testing.T) {
	cfg := Load()
	cfg.Channel = "whatsapp"
	cfg.WhatsAppToken = ""
	if _, err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "WhatsAppToken") {
		t.Fatalf("expected whatsapp token error, got %v", err)
	}
}

func TestValidateRequiresQueueURLWithoutMemoryQueue(t *testing.T) {
	cfg := Load()
	cfg.UseMemoryQueue = false
	cfg.ConversationQueueURL = ""
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected error when SQS queue url is missing")
	}
}

func TestValidateWarnsOnPlainHTTPInProduction(t *testing.T) {
	cfg := Load()
	cfg.Env = "production"
	cfg.FrontendURL = "http://frontend.internal"
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "FRONTEND_URL") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected FRONTEND_URL warning, got %v", warnings)
	}
}

func TestValidateRejectsUnknownTimezone(t *testing.T) {
	cfg := Load()
	cfg.Timezone = "Mars/Olympus"
	if _, err := cfg.Validate(); err == nil {
		t.Fatal("expected timezone error")
	}
	if cfg.Location() != time.UTC {
		t.Fatal("expected UTC fallback for unknown timezone")
	}
}
