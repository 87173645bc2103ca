package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if v := envInt("TEST_INT", 0); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	if v := envInt("TEST_INT_MISSING", 99); v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7, got %d", v)
	}
}

func TestEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "12.5")
	if v := envFloat("TEST_FLOAT", 0); v != 12.5 {
		t.Fatalf("expected 12.5, got %v", v)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if v := envDuration("TEST_DURATION", time.Second); v != 90*time.Second {
		t.Fatalf("expected 90s, got %v", v)
	}
	if v := envDuration("TEST_DURATION_MISSING", time.Minute); v != time.Minute {
		t.Fatalf("expected fallback 1m, got %v", v)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReasonerProvider != "openai" {
		t.Fatalf("expected openai default, got %q", cfg.ReasonerProvider)
	}
	if cfg.SentimentWeight != 15 {
		t.Fatalf("expected sentiment weight 15, got %v", cfg.SentimentWeight)
	}
	if cfg.TrendThreshold != 5 {
		t.Fatalf("expected trend threshold 5, got %d", cfg.TrendThreshold)
	}
	if cfg.AutoAssignLimit != 5 {
		t.Fatalf("expected auto assign limit 5, got %d", cfg.AutoAssignLimit)
	}
	if cfg.MaxDocumentChars != 50000 {
		t.Fatalf("expected 50000 document chars, got %d", cfg.MaxDocumentChars)
	}
	if cfg.RunCapacity != 1024 {
		t.Fatalf("expected run capacity 1024, got %d", cfg.RunCapacity)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUINN_REASONER", "ollama")
	t.Setenv("QUINN_SENTIMENT_WEIGHT", "20")
	t.Setenv("QUINN_REASONER_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReasonerProvider != "ollama" {
		t.Fatalf("expected ollama, got %q", cfg.ReasonerProvider)
	}
	if cfg.SentimentWeight != 20 {
		t.Fatalf("expected sentiment weight 20, got %v", cfg.SentimentWeight)
	}
	if cfg.ReasonerTimeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.ReasonerTimeout)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("QUINN_REASONER", "gpt5-magic")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown reasoner provider")
	}
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("QUINN_AUTO_ASSIGN_LIMIT", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero auto assign limit")
	}
}
