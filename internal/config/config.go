// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Reasoning provider settings.
	ReasonerProvider string // "openai", "ollama", or "none"
	OpenAIAPIKey     string
	OpenAIBaseURL    string // OpenAI-compatible endpoint; OpenRouter works.
	OpenAIModel      string
	OllamaURL        string
	OllamaModel      string
	ReasonerTimeout  time.Duration

	// Pipeline tunables. The health coefficients mirror the historical
	// behavior and are not known to be load-bearing; keep them adjustable.
	SentimentWeight   float64 // health delta per unit of sentiment
	TrendThreshold    int     // health points before trend flips up/down
	AutoAssignLimit   int     // max auto-staffed employees per deal
	MaxDocumentChars  int     // document text cap before prompt assembly
	ExtractionTokens  int     // token budget for extraction calls
	AnalysisTokens    int     // token budget for analysis/sentiment calls
	DecisionTokens    int     // token budget for decision calls
	GenerationTokens  int     // token budget for proposal drafting
	RetrievalSections int     // sections requested from the retriever

	// Run registry settings.
	RunCapacity int // terminal runs retained before LRU eviction

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		ReasonerProvider:  envStr("QUINN_REASONER", "openai"),
		OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     envStr("QUINN_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:       envStr("QUINN_OPENAI_MODEL", "gpt-4o-mini"),
		OllamaURL:         envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       envStr("OLLAMA_MODEL", "qwen2.5:3b"),
		ReasonerTimeout:   envDuration("QUINN_REASONER_TIMEOUT", 120*time.Second),
		SentimentWeight:   envFloat("QUINN_SENTIMENT_WEIGHT", 15),
		TrendThreshold:    envInt("QUINN_TREND_THRESHOLD", 5),
		AutoAssignLimit:   envInt("QUINN_AUTO_ASSIGN_LIMIT", 5),
		MaxDocumentChars:  envInt("QUINN_MAX_DOCUMENT_CHARS", 50000),
		ExtractionTokens:  envInt("QUINN_EXTRACTION_TOKENS", 4096),
		AnalysisTokens:    envInt("QUINN_ANALYSIS_TOKENS", 2048),
		DecisionTokens:    envInt("QUINN_DECISION_TOKENS", 1024),
		GenerationTokens:  envInt("QUINN_GENERATION_TOKENS", 8192),
		RetrievalSections: envInt("QUINN_RETRIEVAL_SECTIONS", 10),
		RunCapacity:       envInt("QUINN_RUN_CAPACITY", 1024),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:      envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "quinn"),
		LogLevel:          envStr("QUINN_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configured values are usable.
func (c Config) Validate() error {
	switch c.ReasonerProvider {
	case "openai", "ollama", "none":
	default:
		return fmt.Errorf("config: QUINN_REASONER must be openai, ollama, or none (got %q)", c.ReasonerProvider)
	}
	if c.TrendThreshold < 0 {
		return fmt.Errorf("config: QUINN_TREND_THRESHOLD must be non-negative")
	}
	if c.AutoAssignLimit <= 0 {
		return fmt.Errorf("config: QUINN_AUTO_ASSIGN_LIMIT must be positive")
	}
	if c.MaxDocumentChars <= 0 {
		return fmt.Errorf("config: QUINN_MAX_DOCUMENT_CHARS must be positive")
	}
	if c.RunCapacity <= 0 {
		return fmt.Errorf("config: QUINN_RUN_CAPACITY must be positive")
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
