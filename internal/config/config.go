package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	DatabaseURL string

	LLMMode        string
	GeminiAPIKey   string
	GeminiModel    string
	LLMTimeout     time.Duration
	LLMMaxAttempts int
	LLMRetryBase   time.Duration

	MemoryCompactThreshold int
	MemoryTranscriptLimit  int
	MemorySweepSchedule    string
	HistoryLimit           int

	LoanPaymentBuffer float64
	CatalogPath       string
}

// Load reads environment variables (and an optional .env file) and applies safe defaults.
func Load() (Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:               envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:       envOrDefault("APP_METRICS_NAMESPACE", "finchat"),
		LogLevel:               envOrDefault("LOG_LEVEL", "info"),
		LogFormat:              envOrDefault("LOG_FORMAT", "console"),
		DatabaseURL:            stringsTrimSpace("DATABASE_URL"),
		LLMMode:                envOrDefault("LLM_MODE", "auto"),
		GeminiAPIKey:           stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModel:            envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		MemorySweepSchedule:    stringsTrimSpace("MEMORY_SWEEP_SCHEDULE"),
		CatalogPath:            stringsTrimSpace("CATALOG_PATH"),
		ShutdownTimeout:        15 * time.Second,
		LLMTimeout:             20 * time.Second,
		LLMMaxAttempts:         2,
		LLMRetryBase:           300 * time.Millisecond,
		MemoryCompactThreshold: 6,
		MemoryTranscriptLimit:  12,
		HistoryLimit:           50,
		LoanPaymentBuffer:      1.5,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxAttempts, err = intFromEnv("LLM_MAX_ATTEMPTS", cfg.LLMMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMRetryBase, err = durationFromEnv("LLM_RETRY_BASE", cfg.LLMRetryBase)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryCompactThreshold, err = intFromEnv("MEMORY_COMPACT_THRESHOLD", cfg.MemoryCompactThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryTranscriptLimit, err = intFromEnv("MEMORY_TRANSCRIPT_LIMIT", cfg.MemoryTranscriptLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.LoanPaymentBuffer, err = floatFromEnv("LOAN_PAYMENT_BUFFER", cfg.LoanPaymentBuffer)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(cfg.LLMMode) {
	case "auto", "gemini", "mock":
	default:
		return Config{}, fmt.Errorf("LLM_MODE must be one of auto|gemini|mock, got %q", cfg.LLMMode)
	}
	if strings.EqualFold(cfg.LLMMode, "gemini") && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("LLM_MODE=gemini requires GEMINI_API_KEY")
	}
	if cfg.LLMTimeout < time.Second {
		return Config{}, fmt.Errorf("LLM_TIMEOUT must be at least 1s")
	}
	if cfg.LLMMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_ATTEMPTS must be positive")
	}
	if cfg.MemoryCompactThreshold <= 0 {
		return Config{}, fmt.Errorf("MEMORY_COMPACT_THRESHOLD must be positive")
	}
	if cfg.MemoryTranscriptLimit <= 0 {
		return Config{}, fmt.Errorf("MEMORY_TRANSCRIPT_LIMIT must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if cfg.LoanPaymentBuffer < 1 {
		return Config{}, fmt.Errorf("LOAN_PAYMENT_BUFFER must be >= 1")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
