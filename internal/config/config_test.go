package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.LLMMode != "auto" {
		t.Fatalf("LLMMode = %q, want %q", cfg.LLMMode, "auto")
	}
	if cfg.LLMTimeout != 20*time.Second {
		t.Fatalf("LLMTimeout = %v, want 20s", cfg.LLMTimeout)
	}
	if cfg.LLMMaxAttempts != 2 {
		t.Fatalf("LLMMaxAttempts = %d, want 2", cfg.LLMMaxAttempts)
	}
	if cfg.MemoryCompactThreshold != 6 {
		t.Fatalf("MemoryCompactThreshold = %d, want 6", cfg.MemoryCompactThreshold)
	}
	if cfg.MemoryTranscriptLimit != 12 {
		t.Fatalf("MemoryTranscriptLimit = %d, want 12", cfg.MemoryTranscriptLimit)
	}
	if cfg.LoanPaymentBuffer != 1.5 {
		t.Fatalf("LoanPaymentBuffer = %v, want 1.5", cfg.LoanPaymentBuffer)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadOverridesLoanBuffer(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("LOAN_PAYMENT_BUFFER", "2.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LoanPaymentBuffer != 2.25 {
		t.Fatalf("LoanPaymentBuffer = %v, want 2.25", cfg.LoanPaymentBuffer)
	}
}

func TestLoadRejectsGeminiModeWithoutKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("LLM_MODE", "gemini")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error when GEMINI_API_KEY is missing")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("LLM_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected parse error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"LLM_MODE",
		"GEMINI_API_KEY",
		"GEMINI_MODEL",
		"LLM_TIMEOUT",
		"LLM_MAX_ATTEMPTS",
		"LLM_RETRY_BASE",
		"MEMORY_COMPACT_THRESHOLD",
		"MEMORY_TRANSCRIPT_LIMIT",
		"MEMORY_SWEEP_SCHEDULE",
		"HISTORY_LIMIT",
		"LOAN_PAYMENT_BUFFER",
		"CATALOG_PATH",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
