package llm

import (
	"context"
	"fmt"
	"strings"
)

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	Mode   string
	APIKey string
	Model  string
}

// NewClient builds the configured backend. Mode "auto" uses Gemini when a key is
// present and the mock otherwise. It returns the resolved mode.
func NewClient(ctx context.Context, cfg ProviderConfig) (Client, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	if mode == "auto" {
		if strings.TrimSpace(cfg.APIKey) != "" {
			mode = "gemini"
		} else {
			mode = "mock"
		}
	}

	switch mode {
	case "mock":
		return NewMockClient(), mode, nil
	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, mode, err
		}
		return c, mode, nil
	default:
		return nil, mode, &Error{Kind: KindConfiguration, Op: "new", Err: fmt.Errorf("unsupported mode %q", cfg.Mode)}
	}
}
