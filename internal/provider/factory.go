package provider

import (
	"fmt"
	"strings"
)

// New creates a backend client based on the provided configuration. The
// selection happens once at startup; callers hold the returned Client and
// never re-dispatch by name.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "mock":
		return newMockClient(cfg), nil
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}
