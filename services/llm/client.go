package llm

import (
	"context"
	"fmt"
	"strings"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// New selects a backend by name. Supported: "openai", "relay".
func New(backend string) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "openai":
		return NewOpenAIClient()
	case "relay":
		return NewRelayClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", backend)
	}
}
