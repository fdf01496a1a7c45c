package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// RelayClient talks to an OpenAI-compatible chat completions endpoint over
// raw HTTP. It exists for self-hosted gateways (vLLM, LiteLLM, an internal
// relay) where the hosted-SDK assumptions don't hold.

type relayRequest struct {
	Model    string         `json:"model"`
	Messages []relayMessage `json:"messages"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type relayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type relayResponse struct {
	ID      string        `json:"id"`
	Choices []relayChoice `json:"choices"`
	Error   *relayError   `json:"error,omitempty"`
}

type relayChoice struct {
	Message      relayMessage `json:"message"`
	FinishReason string       `json:"finish_reason"`
}

type relayError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// --- Client Implementation ---

type RelayClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

func NewRelayClient() (*RelayClient, error) {
	baseURL := os.Getenv("RELAY_URL")
	token := os.Getenv("RELAY_TOKEN")
	model := os.Getenv("RELAY_MODEL")

	if token == "" {
		secretPath := "/run/secrets/relay_token"
		if content, err := os.ReadFile(secretPath); err == nil {
			token = strings.TrimSpace(string(content))
			slog.Info("Read relay token from container secrets")
		}
	}

	if baseURL == "" {
		return nil, fmt.Errorf("RELAY_URL is missing")
	}
	if model == "" {
		return nil, fmt.Errorf("RELAY_MODEL is missing")
	}

	return &RelayClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		model:      model,
	}, nil
}

// Generate implements the LLMClient interface
func (r *RelayClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	systemRoleContent := os.Getenv("SYSTEM_ROLE_PROMPT_PERSONA")
	if systemRoleContent == "" {
		systemRoleContent = "You are a helpful assistant."
	}

	reqPayload := relayRequest{
		Model: r.model,
		Messages: []relayMessage{
			{Role: "system", Content: systemRoleContent},
			{Role: "user", Content: prompt},
		},
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
	}

	reqBodyBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/v1/chat/completions", bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("content-type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	slog.Debug("Sending REST request to relay", "model", r.model)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp relayResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("relay error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("received empty choices from relay")
	}

	slog.Debug("Received response from relay", "finish_reason", apiResp.Choices[0].FinishReason)
	return apiResp.Choices[0].Message.Content, nil
}
