package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finchlabs/finch/internal/common"
	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
)

const anthropicDefaultBaseURL = "https://api.anthropic.com"

// anthropicClient implements the Client interface for the Anthropic API.
type anthropicClient struct {
	httpClient  *http.Client
	rateLimiter *rateLimiter
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 400
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &anthropicClient{
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Name identifies the backend.
func (c *anthropicClient) Name() string {
	return "anthropic"
}

// ParseTransaction sends a parse request to Anthropic.
func (c *anthropicClient) ParseTransaction(ctx context.Context, text string, pctx ParseContext) (model.ParsedTransaction, Usage, error) {
	content, usage, err := c.complete(ctx, parseSystemPrompt, buildParsePrompt(text, pctx))
	if err != nil {
		return model.ParsedTransaction{}, usage, err
	}

	parsed, err := decodeParsePayload(content)
	if err != nil {
		return model.ParsedTransaction{}, usage, &common.ProviderError{Provider: c.Name(), Err: err}
	}
	return parsed, usage, nil
}

// Categorize sends a categorization request to Anthropic.
func (c *anthropicClient) Categorize(ctx context.Context, merchant, payee string, amount decimal.Decimal, direction model.Direction) (CategoryResult, Usage, error) {
	content, usage, err := c.complete(ctx, categorizeSystemPrompt, buildCategorizePrompt(merchant, payee, amount, direction))
	if err != nil {
		return CategoryResult{}, usage, err
	}

	result, err := decodeCategoryPayload(content)
	if err != nil {
		return CategoryResult{}, usage, &common.ProviderError{Provider: c.Name(), Err: err}
	}
	return result, usage, nil
}

// HealthCheck verifies the API is reachable with the configured key.
func (c *anthropicClient) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

func (c *anthropicClient) complete(ctx context.Context, systemPrompt, prompt string) (string, Usage, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return "", Usage{}, err
	}

	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"system":      systemPrompt,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, classifyTransportError(c.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, classifyHTTPStatus(c.Name(), resp, body)
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", Usage{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Content) == 0 {
		return "", Usage{}, fmt.Errorf("no content in response")
	}

	usage := Usage{
		Model:        response.Model,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}
	return response.Content[0].Text, usage, nil
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
