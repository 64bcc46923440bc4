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

const openaiDefaultBaseURL = "https://api.openai.com"

// openaiClient implements the Client interface for the OpenAI API.
type openaiClient struct {
	httpClient  *http.Client
	rateLimiter *rateLimiter
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// newOpenAIClient creates a new OpenAI API client.
func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
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
		baseURL = openaiDefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &openaiClient{
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
func (c *openaiClient) Name() string {
	return "openai"
}

// ParseTransaction sends a parse request to OpenAI.
func (c *openaiClient) ParseTransaction(ctx context.Context, text string, pctx ParseContext) (model.ParsedTransaction, Usage, error) {
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

// Categorize sends a categorization request to OpenAI.
func (c *openaiClient) Categorize(ctx context.Context, merchant, payee string, amount decimal.Decimal, direction model.Direction) (CategoryResult, Usage, error) {
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
func (c *openaiClient) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

func (c *openaiClient) complete(ctx context.Context, systemPrompt, prompt string) (string, Usage, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return "", Usage{}, err
	}

	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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

	var response openaiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", Usage{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in response")
	}

	usage := Usage{
		Model:        response.Model,
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}
	return response.Choices[0].Message.Content, usage, nil
}

// openaiResponse represents the OpenAI API response structure.
type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
