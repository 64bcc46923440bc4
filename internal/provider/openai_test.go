package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finchlabs/finch/internal/common"
	"github.com/finchlabs/finch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openaiTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := newOpenAIClient(Config{
		Name:    "openai",
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	return client
}

func openaiCompletion(content string) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-01",
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"message":       map[string]string{"content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     200,
			"completion_tokens": 35,
			"total_tokens":      235,
		},
	}
}

func TestOpenAIParseTransaction(t *testing.T) {
	var gotPath, gotAuth string

	client := openaiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openaiCompletion(
			`{"isTransaction": true, "amount": "250", "direction": "CREDIT", "payee": "Ramesh", "confidence": 0.88}`))
	})

	parsed, usage, err := client.ParseTransaction(context.Background(), "Rs.250 credited from Ramesh", ParseContext{})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)

	assert.True(t, parsed.IsTransaction)
	assert.Equal(t, model.DirectionCredit, parsed.Direction)
	assert.Equal(t, "Ramesh", parsed.Payee)
	assert.Equal(t, 200, usage.InputTokens)
	assert.Equal(t, 35, usage.OutputTokens)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	client := openaiTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "chatcmpl-02", "choices": []any{}})
	})

	_, _, err := client.ParseTransaction(context.Background(), "Rs.10 debited", ParseContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAIServerError(t *testing.T) {
	client := openaiTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, _, err := client.ParseTransaction(context.Background(), "Rs.10 debited", ParseContext{})
	require.Error(t, err)
	assert.True(t, common.IsRetryable(err))

	var provErr *common.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "openai", provErr.Provider)
}
