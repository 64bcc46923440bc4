package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/finchlabs/finch/internal/common"
)

// classifyHTTPStatus converts an API error response into a typed error.
// Rate limits and transient server failures are retryable; bad requests and
// auth failures are not. Retryable failures still count toward the circuit
// breaker — that accounting happens at the cost guard.
func classifyHTTPStatus(providerName string, resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &common.RateLimitError{
			Provider:   providerName,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout:
		return &common.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Retryable:  true,
			Err:        fmt.Errorf("transient API error: %s", string(body)),
		}
	default:
		return &common.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Retryable:  false,
			Err:        fmt.Errorf("API error: %s", string(body)),
		}
	}
}

// classifyTransportError wraps a failed round trip. Timeouts are retryable.
func classifyTransportError(providerName string, err error) error {
	retryable := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		retryable = true
	}
	return &common.ProviderError{
		Provider:  providerName,
		Retryable: retryable,
		Err:       fmt.Errorf("request failed: %w", err),
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
