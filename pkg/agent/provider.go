package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/recall/internal/observability"
)

// Provider is a chat completion backend
type Provider interface {
	// Generate runs one chat completion
	Generate(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name
	Name() string
}

// NewProvider builds a provider by name
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// GenerateWithRetry calls the provider, retrying transient failures with
// exponential backoff. maxRetries counts retries after the first attempt;
// zero or negative means a single attempt. Context cancellation stops the
// retry loop immediately.
func GenerateWithRetry(ctx context.Context, p Provider, request Request, maxRetries int) (*Response, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		start := time.Now()
		resp, err := p.Generate(ctx, request)
		observability.RecordProviderCall(p.Name(), time.Since(start), err == nil)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil || !IsRetryableError(err) {
			break
		}
	}

	return nil, lastErr
}
