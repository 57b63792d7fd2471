package unifiedllm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}
}

func serverErr() error {
	return &ServerError{ProviderError: ProviderError{SDKError: SDKError{Message: "server error"}, Retryable: true}}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 1.0, MaxDelay: 60.0, BackoffMultiplier: 2.0}
	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
}

func TestRetryPolicyDelayWithMaxCap(t *testing.T) {
	p := RetryPolicy{BaseDelay: 1.0, MaxDelay: 5.0, BackoffMultiplier: 2.0}
	assert.Equal(t, 5*time.Second, p.Delay(10))
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	p := RetryPolicy{BaseDelay: 1.0, MaxDelay: 60.0, BackoffMultiplier: 2.0, Jitter: true}
	for i := 0; i < 50; i++ {
		got := p.Delay(0)
		assert.GreaterOrEqual(t, got, 500*time.Millisecond)
		assert.LessOrEqual(t, got, 1500*time.Millisecond)
	}
}

func TestRetrySuccess(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", serverErr()
		}
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, calls)
}

func TestRetryNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &AuthenticationError{ProviderError: ProviderError{SDKError: SDKError{Message: "invalid key"}}}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", serverErr()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryRateLimitBeyondMaxDelay(t *testing.T) {
	after := 120.0
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{
			ProviderError: ProviderError{SDKError: SDKError{Message: "slow down"}, Retryable: true},
			RetryAfter:    &after,
		}
	})
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 1, calls)
}

func TestRetryCancelled(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: 1.0, BackoffMultiplier: 1, MaxDelay: 1.0}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	calls := 0
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("always fails")
	})
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.LessOrEqual(t, calls, 2)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 1.0, p.BaseDelay)
	assert.Equal(t, 60.0, p.MaxDelay)
	assert.Equal(t, 2.0, p.BackoffMultiplier)
	assert.True(t, p.Jitter)
}

func TestRetryMiddleware(t *testing.T) {
	calls := 0
	adapter := &funcAdapter{name: "p", complete: func(ctx context.Context, req Request) (*Response, error) {
		calls++
		if calls == 1 {
			return nil, serverErr()
		}
		return textResponse("recovered"), nil
	}}
	client := NewClient(WithProvider("p", adapter), WithMiddleware(RetryMiddleware(fastPolicy(2))))

	resp, err := client.CallAI(context.Background(), []Message{UserMessage("hi")}, ModelContext{ModelID: "m"}, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text())
	assert.Equal(t, 2, calls)
}
