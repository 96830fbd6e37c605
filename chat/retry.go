package chat

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/rlmkit/rlm/model"
)

// RetryConfig bounds the exponential backoff applied around a Transport
// call. Retries only ever cover transient provider failures: rate limiting
// and upstream unavailability, never a request the provider has rejected
// as malformed.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig matches the provider's documented recommendation for
// 429/502/503/504 responses: five attempts, starting at one second and
// doubling up to a one-minute ceiling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   1000 * time.Millisecond,
		MaxDelay:    60000 * time.Millisecond,
		Multiplier:  2,
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isRetryableError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.StatusCode)
	}
	return false
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// RetryMiddleware wraps a CallHandler with the retry contract above. It is a
// model.CallMiddleware[Request, Response] so it composes through
// model.MiddlewareManager exactly like any other cross-cutting concern.
func RetryMiddleware(cfg RetryConfig) model.CallMiddleware[Request, Response] {
	return func(next model.CallHandler[Request, Response]) model.CallHandler[Request, Response] {
		return model.CallHandlerFunc[Request, Response](func(ctx context.Context, req Request) (Response, error) {
			var lastErr error
			for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
				resp, err := next.Call(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if !isRetryableError(err) {
					return Response{}, err
				}
				if attempt == cfg.MaxAttempts-1 {
					break
				}
				select {
				case <-ctx.Done():
					return Response{}, ctx.Err()
				case <-time.After(cfg.delay(attempt)):
				}
			}
			return Response{}, lastErr
		})
	}
}
