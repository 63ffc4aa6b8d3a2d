package engine

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

var (
	// ErrWaitingFailed is returned when the limiter wait is interrupted.
	ErrWaitingFailed = errors.New("limiter waiting failed")
	// ErrContextEnded is returned when the request's context expires
	// before or while waiting for a token.
	ErrContextEnded = errors.New("throttle context ended")
)

// throttle is an http.RoundTripper, using the time/rate token
// bucket limiter to restrict outbound calls.
type throttle struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

// newThrottle wraps next with a token bucket of rps tokens per second
// and the given burst capacity. Bounds are enforced by config
// validation before the engine is built.
func newThrottle(rps, burst int, next http.RoundTripper) http.RoundTripper {
	return &throttle{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		next:    next,
	}
}

func (t *throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return nil, fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return t.next.RoundTrip(r)
}
