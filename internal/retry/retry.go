// Package retry wraps outbound HTTP calls with a rate-limit aware retry
// policy shared by every client in the service.
//
// Only responses the predicate marks as retryable (by default 429 Too Many
// Requests) are retried. Transport errors and every other status are handed
// back to the caller at once so it can tell "not found" from "server error".
package retry

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultAttempts is the total number of tries, the first one included.
const DefaultAttempts = 5

// Request issues one attempt. It is called again for every retry, so it must
// build a fresh *http.Request (and body) each time.
type Request func(ctx context.Context) (*http.Response, error)

// Predicate reports whether resp should be retried.
type Predicate func(resp *http.Response) bool

// TooManyRequests is the default predicate.
func TooManyRequests(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

// Executor runs requests under the retry policy. The zero value is not
// usable; build one with New.
type Executor struct {
	attempts  int
	retryable Predicate
	limiter   *rate.Limiter
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() float64
	logger    *slog.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithAttempts overrides the total number of attempts.
func WithAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// WithPredicate overrides which responses are retried.
func WithPredicate(p Predicate) Option {
	return func(e *Executor) {
		if p != nil {
			e.retryable = p
		}
	}
}

// WithLimiter paces every attempt through l.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// WithSleep replaces the backoff sleep. Tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithJitter replaces the [0,1) jitter source.
func WithJitter(fn func() float64) Option {
	return func(e *Executor) {
		if fn != nil {
			e.jitter = fn
		}
	}
}

// New builds an Executor with the default policy.
func New(log *slog.Logger, opts ...Option) *Executor {
	if log == nil {
		log = slog.Default()
	}
	e := &Executor{
		attempts:  DefaultAttempts,
		retryable: TooManyRequests,
		sleep:     sleepContext,
		jitter:    rand.Float64,
		logger:    log.With(slog.String("component", "retry")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewLimiter builds a token bucket for rps requests per second. rps <= 0
// means unlimited.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Backoff returns the delay before attempt n (n >= 2): 2^(n-2) seconds
// plus jitter seconds.
func Backoff(attempt int, jitter float64) time.Duration {
	if attempt < 2 {
		return 0
	}
	seconds := math.Pow(2, float64(attempt-2)) + jitter
	return time.Duration(seconds * float64(time.Second))
}

// Do runs req until it returns a non-retryable response, fails, or the
// attempts are used up. On exhaustion the last response is returned with a
// nil error; callers must inspect the status.
func (e *Executor) Do(ctx context.Context, req Request) (*http.Response, error) {
	var resp *http.Response
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if attempt > 1 {
			delay := Backoff(attempt, e.jitter())
			e.logger.Warn("rate limited, backing off",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			if err := e.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		var err error
		resp, err = req(ctx)
		if err != nil {
			return nil, err
		}
		if !e.retryable(resp) || attempt == e.attempts {
			return resp, nil
		}
		discard(resp)
	}
	return resp, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
