package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/logger"
)

const (
	// maxTransientRetries bounds automatic retries of transient
	// network errors.
	maxTransientRetries = 3

	// backoffBase is the first retry delay; each retry doubles it.
	backoffBase = 500 * time.Millisecond

	// backoffJitter is the relative jitter applied to each delay.
	backoffJitter = 0.2

	// defaultRetryAfter is the freeze window applied when a server
	// reports a rate limit without a usable retry hint.
	defaultRetryAfter = 60 * time.Second

	// defaultTimeout bounds one outbound call when a service has no
	// specific timeout configured.
	defaultTimeout = 10 * time.Second
)

// Config holds the budget for one external service.
type Config struct {
	// RequestsPerSecond is the sustained token refill rate.
	RequestsPerSecond float64

	// Burst is the bucket capacity.
	Burst int

	// Timeout bounds a single outbound call. Zero means the default.
	Timeout time.Duration
}

// DefaultConfigs provides conservative budgets per service. The Notion
// API documents 3 requests/second per integration; Discord allows 50
// requests/second per bot; the calendar default mirrors a conservative
// per-user quota.
var DefaultConfigs = map[string]Config{
	"notion":   {RequestsPerSecond: 3, Burst: 3},
	"discord":  {RequestsPerSecond: 50, Burst: 50},
	"calendar": {RequestsPerSecond: 5, Burst: 10},
}

// budget is the mutable rate state for one service. It is owned by the
// Client; adapters never touch it directly.
type budget struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	retryAt time.Time
	timeout time.Duration
}

// wait blocks until a token is available and any server-imposed freeze
// window has passed.
func (b *budget) wait(ctx context.Context) error {
	b.mu.Lock()
	retryAt := b.retryAt
	b.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(until):
		}
	}

	b.mu.Lock()
	bucket := b.bucket
	b.mu.Unlock()
	return bucket.Wait(ctx)
}

// freeze zeroes the local budget and blocks all callers until retryAt.
// Called when the server reports a rate limit: the server's view of the
// quota is authoritative.
func (b *budget) freeze(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Drain whatever tokens are left so callers queue behind the
	// freeze window instead of bursting the moment it lifts.
	b.bucket.AllowN(time.Now(), b.bucket.Burst())
	b.retryAt = time.Now().Add(d)
}

// setRate replaces the refill rate and burst, keeping the freeze window.
func (b *budget) setRate(perSecond float64, burst int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bucket = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Client executes outbound calls under per-service budgets.
type Client struct {
	mu      sync.RWMutex
	budgets map[string]*budget

	// backoff knobs, overridable in tests.
	base   time.Duration
	jitter float64
}

// NewClient creates a client with no budgets registered. Unknown
// services fall back to a conservative default budget.
func NewClient() *Client {
	return &Client{
		budgets: make(map[string]*budget),
		base:    backoffBase,
		jitter:  backoffJitter,
	}
}

// Register configures the budget for a service, replacing any existing
// one.
func (c *Client) Register(serviceID string, cfg Config) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budgets[serviceID] = &budget{
		bucket:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		timeout: timeout,
	}
}

// SetRate adjusts a registered service's refill rate and burst at
// runtime (config hot reload). No-op for unknown services.
func (c *Client) SetRate(serviceID string, perSecond float64, burst int) {
	c.mu.RLock()
	b, ok := c.budgets[serviceID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	b.setRate(perSecond, burst)
	logger.Debug("rate budget for %s set to %.1f/s burst %d", serviceID, perSecond, burst)
}

// budgetFor returns the budget for a service, creating a default one if
// the service was never registered.
func (c *Client) budgetFor(serviceID string) *budget {
	c.mu.RLock()
	b, ok := c.budgets[serviceID]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.budgets[serviceID]; ok {
		return b
	}
	cfg, ok := DefaultConfigs[serviceID]
	if !ok {
		cfg = Config{RequestsPerSecond: 5, Burst: 10}
	}
	logger.Warn("no rate budget registered for %s, using default %.1f/s", serviceID, cfg.RequestsPerSecond)
	b = &budget{
		bucket:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		timeout: defaultTimeout,
	}
	c.budgets[serviceID] = b
	return b
}

// Execute runs fn under the service's budget.
//
// Behaviour on errors from fn:
//   - *domain.RateLimitError: the budget is zeroed until the server's
//     retry hint and the call is retried exactly once.
//   - transient errors (domain.Transient): retried up to 3 times with
//     exponential backoff, base 500ms, factor 2, jitter ±20%.
//   - anything else: returned untouched.
//
// Each attempt runs under the service's per-call timeout; a timeout is
// treated as transient unless the caller's context expired.
func (c *Client) Execute(ctx context.Context, serviceID string, fn func(context.Context) error) error {
	b := c.budgetFor(serviceID)

	transientAttempts := 0
	rateLimitRetried := false

	for {
		if err := b.wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsTransient(err) {
			err = domain.Transient(err)
		}

		var rle *domain.RateLimitError
		if errors.As(err, &rle) {
			retryAfter := rle.RetryAfter
			if retryAfter <= 0 {
				retryAfter = defaultRetryAfter
			}
			b.freeze(retryAfter)
			if rateLimitRetried {
				return err
			}
			rateLimitRetried = true
			logger.Debug("%s reported rate limit, retrying once after %s", serviceID, retryAfter)
			continue
		}

		if domain.IsTransient(err) {
			if transientAttempts >= maxTransientRetries {
				return err
			}
			delay := c.backoff(transientAttempts)
			transientAttempts++
			logger.Debug("%s transient error (attempt %d): %v, retrying in %s",
				serviceID, transientAttempts, err, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		return err
	}
}

// backoff returns the delay before transient retry n (0-based):
// base * 2^n, jittered by ±jitter.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.base << uint(attempt)
	if c.jitter > 0 {
		factor := 1 - c.jitter + 2*c.jitter*rand.Float64()
		d = time.Duration(float64(d) * factor)
	}
	return d
}
