package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound model requests. It is shared by every task so
// the configured requests-per-second holds across the whole process.
type RateLimiter struct {
	limiter *rate.Limiter

	mu            sync.Mutex
	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RequestsPerSecond float64       `json:"requests_per_second"`
	Unlimited         bool          `json:"unlimited,omitempty"`
	TokensAvailable   float64       `json:"tokens_available"`
	TotalConsumed     int64         `json:"total_consumed"`
	TotalWaited       time.Duration `json:"total_waited"`
	Last429Time       time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter allowing rps requests per second.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(toLimit(rps), 1)}
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// Wait blocks until a request may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.totalConsumed++
	r.totalWaited += time.Since(start)
	r.mu.Unlock()
	return nil
}

// SetLimit changes the rate at runtime.
func (r *RateLimiter) SetLimit(rps float64) {
	r.limiter.SetLimit(toLimit(rps))
}

// Record429 drains the bucket after an upstream rate-limit answer.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	r.last429Time = time.Now()
	r.mu.Unlock()
	if retryAfter > 0 {
		r.limiter.ReserveN(time.Now(), 1)
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := RateLimiterStatus{
		TotalConsumed: r.totalConsumed,
		TotalWaited:   r.totalWaited,
		Last429Time:   r.last429Time,
	}
	// Inf is not representable in JSON.
	if limit := r.limiter.Limit(); limit == rate.Inf {
		st.Unlimited = true
	} else {
		st.RequestsPerSecond = float64(limit)
		st.TokensAvailable = r.limiter.Tokens()
	}
	return st
}

// limitedClient paces another client through a RateLimiter.
type limitedClient struct {
	limiter *RateLimiter
	client  LLMClient
}

// NewLimitedClient wraps c so every Chat waits on l first.
func NewLimitedClient(l *RateLimiter, c LLMClient) LLMClient {
	if l == nil {
		return c
	}
	return &limitedClient{limiter: l, client: c}
}

func (c *limitedClient) Name() string { return c.client.Name() }

func (c *limitedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return &ChatResult{Provider: c.client.Name(), ErrorType: "context_cancelled", ErrorMessage: err.Error()}, err
	}
	queued := time.Since(start)
	result, err := c.client.Chat(ctx, req)
	if result != nil {
		result.QueueTime = queued
	}
	if rle, ok := IsRateLimitError(err); ok {
		c.limiter.Record429(rle.RetryAfter)
	}
	return result, err
}
