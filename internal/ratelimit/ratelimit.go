// Package ratelimit throttles manual, user-initiated alert runs.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ogulcanaydogan/pulse/internal/clock"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// Limiter decides whether key may act now.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Memory is an in-process token bucket per key.
type Memory struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	clock    clock.Clock
	limiters map[string]*rate.Limiter
}

// NewMemory allows burst actions per key, refilling one every interval.
func NewMemory(interval time.Duration, burst int, clk clock.Clock) *Memory {
	if burst < 1 {
		burst = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Memory{
		limit:    rate.Every(interval),
		burst:    burst,
		clock:    clk,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("rate limiter key is empty")
	}

	m.mu.Lock()
	lim, ok := m.limiters[key]
	if !ok {
		lim = rate.NewLimiter(m.limit, m.burst)
		m.limiters[key] = lim
	}
	m.mu.Unlock()

	now := m.clock.Now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{}, errors.New("rate limiter burst is zero")
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}

// Redis shares the limit across processes through a GCRA bucket in Redis.
type Redis struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedis allows burst actions per key per interval.
func NewRedis(client *redis.Client, interval time.Duration, burst int) *Redis {
	if burst < 1 {
		burst = 1
	}
	return &Redis{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.Limit{Rate: 1, Burst: burst, Period: interval},
		prefix:  "pulse:manual-run:",
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("rate limiter key is empty")
	}
	res, err := r.limiter.Allow(ctx, r.prefix+key, r.limit)
	if err != nil {
		return Decision{}, err
	}
	if res.Allowed > 0 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: res.RetryAfter}, nil
}
