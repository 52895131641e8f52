// Package ratelimit paces calls to the generation service.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a global token bucket plus one bucket per model, so a burst of
// cheap routing calls cannot starve catalog generation of its own budget.
type Limiter struct {
	mu           sync.RWMutex
	limiter      *rate.Limiter
	perModel     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	minInterval  time.Duration
	lastCall     map[string]time.Time
	waits        int64
	rejected     int64
}

func toLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// NewLimiter creates a limiter allowing requestsPerSecond overall with the
// given burst. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(toLimit(requestsPerSecond), burst),
		perModel:     make(map[string]*rate.Limiter),
		defaultRate:  toLimit(requestsPerSecond),
		defaultBurst: burst,
		lastCall:     make(map[string]time.Time),
	}
}

// Wait blocks until a call is allowed by the global bucket or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// WaitModel blocks until a call to model is allowed by both the global and
// the model's bucket.
func (l *Limiter) WaitModel(ctx context.Context, model string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.waits++
	modelLimiter := l.modelLimiterLocked(model)

	if l.minInterval > 0 {
		if last, ok := l.lastCall[model]; ok {
			elapsed := time.Since(last)
			if elapsed < l.minInterval {
				l.mu.Unlock()
				timer := time.NewTimer(l.minInterval - elapsed)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
				l.mu.Lock()
			}
		}
		l.lastCall[model] = time.Now()
	}
	l.mu.Unlock()

	return modelLimiter.Wait(ctx)
}

func (l *Limiter) modelLimiterLocked(model string) *rate.Limiter {
	ml, ok := l.perModel[model]
	if !ok {
		ml = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.perModel[model] = ml
	}
	return ml
}

// Allow reports whether a call is allowed now without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// AllowModel reports whether a call to model is allowed now. A refused call
// is counted in Stats.
func (l *Limiter) AllowModel(model string) bool {
	if !l.limiter.Allow() {
		l.countRejected()
		return false
	}

	l.mu.Lock()
	ml := l.modelLimiterLocked(model)
	l.mu.Unlock()

	if !ml.Allow() {
		l.countRejected()
		return false
	}
	return true
}

func (l *Limiter) countRejected() {
	l.mu.Lock()
	l.rejected++
	l.mu.Unlock()
}

// SetModelRate sets a custom rate for one model.
func (l *Limiter) SetModelRate(model string, requestsPerSecond float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perModel[model] = rate.NewLimiter(toLimit(requestsPerSecond), burst)
}

// SetMinInterval sets the minimum spacing between two calls to the same model.
func (l *Limiter) SetMinInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minInterval = d
}

// SetRate updates the global rate. Models without a custom rate created after
// this call inherit it.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	l.limiter.SetLimit(toLimit(requestsPerSecond))
	l.limiter.SetBurst(burst)

	l.mu.Lock()
	l.defaultRate = toLimit(requestsPerSecond)
	l.defaultBurst = burst
	l.mu.Unlock()
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LimiterStats{
		ModelCount:   len(l.perModel),
		DefaultRate:  float64(l.defaultRate),
		DefaultBurst: l.defaultBurst,
		MinInterval:  l.minInterval,
		Waits:        l.waits,
		Rejected:     l.rejected,
	}
}

// LimiterStats contains limiter statistics.
type LimiterStats struct {
	ModelCount   int           `json:"model_count"`
	DefaultRate  float64       `json:"default_rate"`
	DefaultBurst int           `json:"default_burst"`
	MinInterval  time.Duration `json:"min_interval"`
	Waits        int64         `json:"waits"`
	Rejected     int64         `json:"rejected"`
}
