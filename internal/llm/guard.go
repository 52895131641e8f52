package llm

import (
	"context"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
	"github.com/efiadm/api-categorizer-aggr/internal/ratelimit"
)

// GuardConfig bounds calls made through a Guard.
type GuardConfig struct {
	Timeout           time.Duration               `json:"timeout" yaml:"timeout"`
	RequestsPerSecond float64                     `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int                         `json:"burst" yaml:"burst"`
	Breaker           errors.CircuitBreakerConfig `json:"breaker" yaml:"breaker"`
}

// DefaultGuardConfig returns sensible defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		Breaker:           errors.DefaultCircuitBreakerConfig(),
	}
}

// Guard wraps a Completer with a per-call deadline, rate limiting, a circuit
// breaker, metrics and logging. Every error it returns is an *errors.Error.
type Guard struct {
	next    Completer
	cfg     GuardConfig
	limiter *ratelimit.Limiter
	breaker *errors.CircuitBreaker
	metrics *metrics.Collector
	log     *logger.Logger
}

// NewGuard creates a Guard around next. Nil collaborators are replaced by
// private defaults.
func NewGuard(next Completer, cfg GuardConfig, log *logger.Logger, m *metrics.Collector) *Guard {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}

	g := &Guard{
		next:    next,
		cfg:     cfg,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		breaker: errors.NewCircuitBreaker(cfg.Breaker),
		metrics: m,
		log:     log.WithComponent("llm"),
	}

	g.breaker.OnStateChange(func(from, to errors.CircuitState) {
		if to == errors.Open {
			m.RecordBreakerOpen()
		}
		g.log.WithFields(map[string]interface{}{
			"from": from.String(),
			"to":   to.String(),
		}).Warn("Completion circuit breaker changed state")
	})

	return g
}

// Breaker returns the guard's circuit breaker.
func (g *Guard) Breaker() *errors.CircuitBreaker {
	return g.breaker
}

// Limiter returns the guard's rate limiter.
func (g *Guard) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// Complete implements Completer.
func (g *Guard) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Categorize(err, req.Stage)
	}

	if _, ok := g.next.(Unavailable); ok {
		_, err := g.next.Complete(ctx, req)
		return "", err
	}

	if err := g.limiter.WaitModel(ctx, req.Model); err != nil {
		if ctx.Err() != nil {
			return "", errors.Categorize(ctx.Err(), req.Stage)
		}
		// The bucket cannot refill before the caller's deadline.
		return "", errors.New(errors.RateLimit, req.Stage, "rate limited", err)
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	var text string
	start := time.Now()
	g.metrics.RecordLLMRequest(req.Stage)

	err := g.breaker.Execute(callCtx, func(ctx context.Context) error {
		var callErr error
		text, callErr = g.next.Complete(ctx, req)
		return callErr
	})

	elapsed := time.Since(start)
	g.metrics.RecordLLMResult(req.Stage, elapsed, err)
	g.log.CallEvent(req.Stage, req.Model, elapsed, err)

	if err != nil {
		if ctx.Err() == context.Canceled {
			return "", errors.NewCancelledError(req.Stage)
		}
		return "", errors.Categorize(err, req.Stage)
	}
	return text, nil
}
