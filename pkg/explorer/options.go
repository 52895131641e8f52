package explorer

import (
	"fmt"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/llm"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
	"github.com/efiadm/api-categorizer-aggr/internal/randsrc"
	"github.com/efiadm/api-categorizer-aggr/internal/state"
)

// Option is a functional option for configuring the Explorer.
type Option func(*Explorer) error

// WithConfig replaces the whole configuration.
func WithConfig(config *Config) Option {
	return func(e *Explorer) error {
		if config == nil {
			return fmt.Errorf("config must not be nil")
		}
		e.config = config.Clone()
		return nil
	}
}

// WithCompleter sets the completion service. The explorer still wraps it
// with its timeout, limiter and breaker.
func WithCompleter(c llm.Completer) Option {
	return func(e *Explorer) error {
		e.completer = c
		return nil
	}
}

// WithStore sets the persistence backend. The explorer takes ownership and
// closes it on Close.
func WithStore(s state.Store) Option {
	return func(e *Explorer) error {
		e.store = s
		return nil
	}
}

// WithStateDir sets the store directory.
func WithStateDir(dir string) Option {
	return func(e *Explorer) error {
		e.config.State.Dir = dir
		return nil
	}
}

// WithStateBackend sets the store backend: bolt, file, gzip or memory.
func WithStateBackend(backend string) Option {
	return func(e *Explorer) error {
		e.config.State.Backend = backend
		return nil
	}
}

// WithRand sets the randomness source for fallback generation and tests.
func WithRand(rnd randsrc.Source) Option {
	return func(e *Explorer) error {
		e.rnd = rnd
		return nil
	}
}

// WithClock sets the time source for history, transcript and tests.
func WithClock(now func() time.Time) Option {
	return func(e *Explorer) error {
		e.now = now
		return nil
	}
}

// WithCatalogSize sets the number of catalog entries.
func WithCatalogSize(n int) Option {
	return func(e *Explorer) error {
		if n < 1 {
			n = 1
		}
		e.config.Catalog.Size = n
		return nil
	}
}

// WithTesterDelay sets the simulated round trip of API tests.
func WithTesterDelay(d time.Duration) Option {
	return func(e *Explorer) error {
		if d < 0 {
			d = 0
		}
		e.config.Tester.Delay = d
		return nil
	}
}

// WithLLMTimeout sets the per-call timeout.
func WithLLMTimeout(d time.Duration) Option {
	return func(e *Explorer) error {
		e.config.LLM.Timeout = d
		return nil
	}
}

// WithAPIKey sets the completion service key.
func WithAPIKey(key string) Option {
	return func(e *Explorer) error {
		e.config.LLM.APIKey = key
		return nil
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(e *Explorer) error {
		e.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) Option {
	return func(e *Explorer) error {
		e.config.Debug = debug
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Explorer) error {
		e.log = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Explorer) error {
		e.metrics = m
		return nil
	}
}
