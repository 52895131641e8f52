// Package shutdown runs cleanup hooks when the explorer is stopped.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/logger"
)

// Hook is a cleanup step such as draining the HTTP server or closing the
// state store.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	Logger  *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler cancels its context on the first signal and runs the registered
// hooks in reverse registration order.
type Handler struct {
	mu    sync.Mutex
	hooks []namedHook

	stopping atomic.Bool
	done     chan struct{}
	timeout  time.Duration
	errs     []error

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal
	log     *logger.Logger
}

// New creates a handler listening for cfg.Signals.
func New(cfg Config) *Handler {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = def.Signals
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
		log:     cfg.Logger.WithComponent("shutdown"),
	}

	signal.Notify(h.sigChan, cfg.Signals...)

	return h
}

// Register adds a named hook.
func (h *Handler) Register(name string, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: hook})
}

// RegisterCloser adds a hook that closes c.
func (h *Handler) RegisterCloser(name string, c interface{ Close() error }) {
	h.Register(name, func(context.Context) error { return c.Close() })
}

// Context is cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown reports whether shutdown has begun.
func (h *Handler) IsShuttingDown() bool {
	return h.stopping.Load()
}

// Done is closed once every hook has finished or timed out.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until a signal arrives or ctx is cancelled, then shuts down.
func (h *Handler) Wait(ctx context.Context) error {
	select {
	case sig := <-h.sigChan:
		h.log.WithField("signal", sig.String()).Info("Signal received")
	case <-ctx.Done():
	case <-h.ctx.Done():
		<-h.done
		return h.Err()
	}
	return h.Shutdown()
}

// Trigger simulates a termination signal.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown runs the hooks once. Later calls wait for the first run and
// return its result.
func (h *Handler) Shutdown() error {
	if !h.stopping.CompareAndSwap(false, true) {
		<-h.done
		return h.Err()
	}
	defer close(h.done)
	defer signal.Stop(h.sigChan)

	start := time.Now()
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]namedHook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := runHook(ctx, hooks[i]); err != nil {
			h.log.WithError(err).WithField("hook", hooks[i].name).Warn("Shutdown hook failed")
			errs = append(errs, err)
		}
	}

	h.mu.Lock()
	h.errs = errs
	h.mu.Unlock()

	h.log.WithDuration(time.Since(start)).WithField("failed", len(errs)).Info("Shutdown complete")
	return errors.Join(errs...)
}

// Err returns the joined hook errors of a completed shutdown.
func (h *Handler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return errors.Join(h.errs...)
}

func runHook(ctx context.Context, hook namedHook) error {
	done := make(chan error, 1)
	go func() {
		done <- hook.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{Hook: hook.name}
	}
}

// TimeoutError is returned when a hook outlives the shutdown timeout.
type TimeoutError struct {
	Hook string
}

func (e *TimeoutError) Error() string {
	return "shutdown hook timed out: " + e.Hook
}
