// Package explorer is the public facade over the API directory: it owns the
// session catalog, the persisted favorites, history and chat transcript, and
// the question router.
package explorer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/ledger"
	"github.com/efiadm/api-categorizer-aggr/internal/llm"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
	"github.com/efiadm/api-categorizer-aggr/internal/randsrc"
	"github.com/efiadm/api-categorizer-aggr/internal/router"
	"github.com/efiadm/api-categorizer-aggr/internal/state"
	"github.com/efiadm/api-categorizer-aggr/internal/tester"
	"github.com/efiadm/api-categorizer-aggr/internal/transcript"
)

// Stage names used for facade errors.
const (
	StageChat   = "chat"
	StageLookup = "lookup"
)

// Exchange is one question and its answer as appended to the transcript.
type Exchange struct {
	Question       transcript.Message     `json:"question" yaml:"question"`
	Answer         transcript.Message     `json:"answer" yaml:"answer"`
	Classification *router.Classification `json:"classification,omitempty" yaml:"classification,omitempty"`
}

// Explorer is the API directory session.
type Explorer struct {
	config    *Config
	completer llm.Completer
	guard     *llm.Guard
	store     state.Store
	manager   *state.Manager
	rnd       randsrc.Source
	now       func() time.Time
	log       *logger.Logger
	metrics   *metrics.Collector

	generator  *catalog.Generator
	router     *router.Router
	tester     *tester.Runner
	favorites  *ledger.Favorites
	history    *ledger.History
	transcript *transcript.Transcript

	loadOnce sync.Once
	mu       sync.RWMutex
	result   catalog.Result
	apis     []catalog.API
	loaded   bool

	asking atomic.Bool
	closed atomic.Bool
}

// New creates an explorer with the given options. It opens the store and
// restores the persisted slots, but does not generate the catalog: call
// Load for that.
func New(opts ...Option) (*Explorer, error) {
	e := &Explorer{
		config: DefaultConfig(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Validate config
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if e.log == nil {
		logLevel := logger.InfoLevel
		if e.config.Debug {
			logLevel = logger.DebugLevel
		} else if !e.config.Verbose {
			logLevel = logger.WarnLevel
		}
		e.log = logger.New(logger.Config{
			Level:     logLevel,
			Pretty:    true,
			Component: "explorer",
		})
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.rnd == nil {
		if e.config.Catalog.Seed != 0 {
			e.rnd = randsrc.Seeded(e.config.Catalog.Seed)
		} else {
			e.rnd = randsrc.Default()
		}
	}

	if e.completer == nil {
		c, err := llm.New(e.config.clientConfig())
		if err != nil {
			e.log.WithError(err).Warn("Completion client unavailable, using fallbacks")
			c = llm.Unavailable{Reason: err.Error()}
		}
		e.completer = c
	}
	if u, ok := e.completer.(llm.Unavailable); ok {
		e.log.WithField("reason", u.Reason).Info("No completion service configured")
	}
	e.guard = llm.NewGuard(e.completer, e.config.guardConfig(), e.log, e.metrics)

	if e.store == nil {
		store, err := state.Open(e.config.State.Backend, e.config.State.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		e.store = store
	}
	e.manager = state.NewManager(e.store, e.log, e.metrics)

	e.favorites = ledger.NewFavorites(e.manager)
	e.history = ledger.NewHistory(e.manager, ledger.WithClock(e.now))
	e.transcript = transcript.New(e.manager, transcript.WithClock(e.now))

	e.generator = catalog.NewGenerator(e.guard,
		catalog.WithModel(e.config.LLM.CatalogModel),
		catalog.WithSize(e.config.Catalog.Size),
		catalog.WithRand(e.rnd),
		catalog.WithLogger(e.log),
		catalog.WithMetrics(e.metrics),
	)
	e.router = router.New(e.guard,
		router.WithModels(e.config.LLM.RouterModel, e.config.LLM.AnswerModel),
		router.WithLogger(e.log),
		router.WithMetrics(e.metrics),
	)
	e.tester = tester.New(
		tester.WithDelay(e.config.Tester.Delay),
		tester.WithRand(e.rnd),
		tester.WithClock(e.now),
		tester.WithLogger(e.log),
		tester.WithMetrics(e.metrics),
	)

	return e, nil
}

// =============================================================================
// Catalog
// =============================================================================

// Load generates the session catalog. It runs once; later calls return the
// first result. It never fails: on any generation failure the catalog is
// synthesized locally and Result.Source reports the fallback.
func (e *Explorer) Load(ctx context.Context) catalog.Result {
	e.loadOnce.Do(func() {
		res := e.generator.Generate(ctx)

		e.mu.Lock()
		e.result = res
		e.apis = res.APIs
		e.loaded = true
		e.mu.Unlock()
	})

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.result
}

// Loaded reports whether the catalog has been generated.
func (e *Explorer) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// Source tells whether the catalog was generated or synthesized.
func (e *Explorer) Source() catalog.Source {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.result.Source
}

func (e *Explorer) current() []catalog.API {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.apis
}

// APIs returns a copy of the catalog.
func (e *Explorer) APIs() []catalog.API {
	return append([]catalog.API(nil), e.current()...)
}

// Categories returns the category index.
func (e *Explorer) Categories() []catalog.CategoryCount {
	return catalog.Index(e.current())
}

// Search applies a browse query to the catalog.
func (e *Explorer) Search(q catalog.Query) []catalog.API {
	e.metrics.RecordSearch()
	return catalog.View(e.current(), q, e.favorites.Set(), e.visits())
}

func (e *Explorer) visits() []catalog.Visit {
	entries := e.history.Entries()
	visits := make([]catalog.Visit, len(entries))
	for i, entry := range entries {
		visits[i] = catalog.Visit{APIID: entry.APIID, Timestamp: entry.Timestamp}
	}
	return visits
}

// Lookup returns the entry with id.
func (e *Explorer) Lookup(id string) (catalog.API, error) {
	api, ok := catalog.Lookup(e.current(), id)
	if !ok {
		return catalog.API{}, errors.NewNotFoundError(StageLookup, id)
	}
	return api, nil
}

// =============================================================================
// Ledger
// =============================================================================

// Open returns the entry with id and records the view. A storage error is
// returned together with the entry: the view is kept in memory.
func (e *Explorer) Open(id string) (catalog.API, error) {
	api, err := e.Lookup(id)
	if err != nil {
		return api, err
	}
	e.metrics.RecordView()
	return api, e.history.Record(id)
}

// ToggleFavorite flips the favorite status of id and reports the new state.
// Ids need not be in the current catalog.
func (e *Explorer) ToggleFavorite(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.NewValidationError(StageLookup, "empty id")
	}
	e.metrics.RecordFavoriteToggle()
	return e.favorites.Toggle(id)
}

// IsFavorite reports whether id is favorited.
func (e *Explorer) IsFavorite(id string) bool {
	return e.favorites.Contains(id)
}

// FavoriteIDs returns the favorited ids in favoriting order.
func (e *Explorer) FavoriteIDs() []string {
	return e.favorites.IDs()
}

// Favorites returns the favorited catalog entries in catalog order.
func (e *Explorer) Favorites() []catalog.API {
	return catalog.View(e.current(), catalog.Query{Mode: catalog.ModeFavorites}, e.favorites.Set(), nil)
}

// History returns the view log, most recent first.
func (e *Explorer) History() []ledger.Entry {
	return e.history.Entries()
}

// RecentAPIs returns the viewed catalog entries, most recent first.
func (e *Explorer) RecentAPIs() []catalog.API {
	return catalog.View(e.current(), catalog.Query{Mode: catalog.ModeHistory}, nil, e.visits())
}

// =============================================================================
// Chat
// =============================================================================

// Ask answers question and appends both messages to the transcript. A blank
// question is ignored and returns nil, nil. Only one question may be in
// flight; a concurrent call fails with a Busy error. observe may be nil.
//
// Service failures never surface: the router falls back internally. The
// returned error is a cancellation of ctx, or a storage error that comes
// with a complete exchange. A cancelled question stays in the transcript
// without a reply.
func (e *Explorer) Ask(ctx context.Context, question string, observe router.Observer) (*Exchange, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}

	if !e.asking.CompareAndSwap(false, true) {
		e.metrics.RecordBusy()
		return nil, errors.NewBusyError(StageChat)
	}
	defer e.asking.Store(false)

	var storeErr error

	userMsg, err := e.transcript.Append(transcript.RoleUser, question, nil)
	if err != nil {
		storeErr = err
	}

	ans, err := e.router.Route(ctx, question, e.current(), observe)
	if err != nil {
		return nil, err
	}

	reply, err := e.transcript.Append(transcript.RoleAssistant, ans.Response, ans.Sources)
	if err != nil && storeErr == nil {
		storeErr = err
	}

	return &Exchange{
		Question:       userMsg,
		Answer:         reply,
		Classification: ans.Classification,
	}, storeErr
}

// Busy reports whether a question is in flight.
func (e *Explorer) Busy() bool {
	return e.asking.Load()
}

// Transcript returns the chat log in creation order.
func (e *Explorer) Transcript() []transcript.Message {
	return e.transcript.Messages()
}

// =============================================================================
// Testing
// =============================================================================

// TestAPI simulates a call to the entry with id.
func (e *Explorer) TestAPI(ctx context.Context, id string) (tester.Result, error) {
	api, err := e.Lookup(id)
	if err != nil {
		return tester.Result{}, err
	}
	return e.tester.Test(ctx, api)
}

// =============================================================================
// Lifecycle
// =============================================================================

// Config returns a copy of the configuration.
func (e *Explorer) Config() *Config {
	return e.config.Clone()
}

// Logger returns the explorer logger.
func (e *Explorer) Logger() *logger.Logger {
	return e.log
}

// Metrics returns the metrics collector.
func (e *Explorer) Metrics() *metrics.Collector {
	return e.metrics
}

// BreakerState returns the state of the completion service breaker.
func (e *Explorer) BreakerState() errors.CircuitState {
	return e.guard.Breaker().State()
}

// Stats summarizes the session metrics.
func (e *Explorer) Stats() map[string]interface{} {
	return e.metrics.Snapshot().Summary()
}

// Close logs the session statistics and releases the store. It is safe to
// call more than once.
func (e *Explorer) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.log.StatsEvent(e.Stats())
	return e.manager.Close()
}
