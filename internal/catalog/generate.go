package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/llm"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
	"github.com/efiadm/api-categorizer-aggr/internal/randsrc"
)

// Stage is the stage name used in logs, metrics and errors.
const Stage = "catalog"

// Source tells where a catalog came from.
type Source string

// Catalog sources.
const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Result is the outcome of one generation.
type Result struct {
	APIs   []API  `json:"apis"`
	Source Source `json:"source"`
	// Invalid counts generated entries dropped by validation.
	Invalid int `json:"invalid"`
	// Failure holds the categorized reason for a fallback, if any.
	Failure error `json:"-"`
}

// Generator produces the session catalog.
type Generator struct {
	completer  llm.Completer
	model      string
	size       int
	categories []string
	rnd        randsrc.Source
	log        *logger.Logger
	metrics    *metrics.Collector
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithModel sets the completion model.
func WithModel(model string) GeneratorOption {
	return func(g *Generator) { g.model = model }
}

// WithSize sets the number of entries requested.
func WithSize(n int) GeneratorOption {
	return func(g *Generator) { g.size = n }
}

// WithRand sets the randomness source of the fallback generator.
func WithRand(rnd randsrc.Source) GeneratorOption {
	return func(g *Generator) { g.rnd = rnd }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) GeneratorOption {
	return func(g *Generator) { g.log = l.WithComponent("catalog") }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a generator that asks completer for the catalog.
func NewGenerator(completer llm.Completer, opts ...GeneratorOption) *Generator {
	g := &Generator{
		completer:  completer,
		model:      llm.DefaultCatalogModel,
		size:       DefaultSize,
		categories: Categories,
		rnd:        randsrc.Default(),
		log:        logger.Nop(),
		metrics:    metrics.New(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.size <= 0 {
		g.size = DefaultSize
	}
	return g
}

// Generate returns the session catalog. It never fails: any service,
// parse or validation failure yields the fallback catalog.
func (g *Generator) Generate(ctx context.Context) Result {
	res, err := g.generate(ctx)
	if err != nil {
		kind := errors.GetType(err)
		g.log.FallbackEvent(Stage, kind.String(), err)
		g.metrics.RecordFallback(Stage)

		res = Result{
			APIs:    Fallback(g.rnd, g.size, g.categories),
			Source:  SourceFallback,
			Invalid: res.Invalid,
			Failure: err,
		}
	}

	g.metrics.RecordCatalog(len(res.APIs), res.Invalid)
	g.log.WithFields(map[string]interface{}{
		"source":  string(res.Source),
		"size":    len(res.APIs),
		"invalid": res.Invalid,
	}).Info("Catalog ready")

	return res
}

func (g *Generator) generate(ctx context.Context) (Result, error) {
	if g.completer == nil {
		return Result{}, errors.NewUnavailableError(Stage, "no completer")
	}

	text, err := g.completer.Complete(ctx, llm.Request{
		Stage:  Stage,
		Model:  g.model,
		Prompt: BuildPrompt(g.size, g.categories),
		JSON:   true,
	})
	if err != nil {
		return Result{}, errors.Categorize(err, Stage)
	}

	apis, invalid, err := Parse(text)
	if err != nil {
		return Result{Invalid: invalid}, err
	}

	return Result{APIs: apis, Source: SourceGenerated, Invalid: invalid}, nil
}

type envelope struct {
	APIs []json.RawMessage `json:"apis"`
}

type rawAPI struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Endpoint      string `json:"endpoint"`
	Method        string `json:"method"`
	AuthRequired  bool   `json:"authRequired"`
	Status        string `json:"status"`
	RateLimit     string `json:"rateLimit"`
	Documentation string `json:"documentation"`
}

// Parse decodes and validates a catalog completion. Entries that fail
// validation or repeat an earlier id are dropped and counted. A body with no
// valid entries is a Validation error.
func Parse(text string) ([]API, int, error) {
	var env envelope
	if err := llm.DecodeObject(Stage, text, &env); err != nil {
		return nil, 0, err
	}

	apis := make([]API, 0, len(env.APIs))
	seen := make(map[string]struct{}, len(env.APIs))
	invalid := 0

	for _, raw := range env.APIs {
		var r rawAPI
		if err := json.Unmarshal(raw, &r); err != nil {
			invalid++
			continue
		}

		api, ok := r.validate()
		if !ok {
			invalid++
			continue
		}
		if _, dup := seen[api.ID]; dup {
			invalid++
			continue
		}
		seen[api.ID] = struct{}{}
		apis = append(apis, api)
	}

	if len(apis) == 0 {
		return nil, invalid, errors.NewValidationError(Stage,
			fmt.Sprintf("no valid entries (%d rejected)", invalid))
	}
	return apis, invalid, nil
}

func (r rawAPI) validate() (API, bool) {
	api := API{
		ID:            strings.TrimSpace(r.ID),
		Name:          strings.TrimSpace(r.Name),
		Description:   strings.TrimSpace(r.Description),
		Category:      strings.TrimSpace(r.Category),
		Endpoint:      strings.TrimSpace(r.Endpoint),
		AuthRequired:  r.AuthRequired,
		RateLimit:     strings.TrimSpace(r.RateLimit),
		Documentation: strings.TrimSpace(r.Documentation),
	}
	if api.ID == "" || api.Name == "" || api.Category == "" || api.Endpoint == "" {
		return API{}, false
	}

	method, ok := ParseMethod(r.Method)
	if !ok {
		return API{}, false
	}
	status, ok := ParseStatus(r.Status)
	if !ok {
		return API{}, false
	}
	api.Method = method
	api.Status = status

	return api, true
}
