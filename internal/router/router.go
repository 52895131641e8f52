// Package router answers free-text questions from the catalog in two
// stages: classify the question into categories, select a bounded set of
// active APIs, then synthesize an answer grounded on them.
package router

import (
	"context"
	"strings"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/llm"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
)

// Stage names used in logs, metrics and errors.
const (
	StageClassify   = "classify"
	StageSynthesize = "synthesize"
)

// Selection limits.
const (
	MaxCategories = 3
	MaxSingle     = 3
	MaxMultiple   = 5
	FallbackCount = 3
)

// Apology replaces the answer when synthesis fails.
const Apology = "I'm having trouble processing your request right now. Please try rephrasing your question or try again in a moment."

// Phase is the router's progress through one question.
type Phase string

// Phases, in order.
const (
	PhaseIdle         Phase = "idle"
	PhaseRouting      Phase = "routing"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseDone         Phase = "done"
)

// Observer is notified of every phase change.
type Observer func(Phase)

// Classification is the decoded stage-one result.
type Classification struct {
	Categories    []string `json:"categories" yaml:"categories"`
	Reasoning     string   `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	NeedsMultiple bool     `json:"needsMultiple" yaml:"needsMultiple"`
}

// Answer is the router output. Response is never empty.
type Answer struct {
	Response       string          `json:"response" yaml:"response"`
	Sources        []catalog.API   `json:"apiSources" yaml:"apiSources"`
	Classification *Classification `json:"classification,omitempty" yaml:"classification,omitempty"`
}

// Router runs the question pipeline. It keeps no state between questions.
type Router struct {
	completer   llm.Completer
	routerModel string
	answerModel string
	categories  []string
	log         *logger.Logger
	metrics     *metrics.Collector
}

// Option configures a Router.
type Option func(*Router)

// WithModels sets the classification and answer models.
func WithModels(routerModel, answerModel string) Option {
	return func(r *Router) {
		if routerModel != "" {
			r.routerModel = routerModel
		}
		if answerModel != "" {
			r.answerModel = answerModel
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Router) { r.log = l.WithComponent("router") }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a Router.
func New(completer llm.Completer, opts ...Option) *Router {
	r := &Router{
		completer:   completer,
		routerModel: llm.DefaultRouterModel,
		answerModel: llm.DefaultAnswerModel,
		categories:  catalog.Categories,
		log:         logger.Nop(),
		metrics:     metrics.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.completer == nil {
		r.completer = llm.Unavailable{}
	}
	return r
}

// Classify maps question onto at most MaxCategories known categories.
// Labels outside the fixed list are dropped.
func (r *Router) Classify(ctx context.Context, question string) (*Classification, error) {
	text, err := r.completer.Complete(ctx, llm.Request{
		Stage:  StageClassify,
		Model:  r.routerModel,
		Prompt: classificationPrompt(question, r.categories),
		JSON:   true,
	})
	if err != nil {
		return nil, errors.Categorize(err, StageClassify)
	}

	var raw Classification
	if err := llm.DecodeObject(StageClassify, text, &raw); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(r.categories))
	for _, c := range r.categories {
		known[c] = true
	}

	out := &Classification{Reasoning: raw.Reasoning, NeedsMultiple: raw.NeedsMultiple}
	seen := make(map[string]bool)
	for _, label := range raw.Categories {
		label = strings.TrimSpace(label)
		if !known[label] || seen[label] {
			continue
		}
		seen[label] = true
		out.Categories = append(out.Categories, label)
		if len(out.Categories) == MaxCategories {
			break
		}
	}
	return out, nil
}

// Select picks the APIs an answer draws on. With a classification it takes
// active entries of the classified categories in catalog order, up to
// MaxMultiple when the question needs several sources and MaxSingle
// otherwise. When that yields nothing, or cls is nil, it takes the first
// FallbackCount active entries of the catalog. The result is empty only when
// the catalog has no active entries.
func Select(apis []catalog.API, cls *Classification) []catalog.API {
	if cls != nil && len(cls.Categories) > 0 {
		limit := MaxSingle
		if cls.NeedsMultiple {
			limit = MaxMultiple
		}

		wanted := make(map[string]bool, len(cls.Categories))
		for _, c := range cls.Categories {
			wanted[c] = true
		}

		selected := make([]catalog.API, 0, limit)
		for _, api := range apis {
			if len(selected) == limit {
				break
			}
			if wanted[api.Category] && api.IsActive() {
				selected = append(selected, api)
			}
		}
		if len(selected) > 0 {
			return selected
		}
	}

	return firstActive(apis, FallbackCount)
}

func firstActive(apis []catalog.API, n int) []catalog.API {
	out := make([]catalog.API, 0, n)
	for _, api := range apis {
		if len(out) == n {
			break
		}
		if api.IsActive() {
			out = append(out, api)
		}
	}
	return out
}

// Synthesize asks for a short answer to question grounded on apis. An empty
// completion is a Validation error.
func (r *Router) Synthesize(ctx context.Context, question string, apis []catalog.API) (string, error) {
	text, err := r.completer.Complete(ctx, llm.Request{
		Stage:  StageSynthesize,
		Model:  r.answerModel,
		Prompt: answerPrompt(question, apis),
	})
	if err != nil {
		return "", errors.Categorize(err, StageSynthesize)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.NewValidationError(StageSynthesize, "empty answer")
	}
	return text, nil
}

// Route answers question from apis. Service failures never surface: a
// failed classification falls back to the default selection and a failed
// synthesis yields Apology with no sources. The only error is cancellation
// of ctx.
func (r *Router) Route(ctx context.Context, question string, apis []catalog.API, observe Observer) (Answer, error) {
	notify := func(p Phase) {
		if observe != nil {
			observe(p)
		}
	}
	defer notify(PhaseDone)

	r.metrics.RecordQuestion()
	notify(PhaseRouting)

	cls, err := r.Classify(ctx, question)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return Answer{}, errors.Categorize(cerr, StageClassify)
		}
		r.log.FallbackEvent(StageClassify, errors.GetType(err).String(), err)
		r.metrics.RecordFallback(StageClassify)
		cls = nil
	}

	selected := Select(apis, cls)
	r.log.WithFields(map[string]interface{}{
		"selected":   len(selected),
		"classified": cls != nil,
	}).Debug("Selected sources")

	notify(PhaseSynthesizing)

	response, err := r.Synthesize(ctx, question, selected)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return Answer{}, errors.Categorize(cerr, StageSynthesize)
		}
		r.log.FallbackEvent(StageSynthesize, errors.GetType(err).String(), err)
		r.metrics.RecordFallback(StageSynthesize)
		return Answer{Response: Apology, Sources: []catalog.API{}, Classification: cls}, nil
	}

	return Answer{Response: response, Sources: selected, Classification: cls}, nil
}
