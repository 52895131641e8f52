// Package tester simulates calling a catalogued API. No network traffic is
// generated: the outcome is drawn from the injected randomness source.
package tester

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
	"github.com/efiadm/api-categorizer-aggr/internal/randsrc"
)

// Stage is the stage name used in logs and errors.
const Stage = "test"

// DefaultDelay is the simulated round trip.
const DefaultDelay = time.Second

// SuccessThreshold is the draw a test must exceed to succeed.
const SuccessThreshold = 0.3

// Payload messages.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	MessageSuccess = "API response received successfully"
	MessageFailure = "Failed to connect to API"
	FailureDetail  = "Network timeout or authentication failure"
)

// timestampLayout matches millisecond UTC timestamps.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// PayloadData is the body of a successful response.
type PayloadData struct {
	Timestamp string         `json:"timestamp" yaml:"timestamp"`
	Endpoint  string         `json:"endpoint" yaml:"endpoint"`
	Method    catalog.Method `json:"method" yaml:"method"`
}

// Payload is the simulated response document.
type Payload struct {
	Status  string       `json:"status" yaml:"status"`
	Message string       `json:"message" yaml:"message"`
	Data    *PayloadData `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of one simulated call.
type Result struct {
	RequestID string        `json:"requestId" yaml:"requestId"`
	APIID     string        `json:"apiId" yaml:"apiId"`
	Success   bool          `json:"success" yaml:"success"`
	Payload   Payload       `json:"payload" yaml:"payload"`
	Body      string        `json:"body" yaml:"body"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Runner executes simulated tests.
type Runner struct {
	delay   time.Duration
	rnd     randsrc.Source
	now     func() time.Time
	log     *logger.Logger
	metrics *metrics.Collector
}

// Option configures a Runner.
type Option func(*Runner)

// WithDelay sets the simulated round trip. Zero disables the wait.
func WithDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithRand sets the randomness source.
func WithRand(rnd randsrc.Source) Option {
	return func(r *Runner) { r.rnd = rnd }
}

// WithClock sets the time source for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) { r.log = l.WithComponent("tester") }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		delay:   DefaultDelay,
		rnd:     randsrc.Default(),
		now:     time.Now,
		log:     logger.Nop(),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Test simulates a call to api. The only error is cancellation of ctx
// during the wait.
func (r *Runner) Test(ctx context.Context, api catalog.API) (Result, error) {
	start := time.Now()

	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, errors.Categorize(ctx.Err(), Stage)
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, errors.Categorize(err, Stage)
	}

	success := r.rnd.Float64() > SuccessThreshold
	payload := failurePayload()
	if success {
		payload = Payload{
			Status:  StatusSuccess,
			Message: MessageSuccess,
			Data: &PayloadData{
				Timestamp: r.now().UTC().Format(timestampLayout),
				Endpoint:  api.Endpoint,
				Method:    api.Method,
			},
		}
	}

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Result{}, errors.New(errors.Unknown, Stage, "encode payload", err)
	}

	res := Result{
		RequestID: uuid.NewString(),
		APIID:     api.ID,
		Success:   success,
		Payload:   payload,
		Body:      string(body),
		Duration:  time.Since(start),
	}

	r.metrics.RecordTest(success)
	r.log.WithFields(map[string]interface{}{
		"api_id":     api.ID,
		"request_id": res.RequestID,
		"success":    success,
	}).Debug("API test finished")

	return res, nil
}

func failurePayload() Payload {
	return Payload{
		Status:  StatusError,
		Message: MessageFailure,
		Error:   FailureDetail,
	}
}
