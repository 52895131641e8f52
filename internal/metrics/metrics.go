// Package metrics provides metrics collection for the API explorer.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "apiexplorer"

// latencyBounds are the upper bounds, in milliseconds, of the completion
// latency histogram. A final implicit bucket holds everything above.
var latencyBounds = [...]int64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

const latencyBucketCount = len(latencyBounds) + 1

// Collector collects and aggregates metrics. It implements
// prometheus.Collector so it can be registered on any registry.
type Collector struct {
	// Counters
	questionsTotal   atomic.Int64
	searchesTotal    atomic.Int64
	viewsTotal       atomic.Int64
	favoriteToggles  atomic.Int64
	testsTotal       atomic.Int64
	testSuccesses    atomic.Int64
	catalogLoads     atomic.Int64
	catalogSize      atomic.Int64
	invalidEntries   atomic.Int64
	storageErrors    atomic.Int64
	busyRejections   atomic.Int64
	breakerOpenTotal atomic.Int64

	// Gauges
	inFlight atomic.Int64

	// Completion latency tracking
	latencySumMs  atomic.Int64
	latencyNum    atomic.Int64
	latencyBucket [latencyBucketCount]atomic.Int64

	// Per-stage completion calls and failures
	llmRequests map[string]*atomic.Int64
	llmFailures map[string]*atomic.Int64
	llmMu       sync.RWMutex

	// Fallbacks by stage
	fallbacks  map[string]*atomic.Int64
	fallbackMu sync.RWMutex

	// HTTP requests by method/path/status
	httpRequests map[httpKey]*atomic.Int64
	httpMu       sync.RWMutex

	startTime time.Time

	descs collectorDescs
}

type httpKey struct {
	method string
	path   string
	status string
}

type collectorDescs struct {
	questions, searches, views, toggles  *prometheus.Desc
	tests, testSuccesses, catalogLoads   *prometheus.Desc
	catalogSize, invalidEntries, storage *prometheus.Desc
	busy, breakerOpen, inFlight          *prometheus.Desc
	llmRequests, llmFailures, fallbacks  *prometheus.Desc
	latency, httpRequests, uptime        *prometheus.Desc
}

func newDescs() collectorDescs {
	d := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return collectorDescs{
		questions:      d("questions_total", "Chat questions routed"),
		searches:       d("searches_total", "Catalog searches served"),
		views:          d("views_total", "API detail views recorded"),
		toggles:        d("favorite_toggles_total", "Favorite toggles"),
		tests:          d("tests_total", "Mock API tests run"),
		testSuccesses:  d("test_successes_total", "Mock API tests that reported success"),
		catalogLoads:   d("catalog_loads_total", "Catalog generations"),
		catalogSize:    d("catalog_size", "Entries in the current catalog"),
		invalidEntries: d("catalog_invalid_entries_total", "Generated entries dropped by validation"),
		storage:        d("storage_errors_total", "Local store failures"),
		busy:           d("chat_busy_total", "Chat submissions rejected while another was in flight"),
		breakerOpen:    d("breaker_open_total", "Times the completion circuit breaker opened"),
		inFlight:       d("llm_in_flight", "Completion calls in progress"),
		llmRequests:    d("llm_requests_total", "Completion calls by stage", "stage"),
		llmFailures:    d("llm_failures_total", "Failed completion calls by stage", "stage"),
		fallbacks:      d("fallbacks_total", "Stage fallbacks taken", "stage"),
		latency:        d("llm_latency_seconds", "Completion call latency"),
		httpRequests:   d("http_requests_total", "HTTP requests", "method", "path", "status"),
		uptime:         d("uptime_seconds", "Seconds since the collector started"),
	}
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		llmRequests:  make(map[string]*atomic.Int64),
		llmFailures:  make(map[string]*atomic.Int64),
		fallbacks:    make(map[string]*atomic.Int64),
		httpRequests: make(map[httpKey]*atomic.Int64),
		startTime:    time.Now(),
		descs:        newDescs(),
	}
}

func incr(mu *sync.RWMutex, m map[string]*atomic.Int64, key string) {
	mu.RLock()
	c := m[key]
	mu.RUnlock()
	if c == nil {
		mu.Lock()
		if c = m[key]; c == nil {
			c = &atomic.Int64{}
			m[key] = c
		}
		mu.Unlock()
	}
	c.Add(1)
}

func copyCounts(mu *sync.RWMutex, m map[string]*atomic.Int64) map[string]int64 {
	out := make(map[string]int64)
	mu.RLock()
	for k, v := range m {
		out[k] = v.Load()
	}
	mu.RUnlock()
	return out
}

// RecordLLMRequest records the start of a completion call for stage.
func (c *Collector) RecordLLMRequest(stage string) {
	incr(&c.llmMu, c.llmRequests, stage)
	c.inFlight.Add(1)
}

// RecordLLMResult records the end of a completion call.
func (c *Collector) RecordLLMResult(stage string, d time.Duration, err error) {
	c.inFlight.Add(-1)
	if err != nil {
		incr(&c.llmMu, c.llmFailures, stage)
	}

	ms := d.Milliseconds()
	c.latencySumMs.Add(ms)
	c.latencyNum.Add(1)
	c.latencyBucket[bucketFor(ms)].Add(1)
}

func bucketFor(ms int64) int {
	for i, bound := range latencyBounds {
		if ms < bound {
			return i
		}
	}
	return len(latencyBounds)
}

// RecordFallback records that stage replaced its result with a fallback.
func (c *Collector) RecordFallback(stage string) {
	incr(&c.fallbackMu, c.fallbacks, stage)
}

// RecordQuestion increments routed questions.
func (c *Collector) RecordQuestion() {
	c.questionsTotal.Add(1)
}

// RecordSearch increments served searches.
func (c *Collector) RecordSearch() {
	c.searchesTotal.Add(1)
}

// RecordView increments recorded views.
func (c *Collector) RecordView() {
	c.viewsTotal.Add(1)
}

// RecordFavoriteToggle increments favorite toggles.
func (c *Collector) RecordFavoriteToggle() {
	c.favoriteToggles.Add(1)
}

// RecordTest records one mock test run.
func (c *Collector) RecordTest(success bool) {
	c.testsTotal.Add(1)
	if success {
		c.testSuccesses.Add(1)
	}
}

// RecordCatalog records a catalog generation with its final size and the
// number of entries dropped by validation.
func (c *Collector) RecordCatalog(size, invalid int) {
	c.catalogLoads.Add(1)
	c.catalogSize.Store(int64(size))
	c.invalidEntries.Add(int64(invalid))
}

// RecordStorageError increments local store failures.
func (c *Collector) RecordStorageError() {
	c.storageErrors.Add(1)
}

// RecordBusy increments rejected overlapping chat submissions.
func (c *Collector) RecordBusy() {
	c.busyRejections.Add(1)
}

// RecordBreakerOpen increments circuit breaker trips.
func (c *Collector) RecordBreakerOpen() {
	c.breakerOpenTotal.Add(1)
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path, status string) {
	key := httpKey{method: method, path: path, status: status}
	c.httpMu.RLock()
	n := c.httpRequests[key]
	c.httpMu.RUnlock()
	if n == nil {
		c.httpMu.Lock()
		if n = c.httpRequests[key]; n == nil {
			n = &atomic.Int64{}
			c.httpRequests[key] = n
		}
		c.httpMu.Unlock()
	}
	n.Add(1)
}

// AverageLatency returns the mean completion latency.
func (c *Collector) AverageLatency() time.Duration {
	num := c.latencyNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(c.latencySumMs.Load()/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:       time.Now(),
		Uptime:          time.Since(c.startTime),
		Questions:       c.questionsTotal.Load(),
		Searches:        c.searchesTotal.Load(),
		Views:           c.viewsTotal.Load(),
		FavoriteToggles: c.favoriteToggles.Load(),
		Tests:           c.testsTotal.Load(),
		TestSuccesses:   c.testSuccesses.Load(),
		CatalogLoads:    c.catalogLoads.Load(),
		CatalogSize:     c.catalogSize.Load(),
		InvalidEntries:  c.invalidEntries.Load(),
		StorageErrors:   c.storageErrors.Load(),
		BusyRejections:  c.busyRejections.Load(),
		BreakerOpens:    c.breakerOpenTotal.Load(),
		InFlight:        c.inFlight.Load(),
		AverageLatency:  c.AverageLatency(),
		LLMRequests:     copyCounts(&c.llmMu, c.llmRequests),
		LLMFailures:     copyCounts(&c.llmMu, c.llmFailures),
		Fallbacks:       copyCounts(&c.fallbackMu, c.fallbacks),
		LatencyHist:     make([]int64, latencyBucketCount),
	}

	for i := range c.latencyBucket {
		s.LatencyHist[i] = c.latencyBucket[i].Load()
	}

	return s
}

// Reset resets all metrics.
func (c *Collector) Reset() {
	for _, n := range []*atomic.Int64{
		&c.questionsTotal, &c.searchesTotal, &c.viewsTotal, &c.favoriteToggles,
		&c.testsTotal, &c.testSuccesses, &c.catalogLoads, &c.catalogSize,
		&c.invalidEntries, &c.storageErrors, &c.busyRejections, &c.breakerOpenTotal,
		&c.inFlight, &c.latencySumMs, &c.latencyNum,
	} {
		n.Store(0)
	}
	for i := range c.latencyBucket {
		c.latencyBucket[i].Store(0)
	}

	c.llmMu.Lock()
	c.llmRequests = make(map[string]*atomic.Int64)
	c.llmFailures = make(map[string]*atomic.Int64)
	c.llmMu.Unlock()

	c.fallbackMu.Lock()
	c.fallbacks = make(map[string]*atomic.Int64)
	c.fallbackMu.Unlock()

	c.httpMu.Lock()
	c.httpRequests = make(map[httpKey]*atomic.Int64)
	c.httpMu.Unlock()

	c.startTime = time.Now()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	d := c.descs
	for _, desc := range []*prometheus.Desc{
		d.questions, d.searches, d.views, d.toggles, d.tests, d.testSuccesses,
		d.catalogLoads, d.catalogSize, d.invalidEntries, d.storage, d.busy,
		d.breakerOpen, d.inFlight, d.llmRequests, d.llmFailures, d.fallbacks,
		d.latency, d.httpRequests, d.uptime,
	} {
		ch <- desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	d := c.descs
	s := c.Snapshot()

	counter := func(desc *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(desc *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v)
	}

	counter(d.questions, s.Questions)
	counter(d.searches, s.Searches)
	counter(d.views, s.Views)
	counter(d.toggles, s.FavoriteToggles)
	counter(d.tests, s.Tests)
	counter(d.testSuccesses, s.TestSuccesses)
	counter(d.catalogLoads, s.CatalogLoads)
	counter(d.invalidEntries, s.InvalidEntries)
	counter(d.storage, s.StorageErrors)
	counter(d.busy, s.BusyRejections)
	counter(d.breakerOpen, s.BreakerOpens)
	gauge(d.catalogSize, float64(s.CatalogSize))
	gauge(d.inFlight, float64(s.InFlight))
	gauge(d.uptime, s.Uptime.Seconds())

	for _, stage := range sortedKeys(s.LLMRequests) {
		counter(d.llmRequests, s.LLMRequests[stage], stage)
	}
	for _, stage := range sortedKeys(s.LLMFailures) {
		counter(d.llmFailures, s.LLMFailures[stage], stage)
	}
	for _, stage := range sortedKeys(s.Fallbacks) {
		counter(d.fallbacks, s.Fallbacks[stage], stage)
	}

	buckets := make(map[float64]uint64, len(latencyBounds))
	var cumulative uint64
	for i, bound := range latencyBounds {
		cumulative += uint64(s.LatencyHist[i])
		buckets[float64(bound)/1000] = cumulative
	}
	count := cumulative + uint64(s.LatencyHist[len(latencyBounds)])
	sum := float64(c.latencySumMs.Load()) / 1000
	ch <- prometheus.MustNewConstHistogram(d.latency, count, sum, buckets)

	c.httpMu.RLock()
	for k, v := range c.httpRequests {
		counter(d.httpRequests, v.Load(), k.method, k.path, k.status)
	}
	c.httpMu.RUnlock()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp       time.Time        `json:"timestamp"`
	Uptime          time.Duration    `json:"uptime"`
	Questions       int64            `json:"questions"`
	Searches        int64            `json:"searches"`
	Views           int64            `json:"views"`
	FavoriteToggles int64            `json:"favorite_toggles"`
	Tests           int64            `json:"tests"`
	TestSuccesses   int64            `json:"test_successes"`
	CatalogLoads    int64            `json:"catalog_loads"`
	CatalogSize     int64            `json:"catalog_size"`
	InvalidEntries  int64            `json:"invalid_entries"`
	StorageErrors   int64            `json:"storage_errors"`
	BusyRejections  int64            `json:"busy_rejections"`
	BreakerOpens    int64            `json:"breaker_opens"`
	InFlight        int64            `json:"in_flight"`
	AverageLatency  time.Duration    `json:"average_latency"`
	LLMRequests     map[string]int64 `json:"llm_requests"`
	LLMFailures     map[string]int64 `json:"llm_failures"`
	Fallbacks       map[string]int64 `json:"fallbacks"`
	LatencyHist     []int64          `json:"latency_histogram"`
}

// TestSuccessRate returns the share of mock tests that succeeded.
func (s *Snapshot) TestSuccessRate() float64 {
	if s.Tests == 0 {
		return 0
	}
	return float64(s.TestSuccesses) / float64(s.Tests)
}

// FailureRate returns failed completion calls over all calls.
func (s *Snapshot) FailureRate() float64 {
	var total, failed int64
	for _, v := range s.LLMRequests {
		total += v
	}
	for _, v := range s.LLMFailures {
		failed += v
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// Summary returns a human-readable summary.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":            s.Uptime.String(),
		"catalog_size":      s.CatalogSize,
		"questions":         s.Questions,
		"searches":          s.Searches,
		"views":             s.Views,
		"tests":             s.Tests,
		"test_success_rate": s.TestSuccessRate(),
		"llm_failure_rate":  s.FailureRate(),
		"avg_latency_ms":    s.AverageLatency.Milliseconds(),
		"fallbacks":         s.Fallbacks,
	}
}
