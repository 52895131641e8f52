package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/llm"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/randsrc"
	"github.com/efiadm/api-categorizer-aggr/internal/router"
	"github.com/efiadm/api-categorizer-aggr/internal/state"
	"github.com/efiadm/api-categorizer-aggr/internal/tester"
	"github.com/efiadm/api-categorizer-aggr/pkg/explorer"
)

const catalogBody = `{"apis":[
	{"id":"wx-1","name":"OpenSky Weather","description":"Forecasts","category":"Weather","endpoint":"https://api.opensky.dev/v1/forecast","method":"GET","authRequired":true,"status":"active"},
	{"id":"fin-1","name":"Ticker Feed","description":"Stock quotes","category":"Finance","endpoint":"https://api.ticker.dev/v2/quotes","method":"GET","authRequired":true,"status":"active"},
	{"id":"wx-2","name":"Storm Alerts","description":"Severe weather alerts","category":"Weather","endpoint":"https://api.storms.dev/alerts","method":"POST","authRequired":false,"status":"beta"}
]}`

// scripted answers completion requests by stage.
type scripted struct {
	mu      sync.Mutex
	answers map[string]string
	gate    chan struct{}
}

func (s *scripted) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	answer, ok := s.answers[req.Stage]
	gate := s.gate
	s.mu.Unlock()

	if gate != nil && req.Stage == router.StageSynthesize {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if !ok {
		return "", fmt.Errorf("no answer for %s", req.Stage)
	}
	return answer, nil
}

func defaultScript() *scripted {
	return &scripted{answers: map[string]string{
		catalog.Stage:          catalogBody,
		router.StageClassify:   `{"categories":["Weather"],"reasoning":"forecast","needsMultiple":false}`,
		router.StageSynthesize: "Use OpenSky Weather.",
	}}
}

func newTestServer(t *testing.T, c llm.Completer) (*Server, *httptest.Server) {
	t.Helper()

	cfg := explorer.DefaultConfig()
	cfg.LLM.RequestsPerSecond = 0
	cfg.Tester.Delay = 0

	e, err := explorer.New(
		explorer.WithConfig(cfg),
		explorer.WithCompleter(c),
		explorer.WithStore(state.NewMemoryStore()),
		explorer.WithLogger(logger.Nop()),
		explorer.WithRand(randsrc.NewSequence(0.5)),
	)
	if err != nil {
		t.Fatalf("explorer.New() error = %v", err)
	}
	e.Load(context.Background())

	s := New(e)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		e.Close()
	})
	return s, ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url, body string, v any) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func apiIDs(apis []catalog.API) string {
	ids := make([]string, len(apis))
	for i, a := range apis {
		ids[i] = a.ID
	}
	return strings.Join(ids, ",")
}

// =============================================================================
// System Endpoint Tests
// =============================================================================

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	var health HealthResponse
	resp := getJSON(t, ts.URL+"/healthz", &health)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %s", resp.Header.Get("Content-Type"))
	}
	if health.Status != "ok" || !health.Loaded || health.Source != catalog.SourceGenerated || health.Size != 3 {
		t.Errorf("health = %+v", health)
	}
	if health.Breaker != "closed" || health.Busy {
		t.Errorf("health = %+v", health)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("request id header missing")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	getJSON(t, ts.URL+"/api/apis", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"apiexplorer_searches_total 1",
		`apiexplorer_http_requests_total{method="GET",path="GET /api/apis",status="200"} 1`,
		"apiexplorer_catalog_size 3",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	s, _ := newTestServer(t, defaultScript())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ok/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	h := s.withMiddleware(routeMiddleware(mux))

	for _, path := range []string{"/ok/1", "/ok/2", "/missing", "/boom"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`apiexplorer_http_requests_total{method="GET",path="GET /ok/{id}",status="200"} 2`,
		`apiexplorer_http_requests_total{method="GET",path="unmatched",status="404"} 1`,
		`apiexplorer_http_requests_total{method="GET",path="GET /boom",status="500"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// =============================================================================
// Catalog Endpoint Tests
// =============================================================================

func TestListAPIs(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	tests := []struct {
		name   string
		query  string
		status int
		want   string
	}{
		{"all", "", http.StatusOK, "wx-1,fin-1,wx-2"},
		{"text", "?q=stock", http.StatusOK, "fin-1"},
		{"category", "?category=Weather", http.StatusOK, "wx-1,wx-2"},
		{"empty favorites", "?view=favorites", http.StatusOK, ""},
		{"bad view", "?view=starred", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list APIListResponse
			resp := getJSON(t, ts.URL+"/api/apis"+tt.query, &list)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status == http.StatusOK && apiIDs(list.APIs) != tt.want {
				t.Errorf("apis = %s, want %s", apiIDs(list.APIs), tt.want)
			}
			if tt.status == http.StatusOK && list.Count != len(list.APIs) {
				t.Errorf("count = %d", list.Count)
			}
		})
	}
}

func TestGetAPI_RecordsView(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	var got APIResponse
	if resp := getJSON(t, ts.URL+"/api/apis/fin-1", &got); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got.API.Name != "Ticker Feed" || got.Favorite {
		t.Errorf("api = %+v", got)
	}

	var history HistoryResponse
	getJSON(t, ts.URL+"/api/history", &history)
	if len(history.Entries) != 1 || history.Entries[0].APIID != "fin-1" || apiIDs(history.APIs) != "fin-1" {
		t.Errorf("history = %+v", history)
	}

	var errResp ErrorResponse
	resp := getJSON(t, ts.URL+"/api/apis/missing", &errResp)
	if resp.StatusCode != http.StatusNotFound || errResp.Code != ErrCodeNotFound {
		t.Errorf("missing api: status = %d, body = %+v", resp.StatusCode, errResp)
	}
}

func TestTestAPI(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	var res tester.Result
	if resp := postJSON(t, ts.URL+"/api/apis/wx-1/test", "", &res); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res.APIID != "wx-1" || !res.Success || res.Payload.Status != "success" {
		t.Errorf("result = %+v", res)
	}

	if resp := postJSON(t, ts.URL+"/api/apis/nope/test", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCategories(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	var cats CategoriesResponse
	getJSON(t, ts.URL+"/api/categories", &cats)

	if cats.Total != 3 || len(cats.Categories) != 2 {
		t.Fatalf("categories = %+v", cats)
	}
	if cats.Categories[0].Category != "Weather" || cats.Categories[0].Count != 2 {
		t.Errorf("first = %+v, want Weather with 2", cats.Categories[0])
	}
}

// =============================================================================
// Ledger Endpoint Tests
// =============================================================================

func TestToggleFavorite(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	var fav FavoriteResponse
	postJSON(t, ts.URL+"/api/favorites/wx-2", "", &fav)
	if !fav.Favorite || fav.ID != "wx-2" {
		t.Errorf("toggle = %+v", fav)
	}

	var list APIListResponse
	getJSON(t, ts.URL+"/api/favorites", &list)
	if apiIDs(list.APIs) != "wx-2" {
		t.Errorf("favorites = %s", apiIDs(list.APIs))
	}

	postJSON(t, ts.URL+"/api/favorites/wx-2", "", &fav)
	if fav.Favorite {
		t.Error("second toggle should clear the favorite")
	}
}

// =============================================================================
// Chat Endpoint Tests
// =============================================================================

func TestAsk(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	var chat ChatResponse
	resp := postJSON(t, ts.URL+"/api/chat", `{"question":"weather?"}`, &chat)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if chat.Exchange == nil || chat.Answer.Content != "Use OpenSky Weather." {
		t.Fatalf("chat = %+v", chat)
	}
	if apiIDs(chat.Answer.APISources) != "wx-1" {
		t.Errorf("sources = %s", apiIDs(chat.Answer.APISources))
	}

	var tr TranscriptResponse
	getJSON(t, ts.URL+"/api/chat", &tr)
	if len(tr.Messages) != 2 {
		t.Errorf("transcript has %d messages", len(tr.Messages))
	}
}

func TestAsk_BadRequests(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"blank question", `{"question":"   "}`, http.StatusNoContent},
		{"malformed body", `{"question":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestAsk_BusyReturnsConflict(t *testing.T) {
	c := defaultScript()
	c.gate = make(chan struct{})
	s, ts := newTestServer(t, c)

	done := make(chan int, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(`{"question":"first"}`))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !s.explorer.Busy() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	var errResp ErrorResponse
	resp := postJSON(t, ts.URL+"/api/chat", `{"question":"second"}`, &errResp)
	if resp.StatusCode != http.StatusConflict || errResp.Code != ErrCodeBusy || !errResp.Retryable {
		t.Errorf("status = %d, body = %+v", resp.StatusCode, errResp)
	}

	close(c.gate)
	if status := <-done; status != http.StatusOK {
		t.Errorf("first question status = %d", status)
	}
}

// =============================================================================
// Chat Socket Tests
// =============================================================================

func dialChat(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return f
}

func TestChatSocket(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())
	conn := dialChat(t, ts)

	if err := conn.WriteJSON(ChatRequest{Question: "weather?"}); err != nil {
		t.Fatal(err)
	}

	var phases []router.Phase
	var msg Frame
	for {
		f := readFrame(t, conn)
		if f.Type == FramePhase {
			phases = append(phases, f.Phase)
			continue
		}
		msg = f
		break
	}

	want := []router.Phase{router.PhaseRouting, router.PhaseSynthesizing, router.PhaseDone}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}
	if msg.Type != FrameMessage || msg.Exchange == nil || msg.Exchange.Answer.Content != "Use OpenSky Weather." {
		t.Errorf("message frame = %+v", msg)
	}
}

func TestChatSocket_InvalidFrame(t *testing.T) {
	_, ts := newTestServer(t, defaultScript())
	conn := dialChat(t, ts)

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	f := readFrame(t, conn)
	if f.Type != FrameError || f.Error == nil || f.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("frame = %+v", f)
	}

	// The connection stays usable.
	conn.WriteJSON(ChatRequest{Question: "still there?"})
	for {
		f := readFrame(t, conn)
		if f.Type == FrameMessage {
			break
		}
		if f.Type == FrameError {
			t.Fatalf("unexpected error frame %+v", f.Error)
		}
	}
}

func TestChatSocket_DisconnectCancelsQuestion(t *testing.T) {
	c := defaultScript()
	c.gate = make(chan struct{})
	defer close(c.gate)
	s, ts := newTestServer(t, c)
	conn := dialChat(t, ts)

	if err := conn.WriteJSON(ChatRequest{Question: "weather?"}); err != nil {
		t.Fatal(err)
	}
	for {
		if f := readFrame(t, conn); f.Type == FramePhase && f.Phase == router.PhaseSynthesizing {
			break
		}
	}
	if !s.explorer.Busy() {
		t.Fatal("question should be in flight")
	}

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.explorer.Busy() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.explorer.Busy() {
		t.Fatal("chat slot still held after the client disconnected")
	}
	if msgs := s.explorer.Transcript(); len(msgs) != 1 {
		t.Errorf("transcript = %d messages, want only the question", len(msgs))
	}
}

// =============================================================================
// Error Mapping Tests
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{errors.NewNotFoundError("lookup", "x"), http.StatusNotFound, ErrCodeNotFound},
		{errors.NewBusyError("chat"), http.StatusConflict, ErrCodeBusy},
		{errors.NewValidationError("server", "bad"), http.StatusBadRequest, ErrCodeInvalidRequest},
		{errors.NewCancelledError("classify"), statusClientClosedRequest, ErrCodeCancelled},
		{errors.NewTimeoutError("test", nil), http.StatusGatewayTimeout, ErrCodeTimeout},
		{errors.NewStorageError("api-history", "save", nil), http.StatusInternalServerError, ErrCodeStorage},
		{fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		status, code := statusFor(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("statusFor(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}

func TestResponseWriter_IgnoresDuplicateHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)

	if rw.Status() != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Errorf("status = %d/%d, want 418", rw.Status(), rec.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	cfg := explorer.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"

	e, err := explorer.New(
		explorer.WithConfig(cfg),
		explorer.WithCompleter(llm.Unavailable{}),
		explorer.WithStore(state.NewMemoryStore()),
		explorer.WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	s := New(e)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !s.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if s.Ready() {
		t.Error("server should not be ready after shutdown")
	}
}
