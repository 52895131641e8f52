package tester

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
	"github.com/efiadm/api-categorizer-aggr/internal/randsrc"
)

var weather = catalog.API{
	ID:       "api-001",
	Name:     "Weather API 1",
	Category: "Weather",
	Endpoint: "https://api.example.com/v1/weather/1",
	Method:   catalog.MethodPost,
	Status:   catalog.StatusActive,
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)
}

func TestTest_Outcome(t *testing.T) {
	tests := []struct {
		draw    float64
		success bool
	}{
		{0.31, true},
		{0.99, true},
		{0.3, false},
		{0.0, false},
	}

	for _, tt := range tests {
		m := metrics.New()
		r := New(WithDelay(0), WithRand(randsrc.NewSequence(tt.draw)), WithClock(fixedNow), WithMetrics(m))

		res, err := r.Test(context.Background(), weather)
		if err != nil {
			t.Fatalf("Test() error = %v", err)
		}
		if res.Success != tt.success {
			t.Errorf("draw %.2f: Success = %v, want %v", tt.draw, res.Success, tt.success)
		}
		if snap := m.Snapshot(); snap.Tests != 1 || (snap.TestSuccesses == 1) != tt.success {
			t.Errorf("draw %.2f: metrics = %d/%d", tt.draw, snap.TestSuccesses, snap.Tests)
		}
	}
}

func TestTest_SuccessPayload(t *testing.T) {
	r := New(WithDelay(0), WithRand(randsrc.NewSequence(0.9)), WithClock(fixedNow))

	res, err := r.Test(context.Background(), weather)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := uuid.Parse(res.RequestID); err != nil {
		t.Errorf("RequestID %q is not a uuid", res.RequestID)
	}
	if res.APIID != "api-001" {
		t.Errorf("APIID = %s", res.APIID)
	}

	want := `{
  "status": "success",
  "message": "API response received successfully",
  "data": {
    "timestamp": "2026-03-04T05:06:07.890Z",
    "endpoint": "https://api.example.com/v1/weather/1",
    "method": "POST"
  }
}`
	if res.Body != want {
		t.Errorf("Body =\n%s\nwant\n%s", res.Body, want)
	}
}

func TestTest_FailurePayload(t *testing.T) {
	r := New(WithDelay(0), WithRand(randsrc.NewSequence(0.1)))

	res, err := r.Test(context.Background(), weather)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(res.Body), &got); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if got["status"] != "error" || got["message"] != MessageFailure || got["error"] != FailureDetail {
		t.Errorf("payload = %v", got)
	}
	if _, ok := got["data"]; ok {
		t.Error("failure payload should carry no data")
	}
	if !strings.HasPrefix(res.Body, "{\n  \"status\"") {
		t.Error("Body should be indented")
	}
}

func TestTest_Delay(t *testing.T) {
	r := New(WithDelay(20*time.Millisecond), WithRand(randsrc.NewSequence(0.5)))

	start := time.Now()
	if _, err := r.Test(context.Background(), weather); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Test() returned after %v, want at least the delay", elapsed)
	}
}

func TestTest_Cancelled(t *testing.T) {
	m := metrics.New()
	r := New(WithDelay(time.Hour), WithMetrics(m))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Test(ctx, weather)
	if !errors.IsType(err, errors.Timeout) {
		t.Errorf("Test() error = %v, want timeout", err)
	}
	if m.Snapshot().Tests != 0 {
		t.Error("cancelled test should not be counted")
	}

	done, stop := context.WithCancel(context.Background())
	stop()
	if _, err := New(WithDelay(0)).Test(done, weather); !errors.IsType(err, errors.Cancelled) {
		t.Errorf("Test() error = %v, want cancelled", err)
	}
}

func TestDefaultDelay(t *testing.T) {
	if New().delay != DefaultDelay {
		t.Error("default delay not applied")
	}
	if New(WithDelay(-time.Second)).delay != DefaultDelay {
		t.Error("negative delay should be ignored")
	}
}
