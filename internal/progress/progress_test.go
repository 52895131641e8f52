package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/router"
)

func TestDisplay_Phases(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.Observe(router.PhaseRouting)
	if buf.Len() != 0 {
		t.Error("nothing should print before Start")
	}

	d.Start()
	d.Observe(router.PhaseRouting)
	d.Observe(router.PhaseSynthesizing)
	d.Observe(router.PhaseDone)

	out := buf.String()
	for _, want := range []string{"Finding relevant APIs...", "Writing an answer...", "Done"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
	if d.Phase() != router.PhaseDone {
		t.Errorf("Phase() = %s, want done", d.Phase())
	}

	d.Stop()
	if !strings.HasSuffix(buf.String(), "\r") {
		t.Error("Stop should return the cursor to the line start")
	}

	n := buf.Len()
	d.Observe(router.PhaseRouting)
	d.Stop()
	if buf.Len() != n {
		t.Error("a stopped display should not print")
	}
}

func TestDisplay_StopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.Stop()
	if buf.Len() != 0 {
		t.Error("Stop before Start should not print")
	}
}

func TestIndicator(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "[•  ]"},
		{1, "[•• ]"},
		{2, "[•••]"},
		{3, "[•  ]"},
	}

	for _, tt := range tests {
		if got := indicator(tt.n); got != tt.want {
			t.Errorf("indicator(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0.0s"},
		{1500 * time.Millisecond, "1.5s"},
		{61 * time.Second, "1m01.0s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
