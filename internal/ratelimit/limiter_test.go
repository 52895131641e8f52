package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Limiter Tests
// =============================================================================

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5)

	if l == nil {
		t.Fatal("NewLimiter() returned nil")
	}
	if l.perModel == nil {
		t.Error("perModel map is nil")
	}
	if l.defaultRate != 10.0 {
		t.Errorf("defaultRate = %v, want 10.0", l.defaultRate)
	}
	if l.defaultBurst != 5 {
		t.Errorf("defaultBurst = %d, want 5", l.defaultBurst)
	}
}

func TestNewLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)

	if l.defaultRate != rate.Inf {
		t.Errorf("defaultRate = %v, want Inf", l.defaultRate)
	}
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("unlimited limiter refused call %d", i)
		}
	}
}

func TestLimiter_Allow_Burst(t *testing.T) {
	l := NewLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Errorf("Allow() should return true for burst request %d", i+1)
		}
	}

	if l.Allow() {
		t.Error("Allow() should return false after burst exhausted")
	}
}

func TestLimiter_Wait_ContextCancelled(t *testing.T) {
	l := NewLimiter(0.1, 1)
	l.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() should return error for cancelled context")
	}
}

func TestLimiter_WaitModel(t *testing.T) {
	l := NewLimiter(1000, 10)

	if err := l.WaitModel(context.Background(), "gpt-4o"); err != nil {
		t.Fatalf("WaitModel() error = %v", err)
	}

	stats := l.Stats()
	if stats.ModelCount != 1 {
		t.Errorf("ModelCount = %d, want 1", stats.ModelCount)
	}
	if stats.Waits != 1 {
		t.Errorf("Waits = %d, want 1", stats.Waits)
	}
}

func TestLimiter_WaitModel_MinInterval(t *testing.T) {
	l := NewLimiter(1000, 10)
	l.SetMinInterval(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := l.WaitModel(ctx, "gpt-4o-mini"); err != nil {
		t.Fatal(err)
	}
	if err := l.WaitModel(ctx, "gpt-4o-mini"); err != nil {
		t.Fatal(err)
	}

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second call returned after %v, want >= ~50ms", elapsed)
	}
}

func TestLimiter_WaitModel_MinIntervalCancelled(t *testing.T) {
	l := NewLimiter(1000, 10)
	l.SetMinInterval(time.Hour)

	if err := l.WaitModel(context.Background(), "m"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.WaitModel(ctx, "m"); err == nil {
		t.Error("WaitModel() should fail when ctx expires during spacing")
	}
}

func TestLimiter_AllowModel_WithCustomRate(t *testing.T) {
	l := NewLimiter(1000, 100)
	l.SetModelRate("gpt-4o", 1, 1)

	if !l.AllowModel("gpt-4o") {
		t.Fatal("first call should be allowed")
	}
	if l.AllowModel("gpt-4o") {
		t.Error("second call should be refused by the model bucket")
	}
	if !l.AllowModel("gpt-4o-mini") {
		t.Error("other models keep their own budget")
	}
	if got := l.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestLimiter_SetRate(t *testing.T) {
	l := NewLimiter(10, 5)
	l.SetRate(20, 2)

	stats := l.Stats()
	if stats.DefaultRate != 20 {
		t.Errorf("DefaultRate = %v, want 20", stats.DefaultRate)
	}
	if stats.DefaultBurst != 2 {
		t.Errorf("DefaultBurst = %d, want 2", stats.DefaultBurst)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(10000, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	models := []string{"a", "b", "c"}
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.WaitModel(ctx, models[i%len(models)])
		}(i)
	}
	wg.Wait()

	stats := l.Stats()
	if stats.ModelCount != 3 {
		t.Errorf("ModelCount = %d, want 3", stats.ModelCount)
	}
	if stats.Waits != 30 {
		t.Errorf("Waits = %d, want 30", stats.Waits)
	}
}
