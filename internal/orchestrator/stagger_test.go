package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewStagger(t *testing.T) {
	s := NewStagger(10, 500*time.Millisecond)
	if s == nil {
		t.Fatal("NewStagger returned nil")
	}
	if s.Rate() != 10 {
		t.Errorf("Rate() = %d, want 10", s.Rate())
	}
	if s.MaxJitter() != 500*time.Millisecond {
		t.Errorf("MaxJitter() = %v, want 500ms", s.MaxJitter())
	}
}

func TestStagger_Delay_Deterministic(t *testing.T) {
	s1 := NewStaggerWithSeed(10, 100*time.Millisecond, 12345)
	s2 := NewStaggerWithSeed(10, 100*time.Millisecond, 12345)

	for i := 0; i < 20; i++ {
		if d1, d2 := s1.Delay(i), s2.Delay(i); d1 != d2 {
			t.Errorf("Delay(%d) = %v vs %v, same seed must agree", i, d1, d2)
		}
	}

	// A different seed shifts the jitter pattern.
	s3 := NewStaggerWithSeed(10, 100*time.Millisecond, 99999)
	same := 0
	for i := 0; i < 20; i++ {
		if s1.Delay(i) == s3.Delay(i) {
			same++
		}
	}
	if same == 20 {
		t.Error("different seeds produced identical delays at every index")
	}
}

func TestStagger_Delay_Bounds(t *testing.T) {
	// rate=10 gives a 100ms base; jitter adds [0, 50ms).
	s := NewStaggerWithSeed(10, 50*time.Millisecond, 12345)

	for i := 0; i < 100; i++ {
		d := s.Delay(i)
		if d < 100*time.Millisecond || d >= 150*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want [100ms, 150ms)", i, d)
		}
	}
}

func TestStagger_Delay_NoJitter(t *testing.T) {
	// rate=5 means one launch per 200ms, exactly.
	s := NewStaggerWithSeed(5, 0, 12345)

	for i := 0; i < 5; i++ {
		if d := s.Delay(i); d != 200*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 200ms", i, d)
		}
	}
}

func TestStagger_Delay_ZeroRate_JitterOnly(t *testing.T) {
	// No rate cap: the base delay disappears but the jitter still
	// spreads the launches.
	s := NewStaggerWithSeed(0, 100*time.Millisecond, 12345)

	sawNonZero := false
	for i := 0; i < 50; i++ {
		d := s.Delay(i)
		if d < 0 || d >= 100*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want [0, 100ms)", i, d)
		}
		if d > 0 {
			sawNonZero = true
		}
	}
	if !sawNonZero {
		t.Error("jitter-only stagger never produced a delay")
	}
}

func TestStagger_Delay_ZeroRateZeroJitter(t *testing.T) {
	s := NewStaggerWithSeed(0, 0, 12345)

	for i := 0; i < 5; i++ {
		if d := s.Delay(i); d != 0 {
			t.Errorf("Delay(%d) = %v, want 0", i, d)
		}
	}
}

func TestStagger_Schedule_RateLimit(t *testing.T) {
	// Rate of 5 = 200ms per launch, no jitter.
	s := NewStaggerWithSeed(5, 0, 12345)

	start := time.Now()
	err := s.Schedule(context.Background(), 1)
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("Schedule() error = %v", err)
	}
	if elapsed < 150*time.Millisecond || elapsed > 350*time.Millisecond {
		t.Errorf("Schedule() elapsed = %v, want ~200ms", elapsed)
	}
}

func TestStagger_Schedule_Immediate(t *testing.T) {
	s := NewStaggerWithSeed(0, 0, 12345)

	start := time.Now()
	if err := s.Schedule(context.Background(), 1); err != nil {
		t.Errorf("Schedule() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("Schedule() with no delay took %v", elapsed)
	}
}

func TestStagger_Schedule_ContextCancelled(t *testing.T) {
	s := NewStaggerWithSeed(1, 0, 12345) // 1 per second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := s.Schedule(ctx, 1)
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Schedule() error = %v, want context.Canceled", err)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("cancelled Schedule() took %v", elapsed)
	}
}

func TestStagger_Schedule_ContextTimeout(t *testing.T) {
	s := NewStaggerWithSeed(1, 0, 12345) // 1 per second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Schedule(ctx, 1)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Schedule() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("Schedule() should have stopped at ~50ms, took %v", elapsed)
	}
}

func TestStagger_EstimatedDuration(t *testing.T) {
	tests := []struct {
		name      string
		rate      int
		maxJitter time.Duration
		entries   int
		want      time.Duration
	}{
		{"normal", 10, time.Second, 100, 10*time.Second + 500*time.Millisecond},
		{"no_jitter", 5, 0, 10, 2 * time.Second},
		{"zero_rate", 0, 500 * time.Millisecond, 100, 0},
		{"negative_rate", -5, 500 * time.Millisecond, 100, 0},
		{"zero_entries", 10, time.Second, 0, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStaggerWithSeed(tt.rate, tt.maxJitter, 12345)
			if got := s.EstimatedDuration(tt.entries); got != tt.want {
				t.Errorf("EstimatedDuration(%d) = %v, want %v", tt.entries, got, tt.want)
			}
		})
	}
}
