package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/jobrunner/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(50 * time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 50*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 50ms", attempt, got)
		}
	}
}

func TestExponential_DoublesAndCaps(t *testing.T) {
	e := backoff.NewExponential(100*time.Millisecond, time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(100*time.Millisecond, time.Second)
	for range 100 {
		got := e.Delay(3)
		if got < 0 || got > 400*time.Millisecond {
			t.Fatalf("Delay(3) = %v, want within [0, 400ms]", got)
		}
	}
}

func TestDefaultStrategy_Capped(t *testing.T) {
	s := backoff.DefaultStrategy()
	if got := s.Delay(100); got > 5*time.Second {
		t.Errorf("Delay(100) = %v, want <= 5s", got)
	}
}
