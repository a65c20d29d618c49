package download

import (
	"testing"
	"time"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		jitter  time.Duration
		want    time.Duration
	}{
		{1, 0, 1 * time.Second},
		{2, 0, 2 * time.Second},
		{3, 0, 4 * time.Second},
		{4, 0, 8 * time.Second},
		{4, 299 * time.Millisecond, 8299 * time.Millisecond},
		{5, 0, 10 * time.Second},
		{6, 0, 10 * time.Second},
		{0, 0, 500 * time.Millisecond},
		{-3, 0, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := p.delay(tt.attempt, tt.jitter); got != tt.want {
			t.Errorf("delay(%d, %v) = %v, want %v", tt.attempt, tt.jitter, got, tt.want)
		}
	}
}

func TestRetryPolicy_DelayForBounds(t *testing.T) {
	p := DefaultRetryPolicy()

	for i := 0; i < 200; i++ {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 5; attempt++ {
			d := p.DelayFor(attempt)
			if d < prev {
				t.Fatalf("DelayFor(%d) = %v < DelayFor(%d) = %v", attempt, d, attempt-1, prev)
			}
			prev = d
		}
	}

	for attempt := 1; attempt <= 100; attempt++ {
		d := p.DelayFor(attempt)
		if d > p.MaxDelay {
			t.Errorf("DelayFor(%d) = %v, exceeds %v", attempt, d, p.MaxDelay)
		}
		if d < p.BaseDelay {
			t.Errorf("DelayFor(%d) = %v, below base %v", attempt, d, p.BaseDelay)
		}
	}
}

func TestRetryPolicy_Plateau(t *testing.T) {
	p := RetryPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: time.Hour, ExponentCap: 3}

	if got := p.delay(3, 0); got != 80*time.Millisecond {
		t.Errorf("delay(3) = %v, want 80ms", got)
	}
	if got := p.delay(10, 0); got != 80*time.Millisecond {
		t.Errorf("delay(10) = %v, want plateau at 80ms", got)
	}
}
