package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestInterval(t *testing.T) {
	tests := []struct {
		rate int
		want time.Duration
	}{
		{0, time.Second / DefaultRate},
		{30, time.Second / 30},
		{1000, time.Millisecond},
	}
	for _, tt := range tests {
		d := Driver{Rate: tt.rate}
		if got := d.Interval(); got != tt.want {
			t.Errorf("Interval(%d) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestRunRejectsNegativeRate(t *testing.T) {
	d := Driver{Rate: -1}
	if err := d.Run(context.Background(), func(time.Duration) {}); err == nil {
		t.Fatalf("expected error for negative rate")
	}
}

func TestRunPassesMeasuredDelta(t *testing.T) {
	clock := time.Unix(0, 0)
	d := Driver{Rate: 1000, now: func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var deltas []time.Duration
	err := d.Run(ctx, func(delta time.Duration) {
		deltas = append(deltas, delta)
		if len(deltas) == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// The start reading is backdated by one interval.
	want := []time.Duration{6 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}
	if len(deltas) < len(want) {
		t.Fatalf("deltas: %v", deltas)
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Fatalf("delta %d = %s, want %s", i, deltas[i], want[i])
		}
	}
}
