package server

import (
	"testing"
	"time"
)

func TestTickMonitorCountsLongTicks(t *testing.T) {
	m := NewTickMonitor(5 * time.Millisecond)
	m.Observe(time.Millisecond)
	if !m.Observe(8 * time.Millisecond) {
		t.Fatalf("8ms should be long")
	}
	m.Observe(3 * time.Millisecond)

	st := m.Stats()
	if st.Count != 3 || st.LongTicks != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if st.Max != 8*time.Millisecond || st.Avg != 4*time.Millisecond || st.Last != 3*time.Millisecond {
		t.Fatalf("durations: %+v", st)
	}
	if len(st.Recent) != 1 || st.Recent[0].Duration != 8*time.Millisecond {
		t.Fatalf("recent: %+v", st.Recent)
	}
}

func TestTickMonitorHistoryBounded(t *testing.T) {
	m := NewTickMonitor(0)
	for i := 0; i < tickHistorySize+20; i++ {
		m.Observe(time.Duration(i+1) * time.Microsecond)
	}
	st := m.Stats()
	if len(st.Recent) != tickHistorySize {
		t.Fatalf("history: %d", len(st.Recent))
	}
	if st.Recent[0].Duration != 21*time.Microsecond {
		t.Fatalf("oldest kept: %v", st.Recent[0].Duration)
	}
}
