package server

import (
	"sync"
	"time"
)

// DefaultTickBudget is the duration above which a tick counts as long.
const DefaultTickBudget = 10 * time.Millisecond

// tickHistorySize bounds the number of long ticks kept for reporting.
const tickHistorySize = 100

// LongTick records a tick that exceeded the budget.
type LongTick struct {
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration_ns"`
}

// TickStats summarizes tick durations.
type TickStats struct {
	Count     uint64        `json:"count"`
	LongTicks uint64        `json:"long_ticks"`
	Max       time.Duration `json:"max_ns"`
	Avg       time.Duration `json:"avg_ns"`
	Last      time.Duration `json:"last_ns"`
	Recent    []LongTick    `json:"recent,omitempty"`
}

// TickMonitor tracks how long server ticks take and keeps the most recent
// ticks that ran over budget.
type TickMonitor struct {
	mu     sync.RWMutex
	budget time.Duration

	count   uint64
	long    uint64
	total   time.Duration
	max     time.Duration
	last    time.Duration
	history []LongTick
	now     func() time.Time
}

// NewTickMonitor creates a monitor with the given budget.
func NewTickMonitor(budget time.Duration) *TickMonitor {
	return &TickMonitor{
		budget:  budget,
		history: make([]LongTick, 0, tickHistorySize),
		now:     time.Now,
	}
}

// Observe records one tick duration. It reports whether the tick was long.
func (m *TickMonitor) Observe(d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.count++
	m.total += d
	m.last = d
	if d > m.max {
		m.max = d
	}
	if d <= m.budget {
		return false
	}

	m.long++
	m.history = append(m.history, LongTick{Timestamp: m.now(), Duration: d})
	if len(m.history) > tickHistorySize {
		m.history = m.history[len(m.history)-tickHistorySize:]
	}
	return true
}

// Stats returns a copy of the current summary.
func (m *TickMonitor) Stats() TickStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := TickStats{
		Count:     m.count,
		LongTicks: m.long,
		Max:       m.max,
		Last:      m.last,
	}
	if m.count > 0 {
		st.Avg = m.total / time.Duration(m.count)
	}
	if len(m.history) > 0 {
		st.Recent = make([]LongTick, len(m.history))
		copy(st.Recent, m.history)
	}
	return st
}
