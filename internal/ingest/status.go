package ingest

import (
	"sync"
	"time"
)

// Status summarizes recent ticks for health reporting.
type Status struct {
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastTick    time.Time `json:"last_tick,omitempty"`
	LastIngest  time.Time `json:"last_ingest,omitempty"`
	Ticks       int64     `json:"ticks"`
	Healthy     bool      `json:"healthy"`
}

// Monitor records tick outcomes. It is safe for concurrent use.
type Monitor struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{now: time.Now}
}

// Record stores the outcome of one tick.
func (m *Monitor) Record(outcome Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	m.status.Ticks++
	m.status.LastOutcome = outcome
	m.status.LastTick = now
	m.status.Healthy = outcome.Healthy()
	m.status.LastError = ""
	if err != nil {
		m.status.LastError = err.Error()
	}
	if outcome == OutcomeIngested {
		m.status.LastIngest = now
	}
}

// Status returns a copy of the current status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
