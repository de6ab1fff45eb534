package ai

import (
	"sync"
	"time"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/metrics"
)

// CircuitState is a provider circuit-breaker state.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// HealthRecord tracks one provider's failure history and circuit state.
// Updates are read-modify-write under the record's own lock, since many
// concurrent tasks share the same provider's counters.
type HealthRecord struct {
	mu            sync.Mutex
	provider      string
	consecFails   int
	state         CircuitState
	lastFailure   time.Time
	openedAt      time.Time
	maxFails      int
	cooldown      time.Duration
	probeInFlight bool
}

// HealthTable is the owned table of per-provider health records, passed
// explicitly to the router rather than shared as a global.
type HealthTable struct {
	mu       sync.RWMutex
	records  map[string]*HealthRecord
	maxFails int
	cooldown time.Duration
}

// NewHealthTable creates a health table with the breaker thresholds.
func NewHealthTable(maxFails int, cooldown time.Duration) *HealthTable {
	if maxFails <= 0 {
		maxFails = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &HealthTable{
		records:  make(map[string]*HealthRecord),
		maxFails: maxFails,
		cooldown: cooldown,
	}
}

// Record returns the health record for a provider, creating it closed.
func (t *HealthTable) Record(provider string) *HealthRecord {
	t.mu.RLock()
	rec, ok := t.records[provider]
	t.mu.RUnlock()
	if ok {
		return rec
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok = t.records[provider]; ok {
		return rec
	}
	rec = &HealthRecord{
		provider: provider,
		state:    CircuitClosed,
		maxFails: t.maxFails,
		cooldown: t.cooldown,
	}
	t.records[provider] = rec
	return rec
}

// States returns a snapshot of circuit states for the stats endpoint.
func (t *HealthTable) States() map[string]CircuitState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]CircuitState, len(t.records))
	for name, rec := range t.records {
		rec.mu.Lock()
		out[name] = rec.state
		rec.mu.Unlock()
	}
	return out
}

// Allow reports whether the provider may be tried. An open circuit whose
// cooldown elapsed transitions to half-open and admits exactly one probe;
// further callers are refused until the probe resolves.
func (r *HealthRecord) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(r.openedAt) < r.cooldown {
			return false
		}
		r.transition(CircuitHalfOpen)
		r.probeInFlight = true
		return true
	case CircuitHalfOpen:
		if r.probeInFlight {
			return false
		}
		r.probeInFlight = true
		return true
	}
	return false
}

// Success records a successful call: failures reset and the circuit closes.
func (r *HealthRecord) Success() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecFails = 0
	r.probeInFlight = false
	if r.state != CircuitClosed {
		r.transition(CircuitClosed)
	}
}

// Failure records a failed call. The circuit opens after the consecutive
// failure threshold, and a failed half-open probe re-opens it immediately.
func (r *HealthRecord) Failure() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecFails++
	r.lastFailure = time.Now()
	r.probeInFlight = false

	if r.state == CircuitHalfOpen || r.consecFails >= r.maxFails {
		if r.state != CircuitOpen {
			r.transition(CircuitOpen)
		}
		r.openedAt = time.Now()
	}
}

// State returns the current circuit state.
func (r *HealthRecord) State() CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastFailure returns the time of the most recent recorded failure.
func (r *HealthRecord) LastFailure() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFailure
}

// ConsecutiveFailures returns the current consecutive failure count.
func (r *HealthRecord) ConsecutiveFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecFails
}

// transition moves the circuit to a new state. Caller holds r.mu.
func (r *HealthRecord) transition(state CircuitState) {
	r.state = state
	metrics.CircuitTransitions.WithLabelValues(r.provider, string(state)).Inc()
}
