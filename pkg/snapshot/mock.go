package snapshot

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// MockProvider serves counters set programmatically. It backs demo mode and tests.
type MockProvider struct {
	mu          sync.RWMutex
	totals      [4]float64
	failure     string
	unreachable error
}

var _ Provider = (*MockProvider)(nil)

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Set replaces all four counters.
func (m *MockProvider) Set(domNodes, resources, errs, longTasks float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals = [4]float64{domNodes, resources, errs, longTasks}
	log.WithFields(log.Fields{
		"domNodes":      domNodes,
		"resourceCount": resources,
		"errorCount":    errs,
		"longTaskCount": longTasks,
	}).Debug("mock counters updated")
}

// Add increments the counters, simulating activity in the observed process.
func (m *MockProvider) Add(domNodes, resources, errs, longTasks float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[0] += domNodes
	m.totals[1] += resources
	m.totals[2] += errs
	m.totals[3] += longTasks
}

// Fail makes subsequent snapshots report ok=false with msg. An empty msg clears it.
func (m *MockProvider) Fail(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = msg
}

// Unreachable makes subsequent snapshots fail at transport level. Nil clears it.
func (m *MockProvider) Unreachable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable = err
}

func (m *MockProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CollectionError{Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unreachable != nil {
		return nil, &CollectionError{Err: m.unreachable}
	}
	if m.failure != "" {
		return &Snapshot{OK: false, Error: m.failure}, nil
	}
	return &Snapshot{
		OK:            true,
		DOMNodes:      m.totals[0],
		ResourceCount: m.totals[1],
		ErrorCount:    m.totals[2],
		LongTaskCount: m.totals[3],
	}, nil
}
