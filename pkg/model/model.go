package model

import (
	"sync"
	"time"
)

const (
	// DefaultMaxPoints keeps ~5 minutes of history at the nominal 5s sampling period.
	DefaultMaxPoints = 60

	// minRateInterval guards rate derivation against duplicate ticks.
	minRateInterval = 250 * time.Millisecond
)

// Totals are the cumulative counters last reported by the observed process.
type Totals struct {
	DOMNodes      int64 `json:"dom_nodes"`
	ResourceCount int64 `json:"resource_count"`
	ErrorCount    int64 `json:"error_count"`
	LongTaskCount int64 `json:"long_task_count"`
}

// Rates are per-minute deltas of Totals between two samples.
type Rates struct {
	ResourcePerMin float64 `json:"resource_per_min"`
	ErrorPerMin    float64 `json:"error_per_min"`
	LongTaskPerMin float64 `json:"long_task_per_min"`
}

// Point is a single entry of the stress history.
type Point struct {
	Timestamp      time.Time `json:"timestamp"`
	DOMNodes       int64     `json:"dom_nodes"`
	ResourcePerMin float64   `json:"resource_per_min"`
	ErrorPerMin    float64   `json:"error_per_min"`
	LongTaskPerMin float64   `json:"long_task_per_min"`
	Stress         int       `json:"stress"`
}

// Model holds totals, derived rates and a bounded history of points for one session.
type Model struct {
	lock sync.RWMutex

	enabled  bool
	status   string
	baseline *int64

	totals *Totals
	rates  *Rates

	lastTotals   *Totals
	lastSampleAt time.Time

	points []Point

	// version increments on every history mutation
	version uint64

	// maxPoints is the maximum number of points to retain
	maxPoints int
}

// View is an immutable copy of the model state.
type View struct {
	Enabled  bool    `json:"enabled"`
	Status   string  `json:"status"`
	Baseline *int64  `json:"baseline,omitempty"`
	Totals   *Totals `json:"totals,omitempty"`
	Rates    *Rates  `json:"rates,omitempty"`
	Points   []Point `json:"points"`
	Version  uint64  `json:"version"`
}

// New creates a Model with a history retention limit. Non-positive limits fall back to
// DefaultMaxPoints.
func New(maxPoints int) *Model {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Model{
		status:    "Idle",
		points:    make([]Point, 0, maxPoints),
		maxPoints: maxPoints,
	}
}

func (m *Model) SetEnabled(v bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.enabled = v
}

func (m *Model) Enabled() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.enabled
}

func (m *Model) SetStatus(text string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.status = text
}

func (m *Model) Status() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.status
}

// Baseline returns the DOM node count captured on the first sample of the current run.
func (m *Model) Baseline() (int64, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.baseline == nil {
		return 0, false
	}
	return *m.baseline, true
}

func (m *Model) SetBaseline(v int64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.setBaseline(v)
}

func (m *Model) setBaseline(v int64) {
	if v < 0 {
		v = 0
	}
	m.baseline = &v
}

func (m *Model) ClearBaseline() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.baseline = nil
}

// ResetRates forgets the rate reference so that rates are derived again only from the
// samples that follow.
func (m *Model) ResetRates() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.rates = nil
	m.lastTotals = nil
	m.lastSampleAt = time.Time{}
}

func (m *Model) Totals() (Totals, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.totals == nil {
		return Totals{}, false
	}
	return *m.totals, true
}

func (m *Model) Rates() (Rates, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.rates == nil {
		return Rates{}, false
	}
	return *m.rates, true
}

// View returns a consistent copy of the whole model.
func (m *Model) View() View {
	m.lock.RLock()
	defer m.lock.RUnlock()

	v := View{
		Enabled: m.enabled,
		Status:  m.status,
		Points:  m.copyPoints(),
		Version: m.version,
	}
	if m.baseline != nil {
		b := *m.baseline
		v.Baseline = &b
	}
	if m.totals != nil {
		t := *m.totals
		v.Totals = &t
	}
	if m.rates != nil {
		r := *m.rates
		v.Rates = &r
	}
	return v
}
