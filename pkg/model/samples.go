package model

import "time"

// SetSample records a new totals snapshot taken at now and derives rates against the
// previous one.
func (m *Model) SetSample(now time.Time, next Totals) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.totals = &next

	if m.lastTotals != nil && !m.lastSampleAt.IsZero() {
		elapsed := now.Sub(m.lastSampleAt)
		if elapsed > minRateInterval {
			secs := elapsed.Seconds()
			m.rates = &Rates{
				ResourcePerMin: perMinute(m.lastTotals.ResourceCount, next.ResourceCount, secs),
				ErrorPerMin:    perMinute(m.lastTotals.ErrorCount, next.ErrorCount, secs),
				LongTaskPerMin: perMinute(m.lastTotals.LongTaskCount, next.LongTaskCount, secs),
			}
		}
	}

	last := next
	m.lastTotals = &last
	m.lastSampleAt = now

	if m.baseline == nil {
		m.setBaseline(next.DOMNodes)
	}
}

// perMinute clamps counter regressions (observed process reloads) to a zero delta.
func perMinute(prev, next int64, secs float64) float64 {
	delta := next - prev
	if delta < 0 {
		delta = 0
	}
	return float64(delta) * 60 / secs
}

// PushPoint appends a point to the history, dropping the oldest ones past the limit.
func (m *Model) PushPoint(p Point) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.points = append(m.points, p)
	if len(m.points) > m.maxPoints {
		m.points = append(m.points[:0:0], m.points[len(m.points)-m.maxPoints:]...)
	}
	m.version++
}

func (m *Model) ClearPoints() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.points = make([]Point, 0, m.maxPoints)
	m.version++
}

// Points returns a copy of the history in chronological order.
func (m *Model) Points() []Point {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.copyPoints()
}

func (m *Model) copyPoints() []Point {
	out := make([]Point, len(m.points))
	copy(out, m.points)
	return out
}
