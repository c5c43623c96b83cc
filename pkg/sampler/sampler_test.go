package sampler

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voluzi/pagepulse/pkg/audit"
	"github.com/voluzi/pagepulse/pkg/model"
	"github.com/voluzi/pagepulse/pkg/snapshot"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	fn        func()
	interval  time.Duration
	cancelled atomic.Int32
}

func (t *manualTask) Cancel() {
	t.cancelled.Add(1)
}

func (m *manualScheduler) Every(interval time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{fn: fn, interval: interval}
	m.tasks = append(m.tasks, t)
	return t
}

func (m *manualScheduler) last() *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil
	}
	return m.tasks[len(m.tasks)-1]
}

// Fire runs the most recently scheduled task if it is still armed.
func (m *manualScheduler) Fire() {
	if t := m.last(); t != nil && t.cancelled.Load() == 0 {
		t.fn()
	}
}

func (m *manualScheduler) Armed() bool {
	t := m.last()
	return t != nil && t.cancelled.Load() == 0
}

type response struct {
	snap *snapshot.Snapshot
	err  error
}

type scriptedProvider struct {
	calls     atomic.Int32
	responses chan response
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{responses: make(chan response)}
}

func (p *scriptedProvider) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	p.calls.Add(1)
	select {
	case r := <-p.responses:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *scriptedProvider) respond(t *testing.T, r response) {
	select {
	case p.responses <- r:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was never called")
	}
}

func ok(dom, res, errs, long float64) response {
	return response{snap: &snapshot.Snapshot{OK: true, DOMNodes: dom, ResourceCount: res, ErrorCount: errs, LongTaskCount: long}}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Append(e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds(kind string) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	sampler   *Sampler
	model     *model.Model
	provider  *scriptedProvider
	scheduler *manualScheduler
	clock     *fakeClock
	audit     *recorder
	debug     *recorder
	updates   chan Update
	busy      atomic.Bool
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		model:     model.New(model.DefaultMaxPoints),
		provider:  newScriptedProvider(),
		scheduler: &manualScheduler{},
		clock:     &fakeClock{now: t0},
		audit:     &recorder{},
		debug:     &recorder{},
		updates:   make(chan Update, 64),
	}
	h.sampler = New(h.model, h.provider,
		WithScheduler(h.scheduler),
		WithClock(h.clock.Now),
		WithBusyGuard(BusyFunc(h.busy.Load)),
		WithAuditSink(h.audit),
		WithDebugSink(h.debug),
	)
	h.sampler.OnUpdate(func(u Update) { h.updates <- u })
	t.Cleanup(h.sampler.Close)
	return h
}

func (h *harness) next(t *testing.T) Update {
	select {
	case u := <-h.updates:
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

// sample fires a tick at the given offset and answers it with r.
func (h *harness) sample(t *testing.T, offset time.Duration, r response) Update {
	h.clock.Set(t0.Add(offset))
	h.scheduler.Fire()
	h.provider.respond(t, r)
	return h.next(t)
}

func (h *harness) start(t *testing.T, r response) Update {
	require.NoError(t, h.sampler.Start())
	u := h.next(t)
	assert.Equal(t, Running, u.State)
	assert.Equal(t, StatusStarting, u.View.Status)
	h.provider.respond(t, r)
	return h.next(t)
}

func TestSampler_StartSamplesImmediately(t *testing.T) {
	h := newHarness(t)

	u := h.start(t, ok(1000, 10, 0, 0))

	assert.Equal(t, int32(1), h.provider.calls.Load())
	assert.True(t, h.scheduler.Armed())
	assert.Equal(t, DefaultInterval, h.scheduler.last().interval)
	assert.Equal(t, Healthy, u.Health)
	assert.Equal(t, StatusMonitoring, u.View.Status)
	require.NotNil(t, u.View.Totals)
	assert.Equal(t, int64(1000), u.View.Totals.DOMNodes)
	assert.Nil(t, u.View.Rates)
	assert.Empty(t, u.View.Points, "no point before rates exist")

	u = h.sample(t, 5*time.Second, ok(1050, 16, 1, 0))
	require.Len(t, u.View.Points, 1)
	p := u.View.Points[0]
	assert.InDelta(t, 72, p.ResourcePerMin, 1e-9)
	assert.InDelta(t, 12, p.ErrorPerMin, 1e-9)
	assert.Equal(t, float64(0), p.LongTaskPerMin)
	assert.Equal(t, 53, p.Stress)
	assert.Equal(t, t0.Add(5*time.Second), p.Timestamp)
	require.NotNil(t, u.View.Baseline)
	assert.Equal(t, int64(1000), *u.View.Baseline)

	runs := h.audit.kinds(audit.KindRun)
	require.Len(t, runs, 1)
	assert.Equal(t, "Monitoring started.", runs[0].Message)
	assert.Equal(t, int64(5000), runs[0].Meta["pollMs"])
}

func TestSampler_StartTwiceIsNoop(t *testing.T) {
	h := newHarness(t)
	h.start(t, ok(1000, 10, 0, 0))
	h.sample(t, 5*time.Second, ok(1050, 16, 1, 0))

	err := h.sampler.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.Len(t, h.model.Points(), 1)
	b, ok := h.model.Baseline()
	assert.True(t, ok)
	assert.Equal(t, int64(1000), b)
	assert.Equal(t, int32(2), h.provider.calls.Load())
}

func TestSampler_RestartClearsHistory(t *testing.T) {
	h := newHarness(t)
	h.start(t, ok(1000, 10, 0, 0))
	h.sample(t, 5*time.Second, ok(1050, 16, 1, 0))

	require.NoError(t, h.sampler.Stop())
	u := h.next(t)
	assert.Equal(t, Idle, u.State)
	assert.False(t, u.View.Enabled)
	assert.Equal(t, StatusIdle, u.View.Status)
	assert.Len(t, u.View.Points, 1, "history stays readable after stop")
	assert.False(t, h.scheduler.Armed())

	h.clock.Set(t0.Add(time.Minute))
	u = h.start(t, ok(400, 90, 3, 1))
	assert.Empty(t, u.View.Points)
	assert.Nil(t, u.View.Rates, "rates are derived again within the new run")
	require.NotNil(t, u.View.Baseline)
	assert.Equal(t, int64(400), *u.View.Baseline)
}

func TestSampler_BusyGuard(t *testing.T) {
	h := newHarness(t)
	h.busy.Store(true)

	assert.ErrorIs(t, h.sampler.Start(), ErrBusy)
	assert.Equal(t, StatusBusy, h.model.Status())
	assert.Equal(t, Idle, h.sampler.State())
	assert.Equal(t, int32(0), h.provider.calls.Load())

	h.busy.Store(false)
	h.start(t, ok(10, 0, 0, 0))

	h.busy.Store(true)
	assert.ErrorIs(t, h.sampler.Stop(), ErrBusy)
	assert.ErrorIs(t, h.sampler.Refresh(), ErrBusy)
	assert.Equal(t, Running, h.sampler.State())
	assert.True(t, h.scheduler.Armed())
}

func TestSampler_FailureKeepsPolling(t *testing.T) {
	h := newHarness(t)
	h.start(t, ok(1000, 10, 0, 0))
	h.sample(t, 5*time.Second, ok(1050, 16, 1, 0))

	u := h.sample(t, 10*time.Second, response{err: errors.New("connection refused")})
	assert.Equal(t, Degraded, u.Health)
	assert.Equal(t, StatusCollectionFailed, u.View.Status)
	var ce *snapshot.CollectionError
	assert.True(t, errors.As(u.Err, &ce))
	assert.Len(t, u.View.Points, 1, "history intact")
	require.NotNil(t, u.View.Totals)
	assert.Equal(t, int64(1050), u.View.Totals.DOMNodes, "totals intact")
	assert.True(t, h.scheduler.Armed())

	u = h.sample(t, 15*time.Second, response{snap: &snapshot.Snapshot{OK: false, Error: "document detached"}})
	assert.Equal(t, Degraded, u.Health)
	assert.Equal(t, StatusSnapshotError, u.View.Status)
	var se *snapshot.SnapshotError
	require.True(t, errors.As(u.Err, &se))
	assert.Equal(t, "document detached", se.Message)

	errs := h.audit.kinds(audit.KindError)
	require.Len(t, errs, 2)
	assert.Equal(t, "connection refused", errs[0].Error)
	assert.False(t, errs[0].OK)
	assert.Equal(t, "document detached", errs[1].Error)
	assert.Len(t, h.debug.kinds(audit.KindError), 2)

	u = h.sample(t, 20*time.Second, ok(1100, 20, 1, 0))
	assert.Equal(t, Healthy, u.Health)
	assert.Equal(t, StatusMonitoring, u.View.Status)
	assert.Len(t, u.View.Points, 2)
	assert.Equal(t, int32(5), h.provider.calls.Load())
}

func TestSampler_AtMostOneInFlight(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sampler.Start())
	h.next(t)

	// the immediate sample is still pending
	h.scheduler.Fire()
	h.scheduler.Fire()
	assert.ErrorIs(t, h.sampler.Refresh(), ErrInFlight)

	h.provider.respond(t, ok(1, 1, 0, 0))
	h.next(t)
	assert.Equal(t, int32(1), h.provider.calls.Load())
	assert.NotEmpty(t, h.debug.kinds(audit.KindDebug))

	h.sample(t, 5*time.Second, ok(2, 2, 0, 0))
	assert.Equal(t, int32(2), h.provider.calls.Load())
}

func TestSampler_Refresh(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.sampler.Refresh(), ErrNotRunning)

	h.start(t, ok(1000, 10, 0, 0))

	h.clock.Set(t0.Add(2 * time.Second))
	require.NoError(t, h.sampler.Refresh())
	h.provider.respond(t, ok(1000, 12, 0, 0))
	u := h.next(t)
	require.NotNil(t, u.View.Rates)
	assert.InDelta(t, 60, u.View.Rates.ResourcePerMin, 1e-9)
}

func TestSampler_StopDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sampler.Start())
	h.next(t)

	require.NoError(t, h.sampler.Stop())
	h.next(t)
	assert.ErrorIs(t, h.sampler.Stop(), ErrNotRunning)

	h.provider.respond(t, ok(999, 1, 1, 1))
	h.sampler.wg.Wait()

	_, ok := h.model.Totals()
	assert.False(t, ok, "late result must be discarded")
	assert.Equal(t, StatusIdle, h.model.Status())
	assert.Len(t, h.audit.kinds(audit.KindRun), 2)
}

func TestSampler_RestartSamplesOnceStaleRequestReturns(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sampler.Start())
	h.next(t)
	require.NoError(t, h.sampler.Stop())
	h.next(t)

	// the request of the first run is still pending
	require.NoError(t, h.sampler.Start())
	u := h.next(t)
	assert.Equal(t, StatusStarting, u.View.Status)
	assert.Equal(t, int32(1), h.provider.calls.Load())

	h.provider.respond(t, ok(999, 1, 1, 1))
	h.provider.respond(t, ok(1000, 10, 0, 0))

	u = h.next(t)
	assert.True(t, u.Collected)
	assert.Equal(t, StatusMonitoring, u.View.Status)
	require.NotNil(t, u.View.Totals)
	assert.Equal(t, int64(1000), u.View.Totals.DOMNodes)
	assert.Equal(t, int32(2), h.provider.calls.Load())
}

func TestSampler_UpdatesAreDeliveredInOrder(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var seen []Update
	h.sampler.OnUpdate(func(u Update) {
		if !u.Collected {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, u)
	})

	// answer the immediate sample while the start update is still being delivered
	answered := make(chan struct{})
	go func() {
		defer close(answered)
		select {
		case h.provider.responses <- ok(1000, 10, 0, 0):
		case <-time.After(5 * time.Second):
		}
	}()
	require.NoError(t, h.sampler.Start())
	<-answered
	h.next(t)
	h.next(t)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, seen[0].Collected)
	assert.Equal(t, StatusStarting, seen[0].View.Status)
	assert.True(t, seen[1].Collected)
	assert.Equal(t, StatusMonitoring, seen[1].View.Status)
	assert.Equal(t, seen[0].Seq+1, seen[1].Seq)
}

func TestSampler_SinksRunOutsideTheLock(t *testing.T) {
	scheduler := &manualScheduler{}
	var skipped atomic.Int32
	var s *Sampler
	s = New(model.New(model.DefaultMaxPoints), newScriptedProvider(),
		WithScheduler(scheduler),
		WithDebugSink(audit.SinkFunc(func(e audit.Event) {
			_ = s.State()
			if strings.HasSuffix(e.Message, "skipped: collection in flight") {
				skipped.Add(1)
			}
		})),
	)
	t.Cleanup(s.Close)
	require.NoError(t, s.Start())

	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Fire()
		assert.ErrorIs(t, s.Refresh(), ErrInFlight)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("debug sink blocked on the sampler lock")
	}
	assert.Equal(t, int32(2), skipped.Load())
}

func TestSampler_MalformedCountersAreCoerced(t *testing.T) {
	h := newHarness(t)

	u := h.start(t, response{snap: &snapshot.Snapshot{
		OK:            true,
		DOMNodes:      math.NaN(),
		ResourceCount: "abc",
		ErrorCount:    float64(2),
		LongTaskCount: math.Inf(1),
	}})

	assert.Equal(t, Healthy, u.Health)
	assert.Nil(t, u.Err)
	require.NotNil(t, u.View.Totals)
	assert.Equal(t, model.Totals{ErrorCount: 2}, *u.View.Totals)
	assert.Empty(t, h.audit.kinds(audit.KindError))

	var found bool
	for _, e := range h.debug.kinds(audit.KindDebug) {
		if fields, ok := e.Meta["fields"].([]string); ok {
			assert.Equal(t, []string{"domNodes", "resourceCount", "longTaskCount"}, fields)
			found = true
		}
	}
	assert.True(t, found)
}

func TestSampler_Close(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sampler.Start())
	h.next(t)

	h.sampler.Close()
	h.sampler.Close()
	h.sampler.wg.Wait()

	assert.False(t, h.scheduler.Armed())
	assert.Equal(t, Idle, h.sampler.State())
	assert.ErrorIs(t, h.sampler.Start(), ErrClosed)
	_, ok := h.model.Totals()
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	totals, malformed := Validate(&snapshot.Snapshot{OK: true, DOMNodes: float64(5), ResourceCount: "7", ErrorCount: float64(1), LongTaskCount: float64(0)})
	assert.Nil(t, malformed)
	assert.Equal(t, model.Totals{DOMNodes: 5, ResourceCount: 7, ErrorCount: 1}, totals)
}

func TestTickerScheduler(t *testing.T) {
	var count atomic.Int32
	task := TickerScheduler{}.Every(5*time.Millisecond, func() { count.Add(1) })

	require.Eventually(t, func() bool { return count.Load() >= 2 }, 2*time.Second, time.Millisecond)

	task.Cancel()
	task.Cancel()
	time.Sleep(20 * time.Millisecond)
	stopped := count.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, count.Load())
}
