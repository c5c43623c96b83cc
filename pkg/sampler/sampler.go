package sampler

import (
	"context"
	"sync"
	"time"

	"emperror.dev/errors"

	"github.com/voluzi/pagepulse/pkg/audit"
	"github.com/voluzi/pagepulse/pkg/model"
	"github.com/voluzi/pagepulse/pkg/snapshot"
)

type State string

const (
	Idle    State = "idle"
	Running State = "running"
)

type Health string

const (
	Healthy  Health = "healthy"
	Degraded Health = "degraded"
)

// Status texts shown to the user.
const (
	StatusIdle             = "Idle"
	StatusStarting         = "Starting…"
	StatusMonitoring       = "Monitoring"
	StatusBusy             = "Busy"
	StatusCollectionFailed = "Collection failed"
	StatusSnapshotError    = "Snapshot error"
)

const (
	ErrBusy           = errors.Sentinel("another operation is in progress")
	ErrAlreadyRunning = errors.Sentinel("sampler already running")
	ErrNotRunning     = errors.Sentinel("sampler not running")
	ErrInFlight       = errors.Sentinel("a collection request is already in flight")
	ErrClosed         = errors.Sentinel("sampler closed")
)

// Update is published to listeners after every state transition and every applied
// collection outcome.
type Update struct {
	State  State
	Health Health
	View   model.View
	// Collected is set when the update carries the outcome of a collection.
	Collected bool
	// Err is the failure of the collection that produced this update, if any.
	Err error
	// Seq increases by one with every update. Listeners see updates in Seq order.
	Seq uint64
}

// Sampler polls a snapshot provider on a fixed interval and feeds the model. At most one
// collection request is outstanding at any time.
type Sampler struct {
	mu sync.Mutex

	model    *model.Model
	provider snapshot.Provider
	opts     *Options

	ctx    context.Context
	cancel context.CancelFunc

	running  bool
	closed   bool
	task     Task
	inFlight bool
	// pending is set when the immediate sample of Start had to wait for a stale request.
	pending    bool
	generation uint64
	health     Health
	seq        uint64

	listeners []func(Update)
	wg        sync.WaitGroup

	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	delivered  uint64
}

func New(m *model.Model, provider snapshot.Provider, opts ...Option) *Sampler {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sampler{
		model:    m,
		provider: provider,
		opts:     options,
		ctx:      ctx,
		cancel:   cancel,
		health:   Healthy,
	}
	s.notifyCond = sync.NewCond(&s.notifyMu)
	return s
}

// OnUpdate registers fn to be called after every update. fn runs outside the sampler lock,
// one update at a time and in order; it must not call Start, Stop or Refresh.
func (s *Sampler) OnUpdate(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Sampler) Model() *model.Model {
	return s.model
}

func (s *Sampler) Interval() time.Duration {
	return s.opts.Interval
}

func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Sampler) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *Sampler) stateLocked() State {
	if s.running {
		return Running
	}
	return Idle
}

// Start resets history and baseline, samples immediately and arms the periodic task.
func (s *Sampler) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.opts.Busy.Busy() {
		s.model.SetStatus(StatusBusy)
		s.mu.Unlock()
		return ErrBusy
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.running = true
	s.generation++
	s.health = Healthy

	s.model.ClearPoints()
	s.model.ClearBaseline()
	s.model.ResetRates()
	s.model.SetEnabled(true)
	s.model.SetStatus(StatusStarting)

	// a request left over from the previous run holds the slot; sample once it returns
	deferred := !s.issueLocked()
	s.pending = deferred
	s.task = s.opts.Scheduler.Every(s.opts.Interval, s.tick)

	update, listeners := s.updateLocked(false, nil)
	s.mu.Unlock()

	meta := map[string]any{"pollMs": s.opts.Interval.Milliseconds()}
	s.opts.Audit.Append(s.event(audit.KindRun, "Monitoring started.", true, meta, ""))
	s.opts.Debug.Append(s.event(audit.KindDebug, "polling:start", true, meta, ""))
	if deferred {
		s.opts.Debug.Append(s.event(audit.KindDebug, "immediate sample deferred: collection in flight", true, nil, ""))
	}
	s.notify(listeners, update)
	return nil
}

// Stop disarms the periodic task. Totals, rates and history stay readable.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	if s.opts.Busy.Busy() {
		s.model.SetStatus(StatusBusy)
		s.mu.Unlock()
		return ErrBusy
	}
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}

	s.haltLocked()
	update, listeners := s.updateLocked(false, nil)
	s.mu.Unlock()

	s.opts.Audit.Append(s.event(audit.KindRun, "Monitoring stopped.", true, nil, ""))
	s.opts.Debug.Append(s.event(audit.KindDebug, "polling:stop", true, nil, ""))
	s.notify(listeners, update)
	return nil
}

// Refresh issues one collection outside the timer cadence. It is a no-op while idle.
func (s *Sampler) Refresh() error {
	s.mu.Lock()
	if s.opts.Busy.Busy() {
		s.mu.Unlock()
		return ErrBusy
	}
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	issued := s.issueLocked()
	s.mu.Unlock()

	if !issued {
		s.skipped("refresh")
		return ErrInFlight
	}
	return nil
}

// Close tears the sampler down. Results of requests still in flight are discarded and the
// context handed to the provider is cancelled.
func (s *Sampler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.running {
		s.haltLocked()
	}
	s.generation++
	s.cancel()
}

func (s *Sampler) haltLocked() {
	s.running = false
	s.pending = false
	s.generation++
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
	s.model.SetEnabled(false)
	s.model.SetStatus(StatusIdle)
}

func (s *Sampler) tick() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	issued := s.issueLocked()
	s.mu.Unlock()

	if !issued {
		s.skipped("tick")
	}
}

func (s *Sampler) skipped(what string) {
	s.opts.Debug.Append(s.event(audit.KindDebug, what+" skipped: collection in flight", true, nil, ""))
}

// issueLocked starts a collection unless one is already outstanding.
func (s *Sampler) issueLocked() bool {
	if s.inFlight {
		return false
	}
	s.inFlight = true
	s.wg.Add(1)
	go s.collect(s.ctx, s.generation)
	return true
}

func (s *Sampler) collect(ctx context.Context, generation uint64) {
	defer s.wg.Done()

	snap, err := s.provider.Snapshot(ctx)
	now := s.opts.Clock()

	s.mu.Lock()
	s.inFlight = false
	if s.closed || !s.running || generation != s.generation {
		reissued := false
		if s.pending && s.running && !s.closed {
			s.pending = false
			reissued = s.issueLocked()
		}
		s.mu.Unlock()
		s.opts.Debug.Append(s.event(audit.KindDebug, "discarded result of a stale collection", true, nil, ""))
		if reissued {
			s.opts.Debug.Append(s.event(audit.KindDebug, "deferred immediate sample issued", true, nil, ""))
		}
		return
	}

	var events []audit.Event
	failure := s.classify(snap, err)
	if failure != nil {
		events = s.failLocked(failure)
	} else {
		events = s.applyLocked(now, snap)
	}
	update, listeners := s.updateLocked(true, failure)
	s.mu.Unlock()

	for _, e := range events {
		if e.Kind == audit.KindError {
			s.opts.Audit.Append(e)
		}
		s.opts.Debug.Append(e)
	}
	s.notify(listeners, update)
}

func (s *Sampler) classify(snap *snapshot.Snapshot, err error) error {
	if err != nil {
		var ce *snapshot.CollectionError
		if errors.As(err, &ce) {
			return ce
		}
		return &snapshot.CollectionError{Err: err}
	}
	if snap == nil || !snap.OK {
		msg := ""
		if snap != nil {
			msg = snap.Error
		}
		if msg == "" {
			msg = "unknown snapshot error"
		}
		return &snapshot.SnapshotError{Message: msg}
	}
	return nil
}

func (s *Sampler) failLocked(failure error) []audit.Event {
	s.health = Degraded

	var se *snapshot.SnapshotError
	if errors.As(failure, &se) {
		s.model.SetStatus(StatusSnapshotError)
		return []audit.Event{
			s.event(audit.KindError, "Metric snapshot from observed process returned an error.", false,
				map[string]any{"error": se.Message}, se.Message),
		}
	}

	errText := failure.Error()
	var ce *snapshot.CollectionError
	if errors.As(failure, &ce) && ce.Err != nil {
		errText = ce.Err.Error()
	}

	s.model.SetStatus(StatusCollectionFailed)
	return []audit.Event{
		s.event(audit.KindError, "Failed to read metrics from observed process.", false,
			map[string]any{"error": errText}, errText),
	}
}

func (s *Sampler) applyLocked(now time.Time, snap *snapshot.Snapshot) []audit.Event {
	var events []audit.Event

	totals, malformed := Validate(snap)
	if malformed != nil {
		events = append(events, s.event(audit.KindDebug, malformed.Error(), true,
			map[string]any{"fields": malformed.Fields}, ""))
	}

	s.model.SetSample(now, totals)

	if rates, ok := s.model.Rates(); ok {
		point := model.Point{
			Timestamp:      now,
			DOMNodes:       totals.DOMNodes,
			ResourcePerMin: rates.ResourcePerMin,
			ErrorPerMin:    rates.ErrorPerMin,
			LongTaskPerMin: rates.LongTaskPerMin,
			Stress:         model.StressOf(totals, rates),
		}
		s.model.PushPoint(point)
		events = append(events, s.event(audit.KindDebug, "point", true, map[string]any{
			"dom":        point.DOMNodes,
			"resPerMin":  point.ResourcePerMin,
			"errPerMin":  point.ErrorPerMin,
			"longPerMin": point.LongTaskPerMin,
			"stress":     point.Stress,
		}, ""))
	}

	s.health = Healthy
	s.model.SetStatus(StatusMonitoring)

	events = append(events, s.event(audit.KindDebug, "sample", true, map[string]any{
		"domNodes":      totals.DOMNodes,
		"resourceCount": totals.ResourceCount,
		"errorCount":    totals.ErrorCount,
		"longTaskCount": totals.LongTaskCount,
	}, ""))
	return events
}

// Validate coerces the raw counters of a successful snapshot into totals.
func Validate(snap *snapshot.Snapshot) (model.Totals, *snapshot.MalformedDataError) {
	var fields []string
	count := func(name string, v any) int64 {
		n, coerced := model.SafeCount(v)
		if coerced {
			fields = append(fields, name)
		}
		return n
	}

	totals := model.Totals{
		DOMNodes:      count("domNodes", snap.DOMNodes),
		ResourceCount: count("resourceCount", snap.ResourceCount),
		ErrorCount:    count("errorCount", snap.ErrorCount),
		LongTaskCount: count("longTaskCount", snap.LongTaskCount),
	}
	if len(fields) > 0 {
		return totals, &snapshot.MalformedDataError{Fields: fields}
	}
	return totals, nil
}

// updateLocked snapshots the state under the next sequence number. Every update it returns
// must be passed to notify, later updates wait for it.
func (s *Sampler) updateLocked(collected bool, err error) (Update, []func(Update)) {
	listeners := make([]func(Update), len(s.listeners))
	copy(listeners, s.listeners)
	s.seq++
	return Update{
		State:     s.stateLocked(),
		Health:    s.health,
		View:      s.model.View(),
		Collected: collected,
		Err:       err,
		Seq:       s.seq,
	}, listeners
}

func (s *Sampler) event(kind, message string, ok bool, meta map[string]any, errText string) audit.Event {
	return audit.Event{
		Time:    s.opts.Clock(),
		Kind:    kind,
		Scope:   s.opts.Scope,
		Message: message,
		OK:      ok,
		Meta:    meta,
		Error:   errText,
	}
}

// notify delivers u once every update with a lower Seq has been delivered.
func (s *Sampler) notify(listeners []func(Update), u Update) {
	s.notifyMu.Lock()
	for s.delivered+1 != u.Seq {
		s.notifyCond.Wait()
	}
	s.notifyMu.Unlock()

	for _, fn := range listeners {
		fn(u)
	}

	s.notifyMu.Lock()
	s.delivered = u.Seq
	s.notifyCond.Broadcast()
	s.notifyMu.Unlock()
}
