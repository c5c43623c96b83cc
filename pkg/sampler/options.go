package sampler

import (
	"time"

	"github.com/voluzi/pagepulse/pkg/audit"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultScope    = "overview"
)

// BusyGuard reports whether another long-running operation currently owns the tool.
type BusyGuard interface {
	Busy() bool
}

// BusyFunc adapts a function to a BusyGuard.
type BusyFunc func() bool

func (f BusyFunc) Busy() bool {
	return f()
}

// NeverBusy never blocks state transitions.
var NeverBusy BusyGuard = BusyFunc(func() bool { return false })

func defaultOptions() *Options {
	return &Options{
		Interval:  DefaultInterval,
		Scheduler: TickerScheduler{},
		Clock:     time.Now,
		Busy:      NeverBusy,
		Audit:     audit.Discard,
		Debug:     audit.Discard,
		Scope:     DefaultScope,
	}
}

type Options struct {
	Interval  time.Duration
	Scheduler Scheduler
	Clock     func() time.Time
	Busy      BusyGuard
	Audit     audit.Sink
	Debug     audit.Sink
	Scope     string
}

type Option func(*Options)

func WithInterval(d time.Duration) Option {
	return func(opts *Options) {
		if d > 0 {
			opts.Interval = d
		}
	}
}

func WithScheduler(s Scheduler) Option {
	return func(opts *Options) {
		opts.Scheduler = s
	}
}

func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

func WithBusyGuard(g BusyGuard) Option {
	return func(opts *Options) {
		opts.Busy = g
	}
}

func WithAuditSink(s audit.Sink) Option {
	return func(opts *Options) {
		opts.Audit = s
	}
}

func WithDebugSink(s audit.Sink) Option {
	return func(opts *Options) {
		opts.Debug = s
	}
}

func WithScope(scope string) Option {
	return func(opts *Options) {
		opts.Scope = scope
	}
}
