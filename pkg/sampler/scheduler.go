package sampler

import (
	"sync"
	"time"
)

// Task is a handle on a repeating job. Cancel is idempotent.
type Task interface {
	Cancel()
}

// Scheduler runs fn every interval until the returned task is cancelled.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Task
}

// TickerScheduler schedules jobs on a time.Ticker goroutine.
type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) Task {
	task := &tickerTask{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-task.stop:
				return
			}
		}
	}()

	return task
}

type tickerTask struct {
	once sync.Once
	stop chan struct{}
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() {
		close(t.stop)
	})
}
