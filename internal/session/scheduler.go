package session

import (
	"sync"
	"time"
)

// Task is a handle on a repeating job.
type Task interface {
	Cancel()
}

// Scheduler runs fn every interval until the returned Task is cancelled. The
// first run happens one interval after scheduling.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Task
}

// TickerScheduler backs each task with a time.Ticker and its own goroutine.
type TickerScheduler struct{}

func (TickerScheduler) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

type tickerTask struct {
	once sync.Once
	stop chan struct{}
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() { close(t.stop) })
}
