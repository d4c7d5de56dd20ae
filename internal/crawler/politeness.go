package crawler

import (
	"context"
	"sync"
	"time"
)

// visitTracker guards against two concurrent visits of the same URL.
type visitTracker interface {
	MarkIfNew(url string) bool
	Release(url string)
}

type concurrentVisitTracker struct {
	seen sync.Map
}

func newConcurrentVisitTracker() *concurrentVisitTracker {
	return &concurrentVisitTracker{}
}

// MarkIfNew stores the URL if it is not already in flight and returns true.
func (t *concurrentVisitTracker) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

// Release forgets url once its visit has finished.
func (t *concurrentVisitTracker) Release(url string) {
	t.seen.Delete(url)
}

// pauseController abstracts how the walker waits between requests.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
