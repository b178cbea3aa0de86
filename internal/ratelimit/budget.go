package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// QueryBudget caps query submissions per workgroup within a time window, a
// guard against agent loops resubmitting expensive scans.
type QueryBudget struct {
	mu     sync.Mutex
	counts map[string]*windowCounter

	maxPerWindow int
	windowSize   time.Duration
	now          func() time.Time
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// NewQueryBudget creates a budget limiter.
// maxPerWindow limits submissions per workgroup within windowSize.
func NewQueryBudget(maxPerWindow int, windowSize time.Duration) *QueryBudget {
	return &QueryBudget{
		counts:       make(map[string]*windowCounter),
		maxPerWindow: maxPerWindow,
		windowSize:   windowSize,
		now:          time.Now,
	}
}

// Check returns an error if the workgroup has exhausted its submissions for
// the current window.
func (b *QueryBudget) Check(workgroup string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	wc, ok := b.counts[workgroup]
	if !ok || b.now().After(wc.windowEnd) {
		return nil // no window or expired window
	}
	if wc.count >= b.maxPerWindow {
		return fmt.Errorf("query budget exceeded: workgroup %s (%d/%d in window)",
			workgroup, wc.count, b.maxPerWindow)
	}
	return nil
}

// Record counts one submission against the workgroup.
func (b *QueryBudget) Record(workgroup string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wc, ok := b.counts[workgroup]
	if !ok || b.now().After(wc.windowEnd) {
		b.counts[workgroup] = &windowCounter{
			count:     1,
			windowEnd: b.now().Add(b.windowSize),
		}
		return
	}
	wc.count++
}
