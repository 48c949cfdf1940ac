// Package traffic keeps sliding windows of upstream call outcomes and
// rate-limit denials. /health reads them to decide whether an upstream is
// degraded.
package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long outcomes are kept regardless of the window asked for.
const maxAge = 5 * time.Minute

var defaultTracker = NewTracker()

// RecordSuccess records a successful call to api.
func RecordSuccess(api string) {
	defaultTracker.RecordSuccess(api)
}

// RecordError records a failed call to api (upstream error, timeout, open breaker).
func RecordError(api string) {
	defaultTracker.RecordError(api)
}

// RecordDenied records a rate-limit denial (429) served to a client.
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// ErrorRate returns (errorCount, totalCount) for api within the window.
func ErrorRate(api string, window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(api, window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

type outcomes struct {
	successes []time.Time
	errors    []time.Time
}

// Tracker maintains sliding windows of outcome timestamps per upstream.
type Tracker struct {
	mu     sync.Mutex
	now    func() time.Time
	apis   map[string]*outcomes
	denied []time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, apis: make(map[string]*outcomes)}
}

// RecordSuccess records a successful call to api.
func (t *Tracker) RecordSuccess(api string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomesLocked(api)
	o.successes = append(o.successes, t.now())
	t.pruneLocked()
}

// RecordError records a failed call to api.
func (t *Tracker) RecordError(api string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomesLocked(api)
	o.errors = append(o.errors, t.now())
	t.pruneLocked()
}

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.denied = append(t.denied, t.now())
	t.pruneLocked()
}

// ErrorRate returns (errorCount, totalCount) for api within the window.
// Denials are not calls and are excluded.
func (t *Tracker) ErrorRate(api string, window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.apis[api]
	if !ok {
		return 0, 0
	}
	cutoff := t.now().Add(-window)
	errCount := countSince(o.errors, cutoff)
	return errCount, errCount + countSince(o.successes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.denied, t.now().Add(-window))
}

// Reset clears every window.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apis = make(map[string]*outcomes)
	t.denied = nil
}

func (t *Tracker) outcomesLocked(api string) *outcomes {
	o, ok := t.apis[api]
	if !ok {
		o = &outcomes{}
		t.apis[api] = o
	}
	return o
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked() {
	cutoff := t.now().Add(-maxAge)
	prune := func(times []time.Time) []time.Time {
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			return append(times[:0], times[i:]...)
		}
		return times
	}
	for _, o := range t.apis {
		o.successes = prune(o.successes)
		o.errors = prune(o.errors)
	}
	t.denied = prune(t.denied)
}
