// Package retryqueue tracks failed dispatches in memory with exponential
// backoff. Entries are intentionally transient: the content item's persisted
// status is the source of truth, so losing the queue on restart is acceptable.
package retryqueue

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Entry wraps one failed content item with its retry bookkeeping.
type Entry struct {
	ContentID   string    `json:"content_id"`
	RetryCount  int       `json:"retry_count"`
	LastAttempt time.Time `json:"last_attempt"`
	NextRetryAt time.Time `json:"next_retry_at"`
	Errors      []string  `json:"errors"`
	AddedAt     time.Time `json:"added_at"`
}

type Options struct {
	InitialDelay    time.Duration
	Multiplier      float64
	MaxDelay        time.Duration
	MaxSize         int
	StaleAfter      time.Duration
	MaxErrorHistory int
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = 5 * time.Second
	}
	if o.Multiplier <= 1 {
		o.Multiplier = 2
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = time.Minute
	}
	if o.MaxSize <= 0 {
		o.MaxSize = 200
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 24 * time.Hour
	}
	if o.MaxErrorHistory <= 0 {
		o.MaxErrorHistory = 5
	}
	return o
}

// Queue is safe for concurrent use, though in practice all mutation happens
// on the scheduler's single control flow.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*Entry
	opts    Options
	now     func() time.Time
}

func New(opts Options) *Queue {
	return &Queue{
		entries: make(map[string]*Entry),
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (q *Queue) SetNowFunc(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Backoff returns the delay before the next attempt for a given retry count:
// initialDelay * multiplier^retryCount, capped at maxDelay.
func (q *Queue) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(q.opts.InitialDelay) * math.Pow(q.opts.Multiplier, float64(retryCount))
	if delay > float64(q.opts.MaxDelay) {
		return q.opts.MaxDelay
	}
	return time.Duration(delay)
}

// RecordFailure inserts or updates the entry for a content item and returns
// the updated snapshot.
func (q *Queue) RecordFailure(contentID, errMsg string) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	e, ok := q.entries[contentID]
	if !ok {
		e = &Entry{ContentID: contentID, AddedAt: now}
		q.entries[contentID] = e
	}

	e.NextRetryAt = now.Add(q.Backoff(e.RetryCount))
	e.RetryCount++
	e.LastAttempt = now
	e.Errors = append(e.Errors, errMsg)
	if len(e.Errors) > q.opts.MaxErrorHistory {
		e.Errors = e.Errors[len(e.Errors)-q.opts.MaxErrorHistory:]
	}

	q.clampLocked(now)
	return *e
}

// Remove drops the entry after a successful dispatch or an operator clear.
func (q *Queue) Remove(contentID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, contentID)
}

func (q *Queue) Get(contentID string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[contentID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ReadyForRetry reports whether an item may be attempted now. Items without
// an entry have never failed and are always ready.
func (q *Queue) ReadyForRetry(contentID string, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[contentID]
	if !ok {
		return true
	}
	return !now.Before(e.NextRetryAt)
}

// Due returns entries whose backoff has elapsed, oldest first.
func (q *Queue) Due(now time.Time) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Entry
	for _, e := range q.entries {
		if !now.Before(e.NextRetryAt) {
			due = append(due, *e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].AddedAt.Before(due[j].AddedAt) })
	return due
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// ClearStale evicts entries older than the staleness threshold and returns
// how many were removed.
func (q *Queue) ClearStale() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	removed := 0
	for id, e := range q.entries {
		if now.Sub(e.AddedAt) > q.opts.StaleAfter {
			delete(q.entries, id)
			removed++
		}
	}
	return removed
}

// Snapshot returns all entries sorted by next retry time.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	return out
}

// clampLocked evicts oldest entries while the queue exceeds its size bound.
func (q *Queue) clampLocked(now time.Time) {
	for len(q.entries) > q.opts.MaxSize {
		oldestID := ""
		var oldestAt time.Time
		for id, e := range q.entries {
			if oldestID == "" || e.AddedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = e.AddedAt
			}
		}
		delete(q.entries, oldestID)
	}
}
