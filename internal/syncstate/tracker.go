// Package syncstate tracks the connectivity and synchronization status of
// a device.  It holds state only and performs no I/O.
package syncstate

import (
	"sync"
	"time"
)

// Status is an immutable view of the tracker.
type Status struct {
	Online    bool      `json:"online"`
	Syncing   bool      `json:"syncing"`
	LastSync  time.Time `json:"lastSync"`
	LastError string    `json:"lastError,omitempty"`
	// Failures counts consecutive failed syncs.
	Failures int `json:"failures"`
}

// Tracker records sync attempts.  The zero value is ready to use and
// starts online.
type Tracker struct {
	mu       sync.Mutex
	offline  bool
	inFlight int
	last     time.Time
	lastErr  string
	failures int
	now      func() time.Time
}

// New returns a tracker using now as its clock; nil means time.Now.
func New(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// Begin marks a sync as started.  Every Begin must be paired with End.
func (t *Tracker) Begin() {
	t.mu.Lock()
	t.inFlight++
	t.mu.Unlock()
}

// End marks a sync as finished.  A nil err records a successful sync;
// offline reports whether the failure was a connectivity failure.
func (t *Tracker) End(err error, offline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inFlight > 0 {
		t.inFlight--
	}
	if err == nil {
		t.offline = false
		t.last = t.clock()
		t.lastErr = ""
		t.failures = 0
		return
	}
	t.lastErr = err.Error()
	t.failures++
	if offline {
		t.offline = true
	}
}

// SetOnline overrides connectivity, e.g. from a transport callback.
func (t *Tracker) SetOnline(online bool) {
	t.mu.Lock()
	t.offline = !online
	t.mu.Unlock()
}

// Status returns the current state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Online:    !t.offline,
		Syncing:   t.inFlight > 0,
		LastSync:  t.last,
		LastError: t.lastErr,
		Failures:  t.failures,
	}
}
