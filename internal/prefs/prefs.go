// Package prefs stores small typed per-device preferences.  The only
// preference today is the selected venue, which survives restarts of the
// device agent until it expires.
package prefs

import (
	"context"
	"sync"
	"time"
)

// Selection is the persisted venue selection of a device.
type Selection struct {
	VenueID    string    `json:"venueId"`
	SelectedAt time.Time `json:"selectedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the selection is no longer valid at now.  A zero
// ExpiresAt never expires.
func (s Selection) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// NewSelection builds a selection made at now that lives for ttl.
func NewSelection(venueID string, now time.Time, ttl time.Duration) Selection {
	s := Selection{VenueID: venueID, SelectedAt: now}
	if ttl > 0 {
		s.ExpiresAt = now.Add(ttl)
	}
	return s
}

// Store persists selections per device.
type Store interface {
	LoadSelection(ctx context.Context, deviceID string) (Selection, bool, error)
	SaveSelection(ctx context.Context, deviceID string, s Selection) error
	ClearSelection(ctx context.Context, deviceID string) error
}

// MemoryStore keeps selections in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	sel map[string]Selection
	now func() time.Time
}

// NewMemoryStore returns an empty store; now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{sel: make(map[string]Selection), now: now}
}

func (m *MemoryStore) LoadSelection(_ context.Context, deviceID string) (Selection, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sel[deviceID]
	if !ok {
		return Selection{}, false, nil
	}
	if s.Expired(m.now()) {
		delete(m.sel, deviceID)
		return Selection{}, false, nil
	}
	return s, true, nil
}

func (m *MemoryStore) SaveSelection(_ context.Context, deviceID string, s Selection) error {
	m.mu.Lock()
	m.sel[deviceID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ClearSelection(_ context.Context, deviceID string) error {
	m.mu.Lock()
	delete(m.sel, deviceID)
	m.mu.Unlock()
	return nil
}
