// Package store is the domain store of a device: the single in-memory
// mirror of the venue list and of the per-venue data bundles, plus the
// narrow mutation API every other component goes through.
//
// Readers get immutable snapshots.  Every write computes a complete new
// snapshot and publishes it with one atomic swap, so a reader never sees
// a half-applied update.  Writes are applied in the order their remote
// round trips complete; overlapping edits are last-writer-wins.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/childcare-checkin/internal/model"
	"github.com/iliyamo/childcare-checkin/internal/prefs"
	"github.com/iliyamo/childcare-checkin/internal/remote"
	"github.com/iliyamo/childcare-checkin/internal/retention"
	"github.com/iliyamo/childcare-checkin/internal/syncstate"
)

// Config holds the tunables of a Store.
type Config struct {
	DeviceID            string
	ServiceHistoryLimit int
	UsageDayLimit       int
	DefaultMaxOccupancy int
	SelectionTTL        time.Duration
	SweepEnabled        bool
	// BackgroundTimeout bounds fire-and-forget writes such as usage-day
	// snapshots.
	BackgroundTimeout time.Duration
	// LoadTimeout bounds a shared venue load, independent of the caller
	// that started it.
	LoadTimeout time.Duration
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		DeviceID:            "default",
		ServiceHistoryLimit: remote.ServiceHistoryLimit,
		UsageDayLimit:       remote.UsageDayLimit,
		DefaultMaxOccupancy: model.DefaultMaxOccupancy,
		SelectionTTL:        12 * time.Hour,
		SweepEnabled:        true,
		BackgroundTimeout:   10 * time.Second,
		LoadTimeout:         15 * time.Second,
	}
}

// Snapshot is an immutable view of the store.  Nothing reachable from a
// published snapshot is ever modified.
type Snapshot struct {
	Version       uint64
	Venues        []model.Venue
	ActiveVenueID string
	Data          map[string]*model.VenueData
	Loading       bool
	// Err is the last load/activation failure, cleared by the next
	// successful load.  A VenueNotFound error means the active venue
	// vanished and the device must reload.
	Err error
}

// Active returns the bundle of the active venue, nil if none is loaded.
func (s *Snapshot) Active() *model.VenueData {
	if s == nil || s.ActiveVenueID == "" {
		return nil
	}
	return s.Data[s.ActiveVenueID]
}

// Venue looks up a venue in the list.
func (s *Snapshot) Venue(id string) (model.Venue, bool) {
	for _, v := range s.Venues {
		if v.ID == id {
			return v, true
		}
	}
	return model.Venue{}, false
}

func (s *Snapshot) clone() *Snapshot {
	next := *s
	next.Venues = append([]model.Venue(nil), s.Venues...)
	next.Data = make(map[string]*model.VenueData, len(s.Data))
	for k, v := range s.Data {
		next.Data[k] = v
	}
	return &next
}

// Store is the domain store.  It is safe for concurrent use.
type Store struct {
	remote  remote.Store
	prefs   prefs.Store
	tracker *syncstate.Tracker
	sweeper *retention.Sweeper
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex // serializes snapshot writers
	state    atomic.Pointer[Snapshot]
	inFlight int

	loads       singleflight.Group
	sweepNotice atomic.Bool

	obsMu     sync.Mutex
	observers map[int]func(*Snapshot)
	nextObs   int

	usageMu sync.Mutex
	bg      sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Store) { s.cfg = cfg }
}

// WithPrefs persists the venue selection in p.
func WithPrefs(p prefs.Store) Option {
	return func(s *Store) { s.prefs = p }
}

// WithTracker reports sync attempts to t.
func WithTracker(t *syncstate.Tracker) Option {
	return func(s *Store) { s.tracker = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for check-in times and "today".
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a store over r.
func New(r remote.Store, opts ...Option) *Store {
	s := &Store{
		remote:    r,
		logger:    zap.NewNop(),
		cfg:       DefaultConfig(),
		now:       time.Now,
		observers: make(map[int]func(*Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prefs == nil {
		s.prefs = prefs.NewMemoryStore(s.now)
	}
	if s.tracker == nil {
		s.tracker = syncstate.New(s.now)
	}
	sweepOpts := []retention.Option{retention.WithClock(s.now), retention.WithLogger(s.logger)}
	if !s.cfg.SweepEnabled {
		sweepOpts = append(sweepOpts, retention.Disabled())
	}
	s.sweeper = retention.NewSweeper(r, s.PurgeVenueData, sweepOpts...)
	s.state.Store(&Snapshot{Data: map[string]*model.VenueData{}})
	return s
}

// Snapshot returns the current immutable state.
func (s *Store) Snapshot() *Snapshot { return s.state.Load() }

// Tracker returns the sync state tracker fed by this store.
func (s *Store) Tracker() *syncstate.Tracker { return s.tracker }

// Subscribe registers fn to be called with every new snapshot.  fn runs
// on the writer's goroutine after the swap; it may read the store but
// should hand heavy work off.  The returned func cancels the observer.
func (s *Store) Subscribe(fn func(*Snapshot)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// update computes the next snapshot from the current one and publishes it.
func (s *Store) update(fn func(next *Snapshot)) *Snapshot {
	s.mu.Lock()
	next := s.state.Load().clone()
	fn(next)
	next.Version++
	next.Loading = s.inFlight > 0
	s.state.Store(next)
	s.mu.Unlock()

	s.obsMu.Lock()
	obs := make([]func(*Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		obs = append(obs, fn)
	}
	s.obsMu.Unlock()
	for _, fn := range obs {
		fn(next)
	}
	return next
}

// patchVenue replaces the bundle of venueID, if loaded, with the result of
// fn applied to a private copy.
func (s *Store) patchVenue(venueID string, fn func(d *model.VenueData)) {
	s.update(func(next *Snapshot) {
		cur, ok := next.Data[venueID]
		if !ok {
			return
		}
		d := cur.Clone()
		fn(d)
		next.Data[venueID] = d
	})
}

func (s *Store) today() string { return model.LocalDate(s.now().Local()) }

// TakeSweepNotice reports whether a retention sweep purged data since the
// last call.  The notice is consumed: a second call returns false until
// another sweep purges.
func (s *Store) TakeSweepNotice() bool { return s.sweepNotice.Swap(false) }

// Wait blocks until fire-and-forget background writes have finished.
func (s *Store) Wait() { s.bg.Wait() }

// Close waits for background writes.
func (s *Store) Close() error {
	s.bg.Wait()
	return nil
}
