package changefeed

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of routine changes into one refresh.
const DefaultDebounce = time.Second

// Refresher reloads the device's view of the remote store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// EmergencyEvent announces a newly raised emergency flag.
type EmergencyEvent struct {
	VenueID       string    `json:"venueId"`
	ChildID       string    `json:"childId"`
	ChildName     string    `json:"childName"`
	GuardianName  string    `json:"guardianName"`
	GuardianPhone string    `json:"guardianPhone"`
	Timestamp     time.Time `json:"timestamp"`
}

// Subscriber keeps one subscription per venue-scoped table of the active
// venue plus the global venue list.  Raised emergencies refresh at once
// and are announced exactly once; every other change refreshes after a
// trailing debounce.
//
// A dropped feed is not retried here.  Polling keeps the device
// eventually consistent until the next activation resubscribes.
type Subscriber struct {
	broker    Broker
	refresher Refresher
	debounce  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	gen       uint64
	venueID   string
	subs      []Subscription
	timer     *time.Timer
	announced map[string]struct{}
	last      string
	listeners []func(EmergencyEvent)
	ctx       context.Context
	cancel    context.CancelFunc
	closed    bool
	wg        sync.WaitGroup
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithSubscriberLogger sets the logger.
func WithSubscriberLogger(l *zap.Logger) SubscriberOption {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSubscriber builds an inactive subscriber.
func NewSubscriber(b Broker, r Refresher, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		broker:    b,
		refresher: r,
		debounce:  DefaultDebounce,
		logger:    zap.NewNop(),
		announced: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ErrClosed is returned by Activate after Close.
var ErrClosed = errors.New("changefeed: subscriber closed")

// venueTables are the tables scoped to the active venue.
var venueTables = []Table{TableChildren, TableServices, TableSettings}

// OnEmergency registers fn for emergency events.  fn runs on the feed's
// delivery goroutine and must not block.
func (s *Subscriber) OnEmergency(fn func(EmergencyEvent)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Activate drops any previous subscriptions and subscribes for venueID.
// On failure no subscription is left behind.
func (s *Subscriber) Activate(ctx context.Context, venueID string) error {
	s.Deactivate()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	s.venueID = venueID
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	var subs []Subscription
	subscribe := func(table Table, scope string) error {
		sub, err := s.broker.Subscribe(ctx, table, scope, func(n Notification) { s.handle(gen, n) })
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}
	var err error
	for _, table := range venueTables {
		if err = subscribe(table, venueID); err != nil {
			break
		}
	}
	if err == nil {
		err = subscribe(TableVenues, "")
	}
	if err != nil {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
		s.Deactivate()
		s.logger.Warn("change feed unavailable, relying on polling",
			zap.String("venue_id", venueID), zap.Error(err))
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// Deactivated while subscribing.
		s.mu.Unlock()
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
		return nil
	}
	s.subs = subs
	s.mu.Unlock()
	s.logger.Debug("change feed subscribed", zap.String("venue_id", venueID), zap.Int("channels", len(subs)))
	return nil
}

// Deactivate unsubscribes every channel, cancels a pending debounce and
// waits for in-flight refreshes started by the feed.
func (s *Subscriber) Deactivate() {
	s.mu.Lock()
	s.gen++
	subs := s.subs
	s.subs = nil
	s.venueID = ""
	s.announced = make(map[string]struct{})
	s.last = ""
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}
	s.wg.Wait()
}

// Close deactivates the subscriber for good.
func (s *Subscriber) Close() error {
	s.Deactivate()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// VenueID returns the venue currently subscribed to.
func (s *Subscriber) VenueID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.venueID
}

// LastEmergencyID returns the child id of the most recently announced
// emergency.
func (s *Subscriber) LastEmergencyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Subscriber) handle(gen uint64, n Notification) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	if n.Table != TableChildren {
		s.scheduleLocked(gen)
		s.mu.Unlock()
		return
	}
	if n.EventType == EventDelete {
		delete(s.announced, n.OldChildID())
		s.scheduleLocked(gen)
		s.mu.Unlock()
		return
	}

	c, err := n.NewChild()
	if err != nil {
		s.logger.Warn("malformed child row on change feed", zap.Error(err))
		s.scheduleLocked(gen)
		s.mu.Unlock()
		return
	}
	if !c.EmergencyActive {
		// Cleared; a later raise is a new occurrence.
		delete(s.announced, c.ID)
		s.scheduleLocked(gen)
		s.mu.Unlock()
		return
	}
	if _, dup := s.announced[c.ID]; dup {
		s.scheduleLocked(gen)
		s.mu.Unlock()
		return
	}

	s.announced[c.ID] = struct{}{}
	s.last = c.ID
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.refreshLocked()
	ev := EmergencyEvent{
		VenueID:       c.VenueID,
		ChildID:       c.ID,
		ChildName:     c.Name,
		GuardianName:  c.GuardianName,
		GuardianPhone: c.GuardianPhone,
		Timestamp:     n.At,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.logger.Info("emergency raised",
		zap.String("venue_id", ev.VenueID),
		zap.String("child_id", ev.ChildID))
	for _, fn := range listeners {
		fn(ev)
	}
}

// scheduleLocked (re)arms the trailing debounce.  Callers hold s.mu.
func (s *Subscriber) scheduleLocked(gen uint64) {
	if s.timer != nil {
		s.timer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen || s.timer != t {
			return
		}
		s.timer = nil
		s.refreshLocked()
	})
	s.timer = t
}

// refreshLocked starts a refresh in the background.  Callers hold s.mu.
func (s *Subscriber) refreshLocked() {
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.refresher.Refresh(ctx); err != nil {
			s.logger.Debug("feed refresh failed", zap.Error(err))
		}
	}()
}
