// Package device wires the per-device runtime: the domain store, the two
// polling tiers, the change-feed subscriber and the emergency notifier.
// One Device corresponds to one tablet or phone at a check-in desk.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/notifier"
	"github.com/iliyamo/childcare-checkin/internal/poller"
	"github.com/iliyamo/childcare-checkin/internal/prefs"
	"github.com/iliyamo/childcare-checkin/internal/remote"
	"github.com/iliyamo/childcare-checkin/internal/store"
	"github.com/iliyamo/childcare-checkin/internal/syncstate"
)

// Config holds the timing of a device runtime.
type Config struct {
	PollInterval      time.Duration
	KeepAliveInterval time.Duration
	FailureThreshold  int
	Cooldown          time.Duration
	Debounce          time.Duration
	AlertDismiss      time.Duration
	Store             store.Config
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		KeepAliveInterval: 30 * time.Second,
		FailureThreshold:  3,
		Cooldown:          30 * time.Second,
		Debounce:          changefeed.DefaultDebounce,
		AlertDismiss:      notifier.DefaultDismissAfter,
		Store:             store.DefaultConfig(),
	}
}

// Status is a point-in-time view of the runtime.
type Status struct {
	ActiveVenueID string           `json:"activeVenueId"`
	Sync          syncstate.Status `json:"sync"`
	Poll          string           `json:"poll"`
	KeepAlive     string           `json:"keepAlive"`
	FeedVenueID   string           `json:"feedVenueId"`
}

// Device is one device runtime.
type Device struct {
	store     *store.Store
	poll      *poller.Poller
	keepAlive *poller.Poller
	feed      *changefeed.Subscriber
	alerts    *notifier.Notifier
	logger    *zap.Logger

	mu     sync.Mutex
	active string
}

type options struct {
	prefs   prefs.Store
	logger  *zap.Logger
	sounder notifier.Sounder
	now     func() time.Time
	hooks   []func(changefeed.EmergencyEvent)
}

// Option configures a Device.
type Option func(*options)

// WithPrefs persists the venue selection in p.
func WithPrefs(p prefs.Store) Option { return func(o *options) { o.prefs = p } }

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithSounder sets the alert sound.
func WithSounder(s notifier.Sounder) Option { return func(o *options) { o.sounder = s } }

// WithClock overrides the store clock.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithEmergencyHook calls fn for every announced emergency, after the
// notifier.  fn must not block.
func WithEmergencyHook(fn func(changefeed.EmergencyEvent)) Option {
	return func(o *options) { o.hooks = append(o.hooks, fn) }
}

// New builds an inactive device over the shared remote store and feed.
func New(r remote.Store, b changefeed.Broker, cfg Config, opts ...Option) *Device {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(zap.String("device_id", cfg.Store.DeviceID))

	storeOpts := []store.Option{store.WithConfig(cfg.Store), store.WithLogger(logger)}
	if o.prefs != nil {
		storeOpts = append(storeOpts, store.WithPrefs(o.prefs))
	}
	if o.now != nil {
		storeOpts = append(storeOpts, store.WithClock(o.now))
	}
	st := store.New(r, storeOpts...)

	d := &Device{
		store:  st,
		logger: logger,
		alerts: notifier.New(
			notifier.WithSounder(o.sounder),
			notifier.WithDismissAfter(cfg.AlertDismiss),
			notifier.WithLogger(logger),
		),
		feed: changefeed.NewSubscriber(b, st,
			changefeed.WithDebounce(cfg.Debounce),
			changefeed.WithSubscriberLogger(logger),
		),
	}
	d.poll = poller.New("poll", d.refresh, poller.Config{
		Interval:         cfg.PollInterval,
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
	}, logger)
	d.keepAlive = poller.New("keepalive", st.RefreshVenues, poller.Config{
		Interval:         cfg.KeepAliveInterval,
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
	}, logger)

	d.feed.OnEmergency(d.alerts.Notify)
	for _, fn := range o.hooks {
		d.feed.OnEmergency(fn)
	}
	return d
}

// Store returns the device's domain store.
func (d *Device) Store() *store.Store { return d.store }

// Alerts returns the device's emergency notifier.
func (d *Device) Alerts() *notifier.Notifier { return d.alerts }

// Activate switches the device to venueID.  It reports whether the
// retention sweep purged stale data.  A venue that no longer exists is
// returned as a VenueNotFound error and leaves the device inactive; any
// other load failure is left to polling.
func (d *Device) Activate(ctx context.Context, venueID string) (bool, error) {
	d.halt()

	if err := d.store.RefreshVenues(ctx); err != nil {
		d.logger.Warn("venue list refresh failed", zap.Error(err))
	}
	swept := d.store.ActivateVenue(ctx, venueID)
	if err := d.store.Snapshot().Err; errors.Is(err, apperr.ErrVenueNotFound) {
		d.store.DeactivateVenue(ctx)
		return swept, err
	}

	d.mu.Lock()
	d.active = venueID
	d.mu.Unlock()

	// Polling covers a failed subscription.
	_ = d.feed.Activate(ctx, venueID)
	d.poll.Start(context.Background())
	d.keepAlive.Start(context.Background())
	d.logger.Info("venue activated", zap.String("venue_id", venueID), zap.Bool("swept", swept))
	return swept, nil
}

// Restore reactivates the venue persisted by a previous session.  ok is
// false when there was nothing to restore.
func (d *Device) Restore(ctx context.Context) (ok bool, swept bool, err error) {
	venueID, found := d.store.RestoreSelection(ctx)
	if !found {
		return false, false, nil
	}
	swept, err = d.Activate(ctx, venueID)
	return err == nil, swept, err
}

// Deactivate stops syncing and forgets the venue selection.
func (d *Device) Deactivate(ctx context.Context) {
	d.halt()
	d.store.DeactivateVenue(ctx)
}

// halt stops every timer and subscription of the active venue.
func (d *Device) halt() {
	d.poll.Stop()
	d.keepAlive.Stop()
	d.feed.Deactivate()
	d.mu.Lock()
	d.active = ""
	d.mu.Unlock()
}

// refresh is the full polling tier.  A vanished venue stops the runtime
// instead of polling a venue that will never come back.
func (d *Device) refresh(ctx context.Context) error {
	err := d.store.Refresh(ctx)
	if errors.Is(err, apperr.ErrVenueNotFound) {
		venueID := d.ActiveVenueID()
		d.logger.Error("active venue vanished", zap.String("venue_id", venueID))
		// Stop waits for this refresh, so halt from another goroutine.
		go d.haltVenue(venueID)
	}
	return err
}

func (d *Device) haltVenue(venueID string) {
	if d.ActiveVenueID() == venueID {
		d.halt()
	}
}

// ActiveVenueID returns the venue the runtime is syncing.
func (d *Device) ActiveVenueID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// SetVisible forwards screen visibility to both polling tiers.
func (d *Device) SetVisible(visible bool) {
	d.poll.SetVisible(visible)
	d.keepAlive.SetVisible(visible)
}

// SetFocused forwards input focus to both polling tiers.
func (d *Device) SetFocused(focused bool) {
	d.poll.SetFocused(focused)
	d.keepAlive.SetFocused(focused)
}

// Status reports the runtime state.
func (d *Device) Status() Status {
	return Status{
		ActiveVenueID: d.ActiveVenueID(),
		Sync:          d.store.Tracker().Status(),
		Poll:          d.poll.State().String(),
		KeepAlive:     d.keepAlive.State().String(),
		FeedVenueID:   d.feed.VenueID(),
	}
}

// Close releases every timer, subscription and background write.
func (d *Device) Close() error {
	d.halt()
	err := errors.Join(d.feed.Close(), d.alerts.Close())
	return errors.Join(err, d.store.Close())
}
