// Package retention implements the automatic data-retention sweep.  When a
// venue is activated, operational data carried over from a previous
// calendar day is purged before anyone enters new data.  There is no
// leader election: every device may run the sweep, and a sweep that finds
// nothing stale is a no-op.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/model"
)

// Inspector reports the oldest record date of a venue.
type Inspector interface {
	EarliestRecordDate(ctx context.Context, venueID string) (date string, ok bool, err error)
}

// PurgeFunc deletes all operational data of a venue and reports whether
// anything was deleted.
type PurgeFunc func(ctx context.Context, venueID string) (bool, error)

// Sweeper decides whether a venue holds stale data and purges it.
type Sweeper struct {
	inspector Inspector
	purge     PurgeFunc
	enabled   bool
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the clock used to compute "today".
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// Disabled turns the sweep off; Sweep then always reports false.
func Disabled() Option {
	return func(s *Sweeper) { s.enabled = false }
}

// NewSweeper builds a sweeper over inspector that purges through purge.
func NewSweeper(inspector Inspector, purge PurgeFunc, opts ...Option) *Sweeper {
	s := &Sweeper{
		inspector: inspector,
		purge:     purge,
		enabled:   true,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the local calendar date used as the retention boundary.
func (s *Sweeper) Today() string {
	return model.LocalDate(s.now().Local())
}

// Sweep purges venueID when any of its records predates today and reports
// whether a purge happened.  Errors are logged and reported as false so
// that activation is never blocked by the sweep.
func (s *Sweeper) Sweep(ctx context.Context, venueID string) bool {
	if !s.enabled {
		return false
	}
	earliest, ok, err := s.inspector.EarliestRecordDate(ctx, venueID)
	if err != nil {
		s.logger.Warn("retention check failed", zap.String("venue_id", venueID), zap.Error(err))
		return false
	}
	today := s.Today()
	if !ok || earliest >= today {
		return false
	}
	purged, err := s.purge(ctx, venueID)
	if err != nil {
		s.logger.Warn("retention purge failed",
			zap.String("venue_id", venueID),
			zap.String("earliest", earliest),
			zap.Error(err))
		return false
	}
	if purged {
		s.logger.Info("stale venue data purged",
			zap.String("venue_id", venueID),
			zap.String("earliest", earliest),
			zap.String("today", today))
	}
	return purged
}
