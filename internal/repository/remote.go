package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/remote"
)

// Remote implements remote.Store on MySQL.
type Remote struct {
	db     *sql.DB
	feed   changefeed.Publisher
	logger *zap.Logger
	now    func() time.Time
}

var _ remote.Store = (*Remote)(nil)

// Option configures a Remote.
type Option func(*Remote)

// WithPublisher publishes change notifications to p after each write.
func WithPublisher(p changefeed.Publisher) Option {
	return func(r *Remote) { r.feed = p }
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Remote) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Remote) { r.now = now }
}

// NewRemote wraps an open database handle.
func NewRemote(db *sql.DB, opts ...Option) *Remote {
	r := &Remote{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// timestamp returns now at the precision of a DATETIME(3) column.
func (r *Remote) timestamp() time.Time {
	return r.now().Truncate(time.Millisecond)
}

func (r *Remote) publish(ctx context.Context, table changefeed.Table, ev changefeed.EventType, venueID string, oldRow, newRow any) {
	if err := changefeed.Publish(ctx, r.feed, table, ev, venueID, oldRow, newRow); err != nil {
		r.logger.Warn("change notification not published",
			zap.String("table", string(table)),
			zap.String("venue_id", venueID),
			zap.Error(err))
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (r *Remote) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
