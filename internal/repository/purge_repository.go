package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/childcare-checkin/internal/changefeed"
)

func (r *Remote) deleteAll(ctx context.Context, op string, table changefeed.Table, venueID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+string(table)+" WHERE venue_id = ?", venueID)
	if err != nil {
		return 0, classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(op, err)
	}
	if n > 0 {
		r.publish(ctx, table, changefeed.EventDelete, venueID, nil, nil)
	}
	return n, nil
}

// DeleteAllChildren removes every presence record of the venue.
func (r *Remote) DeleteAllChildren(ctx context.Context, venueID string) (int64, error) {
	return r.deleteAll(ctx, "DeleteAllChildren", changefeed.TableChildren, venueID)
}

// DeleteAllServiceRecords removes every service record of the venue.
func (r *Remote) DeleteAllServiceRecords(ctx context.Context, venueID string) (int64, error) {
	return r.deleteAll(ctx, "DeleteAllServiceRecords", changefeed.TableServices, venueID)
}

// DeleteAllUsageDays removes every usage day of the venue.
func (r *Remote) DeleteAllUsageDays(ctx context.Context, venueID string) (int64, error) {
	return r.deleteAll(ctx, "DeleteAllUsageDays", changefeed.TableUsageDays, venueID)
}

// EarliestRecordDate returns the oldest calendar date across the venue's
// operational tables.
func (r *Remote) EarliestRecordDate(ctx context.Context, venueID string) (string, bool, error) {
	const q = `SELECT MIN(d) FROM (
		SELECT MIN(registration_date) AS d FROM children WHERE venue_id = ?
		UNION ALL SELECT MIN(date) FROM service_records WHERE venue_id = ?
		UNION ALL SELECT MIN(date) FROM usage_days WHERE venue_id = ?
	) AS earliest`
	var d sql.NullString
	if err := r.db.QueryRowContext(ctx, q, venueID, venueID, venueID).Scan(&d); err != nil {
		return "", false, classify("EarliestRecordDate", err)
	}
	if !d.Valid || d.String == "" {
		return "", false, nil
	}
	return d.String, true, nil
}

// HasVenueData reports whether any operational row remains for the venue.
func (r *Remote) HasVenueData(ctx context.Context, venueID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM children WHERE venue_id = ?)
		OR EXISTS(SELECT 1 FROM service_records WHERE venue_id = ?)
		OR EXISTS(SELECT 1 FROM usage_days WHERE venue_id = ?)`
	var has bool
	if err := r.db.QueryRowContext(ctx, q, venueID, venueID, venueID).Scan(&has); err != nil {
		return false, classify("HasVenueData", err)
	}
	return has, nil
}
