package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/model"
)

const serviceColumns = "id, venue_id, date, scripture_read, hymns_sung, lesson_summary, child_count, created_at"

func scanService(s rowScanner) (model.ServiceRecord, error) {
	var rec model.ServiceRecord
	err := s.Scan(&rec.ID, &rec.VenueID, &rec.Date, &rec.ScriptureRead, &rec.HymnsSung,
		&rec.LessonSummary, &rec.ChildCount, &rec.CreatedAt)
	return rec, err
}

// ListServiceRecords returns the most recent records first.
func (r *Remote) ListServiceRecords(ctx context.Context, venueID string, limit int) ([]model.ServiceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+serviceColumns+" FROM service_records WHERE venue_id = ? ORDER BY date DESC LIMIT ?",
		venueID, limit)
	if err != nil {
		return nil, classify("ListServiceRecords", err)
	}
	defer rows.Close()

	var out []model.ServiceRecord
	for rows.Next() {
		rec, err := scanService(rows)
		if err != nil {
			return nil, classify("ListServiceRecords", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListServiceRecords", err)
	}
	return out, nil
}

// GetServiceRecordByDate returns nil when no service was logged that day.
func (r *Remote) GetServiceRecordByDate(ctx context.Context, venueID, date string) (*model.ServiceRecord, error) {
	rec, err := scanService(r.db.QueryRowContext(ctx,
		"SELECT "+serviceColumns+" FROM service_records WHERE venue_id = ? AND date = ?", venueID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("GetServiceRecordByDate", err)
	}
	return &rec, nil
}

// UpsertServiceRecord relies on the (venue_id, date) unique key: a second
// write for the same day updates the content and count of the existing
// row and keeps its id.
func (r *Remote) UpsertServiceRecord(ctx context.Context, venueID, date string, content model.ServiceContent, childCount int) (model.ServiceRecord, error) {
	rec := model.ServiceRecord{
		ID:            uuid.NewString(),
		VenueID:       venueID,
		Date:          date,
		ScriptureRead: content.ScriptureRead,
		HymnsSung:     content.HymnsSung,
		LessonSummary: content.LessonSummary,
		ChildCount:    childCount,
		CreatedAt:     r.timestamp(),
	}
	if err := model.Validate("UpsertServiceRecord", rec); err != nil {
		return model.ServiceRecord{}, err
	}
	old, err := r.GetServiceRecordByDate(ctx, venueID, date)
	if err != nil {
		return model.ServiceRecord{}, err
	}

	const q = `INSERT INTO service_records (` + serviceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE scripture_read = VALUES(scripture_read), hymns_sung = VALUES(hymns_sung),
	           lesson_summary = VALUES(lesson_summary), child_count = VALUES(child_count)`
	if _, err := r.db.ExecContext(ctx, q, rec.ID, rec.VenueID, rec.Date, rec.ScriptureRead, rec.HymnsSung,
		rec.LessonSummary, rec.ChildCount, rec.CreatedAt); err != nil {
		return model.ServiceRecord{}, classify("UpsertServiceRecord", err)
	}
	stored, err := r.GetServiceRecordByDate(ctx, venueID, date)
	if err != nil {
		return model.ServiceRecord{}, err
	}
	if stored != nil {
		rec = *stored
	}

	if old != nil {
		r.publish(ctx, changefeed.TableServices, changefeed.EventUpdate, venueID, old, rec)
	} else {
		r.publish(ctx, changefeed.TableServices, changefeed.EventInsert, venueID, nil, rec)
	}
	return rec, nil
}

// ListUsageDays returns the most recent days first.
func (r *Remote) ListUsageDays(ctx context.Context, venueID string, limit int) ([]model.UsageDay, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT venue_id, date, child_count, service_held FROM usage_days WHERE venue_id = ? ORDER BY date DESC LIMIT ?",
		venueID, limit)
	if err != nil {
		return nil, classify("ListUsageDays", err)
	}
	defer rows.Close()

	var out []model.UsageDay
	for rows.Next() {
		var d model.UsageDay
		if err := rows.Scan(&d.VenueID, &d.Date, &d.ChildCount, &d.ServiceHeld); err != nil {
			return nil, classify("ListUsageDays", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListUsageDays", err)
	}
	return out, nil
}

// UpsertUsageDay writes the daily snapshot, one row per (venue, date).
func (r *Remote) UpsertUsageDay(ctx context.Context, d model.UsageDay) error {
	if err := model.Validate("UpsertUsageDay", d); err != nil {
		return err
	}
	const q = `INSERT INTO usage_days (venue_id, date, child_count, service_held) VALUES (?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE child_count = VALUES(child_count), service_held = VALUES(service_held)`
	res, err := r.db.ExecContext(ctx, q, d.VenueID, d.Date, d.ChildCount, d.ServiceHeld)
	if err != nil {
		return classify("UpsertUsageDay", err)
	}
	// MySQL reports 1 affected row for an insert and 2 for an update.
	ev := changefeed.EventInsert
	if n, _ := res.RowsAffected(); n != 1 {
		ev = changefeed.EventUpdate
	}
	r.publish(ctx, changefeed.TableUsageDays, ev, d.VenueID, nil, d)
	return nil
}
