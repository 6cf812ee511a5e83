package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/model"
)

const childColumns = `id, venue_id, name, guardian_name, guardian_relation, guardian_phone,
	notes, check_in_time, emergency_active, registration_date`

func scanChild(s rowScanner) (model.Child, error) {
	var c model.Child
	err := s.Scan(&c.ID, &c.VenueID, &c.Name, &c.GuardianName, &c.GuardianRelation, &c.GuardianPhone,
		&c.Notes, &c.CheckInTime, &c.EmergencyActive, &c.RegistrationDate)
	return c, err
}

// ListChildren returns every presence record of the venue, oldest check-in
// first.  Records are not filtered by date: presence lasts until checkout.
func (r *Remote) ListChildren(ctx context.Context, venueID string) ([]model.Child, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+childColumns+" FROM children WHERE venue_id = ? ORDER BY check_in_time, id", venueID)
	if err != nil {
		return nil, classify("ListChildren", err)
	}
	defer rows.Close()

	var out []model.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, classify("ListChildren", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListChildren", err)
	}
	return out, nil
}

// GetChild returns a NotFound error for an unknown id.
func (r *Remote) GetChild(ctx context.Context, id string) (model.Child, error) {
	c, err := scanChild(r.db.QueryRowContext(ctx, "SELECT "+childColumns+" FROM children WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Child{}, apperr.New(apperr.KindNotFound, "GetChild", "child not found")
	}
	if err != nil {
		return model.Child{}, classify("GetChild", err)
	}
	return c, nil
}

// InsertChild stores a new presence record.  A missing venue surfaces as
// VenueNotFound through the foreign key.
func (r *Remote) InsertChild(ctx context.Context, c model.Child) (model.Child, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CheckInTime = c.CheckInTime.Truncate(time.Millisecond)
	if err := model.Validate("InsertChild", c); err != nil {
		return model.Child{}, err
	}
	const q = `INSERT INTO children (` + childColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q,
		c.ID, c.VenueID, c.Name, c.GuardianName, c.GuardianRelation, c.GuardianPhone,
		c.Notes, c.CheckInTime, c.EmergencyActive, c.RegistrationDate); err != nil {
		return model.Child{}, classify("InsertChild", err)
	}
	r.publish(ctx, changefeed.TableChildren, changefeed.EventInsert, c.VenueID, nil, c)
	return c, nil
}

// UpdateChild applies patch under a row lock and returns the new row.
func (r *Remote) UpdateChild(ctx context.Context, id string, patch model.ChildPatch) (model.Child, error) {
	if err := model.Validate("UpdateChild", patch); err != nil {
		return model.Child{}, err
	}
	var old, c model.Child
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		old, err = scanChild(tx.QueryRowContext(ctx,
			"SELECT "+childColumns+" FROM children WHERE id = ? FOR UPDATE", id))
		if err != nil {
			return err
		}
		c = patch.Apply(old)
		_, err = tx.ExecContext(ctx, `UPDATE children
			SET name = ?, guardian_name = ?, guardian_relation = ?, guardian_phone = ?, notes = ?, emergency_active = ?
			WHERE id = ?`,
			c.Name, c.GuardianName, c.GuardianRelation, c.GuardianPhone, c.Notes, c.EmergencyActive, id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Child{}, apperr.New(apperr.KindNotFound, "UpdateChild", "child not found")
	}
	if err != nil {
		return model.Child{}, classify("UpdateChild", err)
	}
	r.publish(ctx, changefeed.TableChildren, changefeed.EventUpdate, c.VenueID, old, c)
	return c, nil
}

// DeleteChild checks a child out and returns the deleted row.
func (r *Remote) DeleteChild(ctx context.Context, id string) (model.Child, error) {
	var old model.Child
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		old, err = scanChild(tx.QueryRowContext(ctx,
			"SELECT "+childColumns+" FROM children WHERE id = ? FOR UPDATE", id))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM children WHERE id = ?", id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Child{}, apperr.New(apperr.KindNotFound, "DeleteChild", "child not found")
	}
	if err != nil {
		return model.Child{}, classify("DeleteChild", err)
	}
	r.publish(ctx, changefeed.TableChildren, changefeed.EventDelete, old.VenueID, old, nil)
	return old, nil
}
