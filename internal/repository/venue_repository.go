package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/changefeed"
	"github.com/iliyamo/childcare-checkin/internal/model"
)

const venueColumns = "id, name, registered_at"

func scanVenue(s rowScanner) (model.Venue, error) {
	var v model.Venue
	err := s.Scan(&v.ID, &v.Name, &v.RegisteredAt)
	return v, err
}

// ListVenues returns every venue ordered by name.
func (r *Remote) ListVenues(ctx context.Context) ([]model.Venue, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+venueColumns+" FROM venues ORDER BY name")
	if err != nil {
		return nil, classify("ListVenues", err)
	}
	defer rows.Close()

	var out []model.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, classify("ListVenues", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListVenues", err)
	}
	return out, nil
}

// GetVenueByID returns a VenueNotFound error when the venue is gone.
func (r *Remote) GetVenueByID(ctx context.Context, id string) (model.Venue, error) {
	v, err := scanVenue(r.db.QueryRowContext(ctx, "SELECT "+venueColumns+" FROM venues WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Venue{}, apperr.New(apperr.KindVenueNotFound, "GetVenueByID", "venue no longer exists")
	}
	if err != nil {
		return model.Venue{}, classify("GetVenueByID", err)
	}
	return v, nil
}

// CreateVenue inserts the venue and its capacity settings in one
// transaction.
func (r *Remote) CreateVenue(ctx context.Context, name string, maxOccupancy int) (model.Venue, error) {
	if maxOccupancy <= 0 {
		maxOccupancy = model.DefaultMaxOccupancy
	}
	now := r.timestamp()
	v := model.Venue{ID: uuid.NewString(), Name: name, RegisteredAt: now}
	if err := model.Validate("CreateVenue", v); err != nil {
		return model.Venue{}, err
	}
	s := model.Settings{VenueID: v.ID, MaxOccupancy: maxOccupancy, UpdatedAt: now}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO venues (id, name, registered_at) VALUES (?, ?, ?)",
			v.ID, v.Name, v.RegisteredAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO venue_settings (venue_id, max_occupancy, updated_at) VALUES (?, ?, ?)",
			s.VenueID, s.MaxOccupancy, s.UpdatedAt)
		return err
	})
	if err != nil {
		return model.Venue{}, classify("CreateVenue", err)
	}

	r.publish(ctx, changefeed.TableVenues, changefeed.EventInsert, "", nil, v)
	r.publish(ctx, changefeed.TableSettings, changefeed.EventInsert, v.ID, nil, s)
	return v, nil
}

// RenameVenue changes the venue name.
func (r *Remote) RenameVenue(ctx context.Context, id, name string) (model.Venue, error) {
	old, err := r.GetVenueByID(ctx, id)
	if err != nil {
		return model.Venue{}, err
	}
	v := old
	v.Name = name
	if err := model.Validate("RenameVenue", v); err != nil {
		return model.Venue{}, err
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE venues SET name = ? WHERE id = ?", name, id); err != nil {
		return model.Venue{}, classify("RenameVenue", err)
	}
	r.publish(ctx, changefeed.TableVenues, changefeed.EventUpdate, "", old, v)
	return v, nil
}

// DeleteVenue removes the venue.  Settings, children, service records and
// usage days go with it through ON DELETE CASCADE.
func (r *Remote) DeleteVenue(ctx context.Context, id string) error {
	old, err := r.GetVenueByID(ctx, id)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM venues WHERE id = ?", id)
	if err != nil {
		return classify("DeleteVenue", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindVenueNotFound, "DeleteVenue", "venue no longer exists")
	}
	r.publish(ctx, changefeed.TableVenues, changefeed.EventDelete, "", old, nil)
	return nil
}

// GetSettings returns nil when the venue has no settings row.
func (r *Remote) GetSettings(ctx context.Context, venueID string) (*model.Settings, error) {
	var s model.Settings
	err := r.db.QueryRowContext(ctx,
		"SELECT venue_id, max_occupancy, updated_at FROM venue_settings WHERE venue_id = ?", venueID).
		Scan(&s.VenueID, &s.MaxOccupancy, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("GetSettings", err)
	}
	return &s, nil
}

// UpsertSettings creates or replaces the capacity settings of a venue.
func (r *Remote) UpsertSettings(ctx context.Context, venueID string, maxOccupancy int) (model.Settings, error) {
	s := model.Settings{VenueID: venueID, MaxOccupancy: maxOccupancy, UpdatedAt: r.timestamp()}
	if err := model.Validate("UpsertSettings", s); err != nil {
		return model.Settings{}, err
	}
	old, err := r.GetSettings(ctx, venueID)
	if err != nil {
		return model.Settings{}, err
	}
	const q = `INSERT INTO venue_settings (venue_id, max_occupancy, updated_at) VALUES (?, ?, ?)
	           ON DUPLICATE KEY UPDATE max_occupancy = VALUES(max_occupancy), updated_at = VALUES(updated_at)`
	if _, err := r.db.ExecContext(ctx, q, s.VenueID, s.MaxOccupancy, s.UpdatedAt); err != nil {
		return model.Settings{}, classify("UpsertSettings", err)
	}

	if old != nil {
		r.publish(ctx, changefeed.TableSettings, changefeed.EventUpdate, venueID, old, s)
	} else {
		r.publish(ctx, changefeed.TableSettings, changefeed.EventInsert, venueID, nil, s)
	}
	return s, nil
}
