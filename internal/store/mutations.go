package store

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/model"
)

// CreateVenue registers a venue together with its capacity settings.  A
// non-positive maxOccupancy selects the configured default.
func (s *Store) CreateVenue(ctx context.Context, name string, maxOccupancy int) (model.Venue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Venue{}, apperr.Validation("CreateVenue", "name is required")
	}
	if maxOccupancy <= 0 {
		maxOccupancy = s.cfg.DefaultMaxOccupancy
	}
	v, err := s.remote.CreateVenue(ctx, name, maxOccupancy)
	if err != nil {
		return model.Venue{}, err
	}
	s.update(func(next *Snapshot) {
		if _, ok := next.Venue(v.ID); !ok {
			next.Venues = append(next.Venues, v)
		}
	})
	return v, nil
}

// RenameVenue changes the display name of a venue.
func (s *Store) RenameVenue(ctx context.Context, venueID, name string) (model.Venue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Venue{}, apperr.Validation("RenameVenue", "name is required")
	}
	v, err := s.remote.RenameVenue(ctx, venueID, name)
	if err != nil {
		return model.Venue{}, err
	}
	s.update(func(next *Snapshot) {
		for i := range next.Venues {
			if next.Venues[i].ID == venueID {
				next.Venues[i] = v
			}
		}
	})
	return v, nil
}

// DeleteVenue removes a venue and, by cascade, all of its data.  Deleting
// the active venue deactivates it on this device.
func (s *Store) DeleteVenue(ctx context.Context, venueID string) error {
	if err := s.remote.DeleteVenue(ctx, venueID); err != nil {
		return err
	}
	wasActive := false
	s.update(func(next *Snapshot) {
		next.Venues = removeVenue(next.Venues, venueID)
		delete(next.Data, venueID)
		if next.ActiveVenueID == venueID {
			next.ActiveVenueID = ""
			wasActive = true
		}
	})
	if wasActive {
		if err := s.prefs.ClearSelection(ctx, s.cfg.DeviceID); err != nil {
			s.logger.Warn("venue selection not cleared", zap.Error(err))
		}
	}
	return nil
}

// UpdateCapacity upserts the capacity settings of a venue.
func (s *Store) UpdateCapacity(ctx context.Context, venueID string, maxOccupancy int) (model.Settings, error) {
	if maxOccupancy <= 0 {
		return model.Settings{}, apperr.Validation("UpdateCapacity", "maxOccupancy must be a positive integer")
	}
	settings, err := s.remote.UpsertSettings(ctx, venueID, maxOccupancy)
	if err != nil {
		return model.Settings{}, err
	}
	s.patchVenue(venueID, func(d *model.VenueData) {
		cp := settings
		d.Settings = &cp
	})
	return settings, nil
}

// CheckIn registers a child at venueID.  Check-in is refused while the
// venue is at capacity.
func (s *Store) CheckIn(ctx context.Context, venueID string, in model.CheckIn) (model.Child, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.GuardianName = strings.TrimSpace(in.GuardianName)
	in.GuardianPhone = strings.TrimSpace(in.GuardianPhone)
	if err := model.Validate("CheckIn", in); err != nil {
		return model.Child{}, err
	}

	settings, err := s.remote.GetSettings(ctx, venueID)
	if err != nil {
		return model.Child{}, err
	}
	if settings != nil && settings.MaxOccupancy > 0 {
		present, err := s.remote.ListChildren(ctx, venueID)
		if err != nil {
			return model.Child{}, err
		}
		if len(present) >= settings.MaxOccupancy {
			return model.Child{}, apperr.Validation("CheckIn", "venue is at full capacity")
		}
	}

	now := s.now()
	child := model.Child{
		ID:               uuid.NewString(),
		VenueID:          venueID,
		Name:             in.Name,
		GuardianName:     in.GuardianName,
		GuardianRelation: in.GuardianRelation,
		GuardianPhone:    in.GuardianPhone,
		Notes:            in.Notes,
		CheckInTime:      now,
		RegistrationDate: model.LocalDate(now.Local()),
	}
	created, err := s.remote.InsertChild(ctx, child)
	if err != nil {
		return model.Child{}, err
	}
	s.patchVenue(venueID, func(d *model.VenueData) {
		d.Children = append(d.Children, created)
	})
	s.snapshotUsage(venueID)
	return created, nil
}

// UpsertChild checks in c when it has no identifier and otherwise
// overwrites the editable fields of the existing record.
func (s *Store) UpsertChild(ctx context.Context, c model.Child) (model.Child, error) {
	if c.ID == "" {
		return s.CheckIn(ctx, c.VenueID, model.CheckIn{
			Name:             c.Name,
			GuardianName:     c.GuardianName,
			GuardianRelation: c.GuardianRelation,
			GuardianPhone:    c.GuardianPhone,
			Notes:            c.Notes,
		})
	}
	return s.UpdateChild(ctx, c.ID, model.ChildPatch{
		Name:             &c.Name,
		GuardianName:     &c.GuardianName,
		GuardianRelation: &c.GuardianRelation,
		GuardianPhone:    &c.GuardianPhone,
		Notes:            &c.Notes,
		EmergencyActive:  &c.EmergencyActive,
	})
}

// Child reads one child record from the remote store.
func (s *Store) Child(ctx context.Context, childID string) (model.Child, error) {
	return s.remote.GetChild(ctx, childID)
}

// UpdateChild applies a partial update to a child record.
func (s *Store) UpdateChild(ctx context.Context, childID string, patch model.ChildPatch) (model.Child, error) {
	updated, err := s.remote.UpdateChild(ctx, childID, patch)
	if err != nil {
		return model.Child{}, err
	}
	s.patchVenue(updated.VenueID, func(d *model.VenueData) {
		for i := range d.Children {
			if d.Children[i].ID == updated.ID {
				d.Children[i] = updated
				return
			}
		}
		d.Children = append(d.Children, updated)
	})
	return updated, nil
}

// SetEmergency raises or clears the emergency flag of a child.  Raising
// it is what the change feed broadcasts to every other device.
func (s *Store) SetEmergency(ctx context.Context, childID string, active bool) (model.Child, error) {
	return s.UpdateChild(ctx, childID, model.ChildPatch{EmergencyActive: &active})
}

// RemoveChild checks a child out.
func (s *Store) RemoveChild(ctx context.Context, childID string) (model.Child, error) {
	removed, err := s.remote.DeleteChild(ctx, childID)
	if err != nil {
		return model.Child{}, err
	}
	s.patchVenue(removed.VenueID, func(d *model.VenueData) {
		out := d.Children[:0]
		for _, c := range d.Children {
			if c.ID != childID {
				out = append(out, c)
			}
		}
		d.Children = out
	})
	s.snapshotUsage(removed.VenueID)
	return removed, nil
}

// CreateServiceRecord files the service of date at venueID.  A record that
// already exists for the same date is updated in place.  Without an
// override, attendance is the venue's full current roster of child
// presence records, not only today's check-ins.
func (s *Store) CreateServiceRecord(ctx context.Context, venueID, date string, content model.ServiceContent, childCountOverride *int) (model.ServiceRecord, error) {
	date = strings.TrimSpace(date)
	if !model.IsCalendarDate(date) {
		return model.ServiceRecord{}, apperr.Validation("CreateServiceRecord", "date must be a YYYY-MM-DD calendar date")
	}
	if err := model.Validate("CreateServiceRecord", content); err != nil {
		return model.ServiceRecord{}, err
	}

	var count int
	if childCountOverride != nil {
		if *childCountOverride < 0 {
			return model.ServiceRecord{}, apperr.Validation("CreateServiceRecord", "childCount must not be negative")
		}
		count = *childCountOverride
	} else {
		children, err := s.remote.ListChildren(ctx, venueID)
		if err != nil {
			return model.ServiceRecord{}, err
		}
		count = len(children)
	}

	rec, err := s.remote.UpsertServiceRecord(ctx, venueID, date, content, count)
	if err != nil {
		return model.ServiceRecord{}, err
	}
	limit := s.cfg.ServiceHistoryLimit
	s.patchVenue(venueID, func(d *model.VenueData) {
		replaced := false
		for i := range d.Services {
			if d.Services[i].Date == rec.Date {
				d.Services[i] = rec
				replaced = true
			}
		}
		if !replaced {
			d.Services = append(d.Services, rec)
		}
		sort.Slice(d.Services, func(i, j int) bool { return d.Services[i].Date > d.Services[j].Date })
		if limit > 0 && len(d.Services) > limit {
			d.Services = d.Services[:limit]
		}
	})
	if date == s.today() {
		s.snapshotUsage(venueID)
	}
	return rec, nil
}

// PurgeVenueData deletes every child, service record and usage day of
// venueID, in that order.  It reports whether anything was deleted.  A
// failure part-way leaves the earlier deletes in place.
func (s *Store) PurgeVenueData(ctx context.Context, venueID string) (bool, error) {
	var total int64
	steps := []func(context.Context, string) (int64, error){
		s.remote.DeleteAllChildren,
		s.remote.DeleteAllServiceRecords,
		s.remote.DeleteAllUsageDays,
	}
	for _, step := range steps {
		n, err := step(ctx, venueID)
		if err != nil {
			return total > 0, err
		}
		total += n
	}
	s.patchVenue(venueID, func(d *model.VenueData) {
		d.Children = nil
		d.Services = nil
		d.UsageDays = nil
	})
	return total > 0, nil
}

// Summary builds the daily overview of a venue from the remote store.
func (s *Store) Summary(ctx context.Context, venueID string) (model.Summary, error) {
	if _, err := s.remote.GetVenueByID(ctx, venueID); err != nil {
		return model.Summary{}, err
	}
	settings, err := s.remote.GetSettings(ctx, venueID)
	if err != nil {
		return model.Summary{}, err
	}
	children, err := s.remote.ListChildren(ctx, venueID)
	if err != nil {
		return model.Summary{}, err
	}
	today := s.today()
	svc, err := s.remote.GetServiceRecordByDate(ctx, venueID, today)
	if err != nil {
		return model.Summary{}, err
	}
	days, err := s.remote.ListUsageDays(ctx, venueID, s.cfg.UsageDayLimit)
	if err != nil {
		return model.Summary{}, err
	}
	bundle := &model.VenueData{VenueID: venueID, Settings: settings, Children: children}
	return model.Summary{
		VenueID:          venueID,
		Date:             today,
		ChildCount:       len(children),
		EmergencyCount:   len(bundle.ActiveEmergencies()),
		Occupancy:        bundle.Occupancy(),
		ServiceHeldToday: svc != nil,
		UsageDays:        days,
	}, nil
}

// snapshotUsage records today's usage day for venueID in the background.
// Snapshots are serialized so the last one written counts the latest
// roster.  Failures are logged and not retried.
func (s *Store) snapshotUsage(venueID string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BackgroundTimeout)
		defer cancel()

		s.usageMu.Lock()
		day, err := s.usageDay(ctx, venueID)
		if err == nil {
			err = s.remote.UpsertUsageDay(ctx, day)
		}
		s.usageMu.Unlock()
		if err != nil {
			s.logger.Warn("usage day snapshot failed", zap.String("venue_id", venueID), zap.Error(err))
			return
		}
		limit := s.cfg.UsageDayLimit
		s.patchVenue(venueID, func(d *model.VenueData) {
			replaced := false
			for i := range d.UsageDays {
				if d.UsageDays[i].Date == day.Date {
					d.UsageDays[i] = day
					replaced = true
				}
			}
			if !replaced {
				d.UsageDays = append([]model.UsageDay{day}, d.UsageDays...)
			}
			if limit > 0 && len(d.UsageDays) > limit {
				d.UsageDays = d.UsageDays[:limit]
			}
		})
	}()
}

func (s *Store) usageDay(ctx context.Context, venueID string) (model.UsageDay, error) {
	today := s.today()
	children, err := s.remote.ListChildren(ctx, venueID)
	if err != nil {
		return model.UsageDay{}, err
	}
	svc, err := s.remote.GetServiceRecordByDate(ctx, venueID, today)
	if err != nil {
		return model.UsageDay{}, err
	}
	return model.UsageDay{
		VenueID:     venueID,
		Date:        today,
		ChildCount:  len(children),
		ServiceHeld: svc != nil,
	}, nil
}
