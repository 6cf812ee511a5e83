package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
	"github.com/iliyamo/childcare-checkin/internal/model"
	"github.com/iliyamo/childcare-checkin/internal/prefs"
)

// ActivateVenue makes venueID the active venue, persists the selection,
// runs the retention sweep and loads fresh data.  It never returns an
// error: failures land in Snapshot().Err.  The result reports whether the
// sweep purged stale data.
func (s *Store) ActivateVenue(ctx context.Context, venueID string) bool {
	s.update(func(next *Snapshot) {
		next.ActiveVenueID = venueID
		next.Err = nil
	})
	sel := prefs.NewSelection(venueID, s.now(), s.cfg.SelectionTTL)
	if err := s.prefs.SaveSelection(ctx, s.cfg.DeviceID, sel); err != nil {
		s.logger.Warn("venue selection not persisted", zap.String("venue_id", venueID), zap.Error(err))
	}

	swept := s.sweeper.Sweep(ctx, venueID)
	if swept {
		s.sweepNotice.Store(true)
	}
	if err := s.LoadVenueData(ctx, venueID); err != nil {
		s.logger.Warn("venue activation load failed", zap.String("venue_id", venueID), zap.Error(err))
	}
	return swept
}

// DeactivateVenue clears the active venue and its persisted selection.
func (s *Store) DeactivateVenue(ctx context.Context) {
	s.update(func(next *Snapshot) {
		next.ActiveVenueID = ""
		next.Err = nil
	})
	if err := s.prefs.ClearSelection(ctx, s.cfg.DeviceID); err != nil {
		s.logger.Warn("venue selection not cleared", zap.Error(err))
	}
}

// RestoreSelection returns the persisted venue selection of this device,
// if one exists and has not expired.
func (s *Store) RestoreSelection(ctx context.Context) (string, bool) {
	sel, ok, err := s.prefs.LoadSelection(ctx, s.cfg.DeviceID)
	if err != nil {
		s.logger.Warn("venue selection not restored", zap.Error(err))
		return "", false
	}
	if !ok || sel.VenueID == "" {
		return "", false
	}
	return sel.VenueID, true
}

// LoadVenueData fetches settings, every child presence record, the most
// recent service records and usage days of venueID and replaces its
// bundle in one swap.  Concurrent calls for the same venue share a single
// fetch.  The shared fetch outlives a caller that gives up: only that
// caller gets its context error.
func (s *Store) LoadVenueData(ctx context.Context, venueID string) error {
	ch := s.loads.DoChan(venueID, func() (any, error) {
		timeout := s.cfg.LoadTimeout
		if timeout <= 0 {
			timeout = DefaultConfig().LoadTimeout
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return nil, s.loadVenueData(lctx, venueID)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) beginLoad() {
	s.tracker.Begin()
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	s.update(func(*Snapshot) {})
}

func (s *Store) endLoad(err error) {
	s.tracker.End(err, errors.Is(err, apperr.ErrNetworkUnavailable))
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	s.update(func(*Snapshot) {})
}

func (s *Store) loadVenueData(ctx context.Context, venueID string) (err error) {
	s.beginLoad()
	defer func() {
		s.endLoad(err)
		if err != nil {
			s.recordFailure(venueID, err)
		}
	}()

	venue, err := s.remote.GetVenueByID(ctx, venueID)
	if err != nil {
		return err
	}

	bundle := &model.VenueData{VenueID: venueID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		settings, err := s.remote.GetSettings(gctx, venueID)
		bundle.Settings = settings
		return err
	})
	g.Go(func() error {
		children, err := s.remote.ListChildren(gctx, venueID)
		bundle.Children = children
		return err
	})
	g.Go(func() error {
		services, err := s.remote.ListServiceRecords(gctx, venueID, s.cfg.ServiceHistoryLimit)
		bundle.Services = services
		return err
	})
	g.Go(func() error {
		days, err := s.remote.ListUsageDays(gctx, venueID, s.cfg.UsageDayLimit)
		bundle.UsageDays = days
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	bundle.LoadedAt = s.now()

	s.update(func(next *Snapshot) {
		next.Data[venueID] = bundle
		replaced := false
		for i := range next.Venues {
			if next.Venues[i].ID == venueID {
				next.Venues[i] = venue
				replaced = true
			}
		}
		if !replaced {
			next.Venues = append(next.Venues, venue)
		}
		if next.ActiveVenueID == venueID {
			next.Err = nil
		}
	})
	return nil
}

// recordFailure publishes a load failure.  A vanished venue is dropped
// from the list and its bundle discarded so nothing keeps operating on it.
func (s *Store) recordFailure(venueID string, err error) {
	s.update(func(next *Snapshot) {
		if errors.Is(err, apperr.ErrVenueNotFound) {
			delete(next.Data, venueID)
			next.Venues = removeVenue(next.Venues, venueID)
		}
		if next.ActiveVenueID == venueID || next.ActiveVenueID == "" {
			next.Err = err
		}
	})
}

func removeVenue(list []model.Venue, id string) []model.Venue {
	out := list[:0]
	for _, v := range list {
		if v.ID != id {
			out = append(out, v)
		}
	}
	return out
}

// RefreshVenues reloads the venue list.
func (s *Store) RefreshVenues(ctx context.Context) (err error) {
	s.beginLoad()
	defer func() { s.endLoad(err) }()

	venues, err := s.remote.ListVenues(ctx)
	if err != nil {
		return err
	}
	s.update(func(next *Snapshot) {
		next.Venues = venues
		for id := range next.Data {
			if _, ok := next.Venue(id); !ok {
				delete(next.Data, id)
			}
		}
	})
	return nil
}

// Refresh reloads the venue list and the active venue's bundle.  It is
// idempotent and is the shared entry point of polling and the change feed.
func (s *Store) Refresh(ctx context.Context) error {
	venuesErr := s.RefreshVenues(ctx)
	active := s.Snapshot().ActiveVenueID
	if active == "" {
		return venuesErr
	}
	if err := s.LoadVenueData(ctx, active); err != nil {
		return err
	}
	return venuesErr
}

// VerifyDataExists reports whether venueID still has any child, service
// record or usage day.
func (s *Store) VerifyDataExists(ctx context.Context, venueID string) (bool, error) {
	return s.remote.HasVenueData(ctx, venueID)
}
