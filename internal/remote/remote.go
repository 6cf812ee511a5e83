// Package remote defines the query surface the domain store consumes from
// the relational store, plus an in-memory implementation used for local
// development and tests.  The MySQL implementation lives in the
// repository package.
package remote

import (
	"context"

	"github.com/iliyamo/childcare-checkin/internal/model"
)

// Default list sizes for history queries.
const (
	ServiceHistoryLimit = 10
	UsageDayLimit       = 30
)

// Store is the remote store surface.  Implementations return errors
// classified by the apperr package and publish a change notification
// after every successful write.
type Store interface {
	ListVenues(ctx context.Context) ([]model.Venue, error)
	GetVenueByID(ctx context.Context, id string) (model.Venue, error)
	CreateVenue(ctx context.Context, name string, maxOccupancy int) (model.Venue, error)
	RenameVenue(ctx context.Context, id, name string) (model.Venue, error)
	DeleteVenue(ctx context.Context, id string) error

	GetSettings(ctx context.Context, venueID string) (*model.Settings, error)
	UpsertSettings(ctx context.Context, venueID string, maxOccupancy int) (model.Settings, error)

	ListChildren(ctx context.Context, venueID string) ([]model.Child, error)
	GetChild(ctx context.Context, id string) (model.Child, error)
	InsertChild(ctx context.Context, c model.Child) (model.Child, error)
	UpdateChild(ctx context.Context, id string, patch model.ChildPatch) (model.Child, error)
	DeleteChild(ctx context.Context, id string) (model.Child, error)

	ListServiceRecords(ctx context.Context, venueID string, limit int) ([]model.ServiceRecord, error)
	GetServiceRecordByDate(ctx context.Context, venueID, date string) (*model.ServiceRecord, error)
	UpsertServiceRecord(ctx context.Context, venueID, date string, content model.ServiceContent, childCount int) (model.ServiceRecord, error)

	ListUsageDays(ctx context.Context, venueID string, limit int) ([]model.UsageDay, error)
	UpsertUsageDay(ctx context.Context, d model.UsageDay) error

	DeleteAllChildren(ctx context.Context, venueID string) (int64, error)
	DeleteAllServiceRecords(ctx context.Context, venueID string) (int64, error)
	DeleteAllUsageDays(ctx context.Context, venueID string) (int64, error)

	// EarliestRecordDate returns the oldest calendar date among the venue's
	// children, service records and usage days.  ok is false when the
	// venue has no operational data.
	EarliestRecordDate(ctx context.Context, venueID string) (date string, ok bool, err error)
	// HasVenueData reports whether any child, service record or usage day
	// exists for the venue.
	HasVenueData(ctx context.Context, venueID string) (bool, error)
}
