package model

import "time"

// Venue represents a church unit whose childcare room is managed by the
// application.  All operational data (children, service records, usage
// days, settings) is scoped to one venue and is removed when the venue
// is deleted.  This struct corresponds to a row in the `venues` table.
//
// Fields:
//  ID           – opaque identifier (UUID string).
//  Name         – display name; the only mutable field.
//  RegisteredAt – when the venue was created.
type Venue struct {
	ID           string    `json:"id" validate:"required"`
	Name         string    `json:"name" validate:"required,max=120"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Settings holds the capacity configuration of a venue.  There is exactly
// one row per venue, created together with the venue and upserted after.
//
// Fields:
//  VenueID      – owning venue.
//  MaxOccupancy – maximum number of children checked in at once.
type Settings struct {
	VenueID      string    `json:"venueId" validate:"required"`
	MaxOccupancy int       `json:"maxOccupancy" validate:"gt=0"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DefaultMaxOccupancy is the capacity assigned to newly created venues.
const DefaultMaxOccupancy = 30
