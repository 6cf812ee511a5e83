package model

import "time"

// ServiceRecord logs one congregational service held at a venue on a
// given date.  There is at most one record per (venue, date); writes
// upsert instead of inserting a duplicate.
//
// Fields:
//  ID            – opaque identifier (UUID string).
//  VenueID       – owning venue.
//  Date          – calendar date of the service (YYYY-MM-DD).
//  ScriptureRead – passage read during the lesson.
//  HymnsSung     – hymns sung with the children.
//  LessonSummary – short description of the lesson.
//  ChildCount    – attendance snapshot taken when the record was filed.
type ServiceRecord struct {
	ID            string    `json:"id" validate:"required"`
	VenueID       string    `json:"venueId" validate:"required"`
	Date          string    `json:"date" validate:"required,caldate"`
	ScriptureRead string    `json:"scriptureRead" validate:"max=500"`
	HymnsSung     string    `json:"hymnsSung" validate:"max=500"`
	LessonSummary string    `json:"lessonSummary" validate:"max=4000"`
	ChildCount    int       `json:"childCount" validate:"gte=0"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ServiceContent is the user-editable part of a ServiceRecord.
type ServiceContent struct {
	ScriptureRead string `json:"scriptureRead" validate:"max=500"`
	HymnsSung     string `json:"hymnsSung" validate:"max=500"`
	LessonSummary string `json:"lessonSummary" validate:"max=4000"`
}

// UsageDay is a daily attendance snapshot of a venue, upserted every time
// presence changes.  One row per (venue, date).
type UsageDay struct {
	VenueID     string `json:"venueId" validate:"required"`
	Date        string `json:"date" validate:"required,caldate"`
	ChildCount  int    `json:"childCount" validate:"gte=0"`
	ServiceHeld bool   `json:"serviceHeld"`
}
