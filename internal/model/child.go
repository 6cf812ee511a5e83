package model

import "time"

// GuardianRelation is the relationship of the responsible party to the child.
type GuardianRelation string

const (
	RelationFather GuardianRelation = "father"
	RelationMother GuardianRelation = "mother"
	RelationOther  GuardianRelation = "other"
)

// Valid reports whether r is one of the known relations.
func (r GuardianRelation) Valid() bool {
	switch r {
	case RelationFather, RelationMother, RelationOther:
		return true
	}
	return false
}

// Child is a child presence record: a child currently (or formerly, until
// checkout or the retention sweep) checked into a venue's childcare room.
// EmergencyActive is toggled by any device to ask ushers to fetch the
// responsible party.
//
// Fields:
//  ID               – opaque identifier (UUID string).
//  VenueID          – owning venue.
//  Name             – child's name.
//  GuardianName     – responsible party's name.
//  GuardianRelation – father, mother or other.
//  GuardianPhone    – contact phone of the responsible party.
//  Notes            – free text (allergies, etc).
//  CheckInTime      – when the child was checked in.
//  EmergencyActive  – whether the guardian must be called.
//  RegistrationDate – local calendar date (YYYY-MM-DD) of check-in.
type Child struct {
	ID               string           `json:"id" validate:"required"`
	VenueID          string           `json:"venueId" validate:"required"`
	Name             string           `json:"name" validate:"required,max=120"`
	GuardianName     string           `json:"guardianName" validate:"required,max=120"`
	GuardianRelation GuardianRelation `json:"guardianRelation" validate:"required,oneof=father mother other"`
	GuardianPhone    string           `json:"guardianPhone" validate:"required,max=40"`
	Notes            string           `json:"notes" validate:"max=1000"`
	CheckInTime      time.Time        `json:"checkInTime"`
	EmergencyActive  bool             `json:"emergencyActive"`
	RegistrationDate string           `json:"registrationDate" validate:"required,caldate"`
}

// ChildPatch is a partial update of a Child.  Nil fields are left unchanged.
type ChildPatch struct {
	Name             *string           `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	GuardianName     *string           `json:"guardianName,omitempty" validate:"omitempty,min=1,max=120"`
	GuardianRelation *GuardianRelation `json:"guardianRelation,omitempty" validate:"omitempty,oneof=father mother other"`
	GuardianPhone    *string           `json:"guardianPhone,omitempty" validate:"omitempty,min=1,max=40"`
	Notes            *string           `json:"notes,omitempty" validate:"omitempty,max=1000"`
	EmergencyActive  *bool             `json:"emergencyActive,omitempty"`
}

// Apply returns a copy of c with the non-nil fields of p applied.
func (p ChildPatch) Apply(c Child) Child {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.GuardianName != nil {
		c.GuardianName = *p.GuardianName
	}
	if p.GuardianRelation != nil {
		c.GuardianRelation = *p.GuardianRelation
	}
	if p.GuardianPhone != nil {
		c.GuardianPhone = *p.GuardianPhone
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if p.EmergencyActive != nil {
		c.EmergencyActive = *p.EmergencyActive
	}
	return c
}

// CheckIn is the caregiver-supplied part of a new Child.  The store fills
// in the identifier, venue, check-in time and registration date.
type CheckIn struct {
	Name             string           `json:"name" validate:"required,max=120"`
	GuardianName     string           `json:"guardianName" validate:"required,max=120"`
	GuardianRelation GuardianRelation `json:"guardianRelation" validate:"required,oneof=father mother other"`
	GuardianPhone    string           `json:"guardianPhone" validate:"required,max=40"`
	Notes            string           `json:"notes" validate:"max=1000"`
}
