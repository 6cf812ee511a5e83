package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/childcare-checkin/internal/apperr"
)

func validChild() Child {
	return Child{
		ID:               "c1",
		VenueID:          "v1",
		Name:             "Ana",
		GuardianName:     "Maria",
		GuardianRelation: RelationMother,
		GuardianPhone:    "+55 11 99999-0000",
		CheckInTime:      time.Date(2025, 10, 11, 19, 0, 0, 0, time.Local),
		RegistrationDate: "2025-10-11",
	}
}

func TestValidate_Child(t *testing.T) {
	t.Run("accepts a complete record", func(t *testing.T) {
		require.NoError(t, Validate("child", validChild()))
	})

	t.Run("rejects bad relation and date", func(t *testing.T) {
		c := validChild()
		c.GuardianRelation = "uncle"
		c.RegistrationDate = "11/10/2025"

		err := Validate("child", c)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrValidationFailed))
		assert.Contains(t, apperr.Message(err), "GuardianRelation")
		assert.Contains(t, apperr.Message(err), "RegistrationDate must be a YYYY-MM-DD date")
	})

	t.Run("rejects missing name", func(t *testing.T) {
		c := validChild()
		c.Name = ""
		err := Validate("child", c)
		assert.Contains(t, apperr.Message(err), "Name is required")
	})
}

func TestValidate_Settings(t *testing.T) {
	assert.NoError(t, Validate("settings", Settings{VenueID: "v1", MaxOccupancy: 1}))
	assert.Error(t, Validate("settings", Settings{VenueID: "v1", MaxOccupancy: 0}))
}

func TestIsCalendarDate(t *testing.T) {
	assert.True(t, IsCalendarDate("2025-10-11"))
	assert.False(t, IsCalendarDate("2025-13-01"))
	assert.False(t, IsCalendarDate("2025-10-11T00:00:00Z"))
	assert.False(t, IsCalendarDate(""))
}

func TestChildPatch_Apply(t *testing.T) {
	c := validChild()
	active := true
	name := "Ana Clara"

	out := ChildPatch{Name: &name, EmergencyActive: &active}.Apply(c)

	assert.Equal(t, "Ana Clara", out.Name)
	assert.True(t, out.EmergencyActive)
	assert.Equal(t, c.GuardianName, out.GuardianName)
	assert.Equal(t, "Ana", c.Name, "original must not change")
}

func TestVenueData(t *testing.T) {
	a := validChild()
	b := validChild()
	b.ID = "c2"
	b.EmergencyActive = true

	d := &VenueData{
		VenueID:  "v1",
		Settings: &Settings{VenueID: "v1", MaxOccupancy: 2},
		Children: []Child{a, b},
	}

	t.Run("occupancy", func(t *testing.T) {
		o := d.Occupancy()
		assert.Equal(t, Occupancy{Present: 2, Max: 2, Full: true}, o)
	})

	t.Run("active emergencies", func(t *testing.T) {
		em := d.ActiveEmergencies()
		require.Len(t, em, 1)
		assert.Equal(t, "c2", em[0].ID)
	})

	t.Run("clone is independent", func(t *testing.T) {
		cp := d.Clone()
		cp.Children[0].Name = "changed"
		cp.Settings.MaxOccupancy = 10
		assert.Equal(t, "Ana", d.Children[0].Name)
		assert.Equal(t, 2, d.Settings.MaxOccupancy)
	})

	t.Run("nil bundle", func(t *testing.T) {
		var nilData *VenueData
		assert.Nil(t, nilData.Clone())
		assert.Equal(t, Occupancy{}, nilData.Occupancy())
		_, ok := nilData.Child("c1")
		assert.False(t, ok)
	})
}
