package model

import "time"

// VenueData is the per-venue bundle mirrored by a device.  A bundle is
// never mutated after it has been published; updates build a new one.
type VenueData struct {
	VenueID   string          `json:"venueId"`
	Settings  *Settings       `json:"settings,omitempty"`
	Children  []Child         `json:"children"`
	Services  []ServiceRecord `json:"services"`
	UsageDays []UsageDay      `json:"usageDays"`
	LoadedAt  time.Time       `json:"loadedAt"`
}

// Clone returns a deep copy of d whose slices can be modified freely.
func (d *VenueData) Clone() *VenueData {
	if d == nil {
		return nil
	}
	out := *d
	if d.Settings != nil {
		s := *d.Settings
		out.Settings = &s
	}
	out.Children = append([]Child(nil), d.Children...)
	out.Services = append([]ServiceRecord(nil), d.Services...)
	out.UsageDays = append([]UsageDay(nil), d.UsageDays...)
	return &out
}

// Child returns the child with the given id.
func (d *VenueData) Child(id string) (Child, bool) {
	if d == nil {
		return Child{}, false
	}
	for _, c := range d.Children {
		if c.ID == id {
			return c, true
		}
	}
	return Child{}, false
}

// ActiveEmergencies returns the children whose emergency flag is raised.
func (d *VenueData) ActiveEmergencies() []Child {
	if d == nil {
		return nil
	}
	var out []Child
	for _, c := range d.Children {
		if c.EmergencyActive {
			out = append(out, c)
		}
	}
	return out
}

// Occupancy reports how many children are present against the capacity.
type Occupancy struct {
	Present int  `json:"present"`
	Max     int  `json:"max"`
	Full    bool `json:"full"`
}

// Occupancy computes the current occupancy of the bundle.
func (d *VenueData) Occupancy() Occupancy {
	if d == nil {
		return Occupancy{}
	}
	o := Occupancy{Present: len(d.Children)}
	if d.Settings != nil {
		o.Max = d.Settings.MaxOccupancy
		o.Full = o.Max > 0 && o.Present >= o.Max
	}
	return o
}

// Summary is the daily overview of a venue.
type Summary struct {
	VenueID          string     `json:"venueId"`
	Date             string     `json:"date"`
	ChildCount       int        `json:"childCount"`
	EmergencyCount   int        `json:"emergencyCount"`
	Occupancy        Occupancy  `json:"occupancy"`
	ServiceHeldToday bool       `json:"serviceHeldToday"`
	UsageDays        []UsageDay `json:"usageDays"`
}
