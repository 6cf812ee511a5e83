// Package queue defines the emergency audit messages exchanged over
// RabbitMQ and the consumer that appends them to an audit log.
package queue

import (
	"fmt"
	"time"
)

// EmergencyQueueName is the durable queue emergency raises are sent to.
const EmergencyQueueName = "emergency.raised"

// EmergencyRaisedEvent is published when a child's emergency flag goes
// from off to on.  It carries enough to audit who had to be called
// without querying the database.
type EmergencyRaisedEvent struct {
	VenueID       string `json:"venue_id"`
	VenueName     string `json:"venue_name"`
	ChildID       string `json:"child_id"`
	ChildName     string `json:"child_name"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
	DeviceID      string `json:"device_id,omitempty"`
	RaisedAt      string `json:"raised_at"`
}

// NewEmergencyRaisedEvent stamps RaisedAt in RFC 3339.
func NewEmergencyRaisedEvent(venueID, venueName, childID, childName, guardianName, guardianPhone, deviceID string, at time.Time) EmergencyRaisedEvent {
	return EmergencyRaisedEvent{
		VenueID:       venueID,
		VenueName:     venueName,
		ChildID:       childID,
		ChildName:     childName,
		GuardianName:  guardianName,
		GuardianPhone: guardianPhone,
		DeviceID:      deviceID,
		RaisedAt:      at.UTC().Format(time.RFC3339),
	}
}

// Line renders the event as one audit log line.
func (ev EmergencyRaisedEvent) Line() string {
	device := ev.DeviceID
	if device == "" {
		device = "-"
	}
	return fmt.Sprintf("[%s] Emergency raised | venue=%q (%s) | child=%q (%s) | guardian=%q | phone=%s | device=%s\n",
		ev.RaisedAt, ev.VenueName, ev.VenueID, ev.ChildName, ev.ChildID, ev.GuardianName, ev.GuardianPhone, device)
}
