// Package changefeed carries row-change notifications between devices.
// Writers publish a Notification after every successful write to the
// remote store; devices subscribe per table, scoped to their active venue,
// and turn notifications into refreshes and emergency alerts.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/childcare-checkin/internal/model"
)

// Table names a subscribable table.
type Table string

const (
	TableVenues    Table = "venues"
	TableSettings  Table = "venue_settings"
	TableChildren  Table = "children"
	TableServices  Table = "service_records"
	TableUsageDays Table = "usage_days"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Notification describes one row change.  Old is set for updates and
// deletes, New for inserts and updates.  VenueID is empty for the venues
// table, which is broadcast globally.
type Notification struct {
	Table     Table           `json:"table"`
	EventType EventType       `json:"eventType"`
	VenueID   string          `json:"venueId,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	At        time.Time       `json:"at"`
}

// NewNotification marshals the old and new rows into a Notification.
// A nil row is left empty.
func NewNotification(table Table, ev EventType, venueID string, oldRow, newRow any) (Notification, error) {
	n := Notification{Table: table, EventType: ev, VenueID: venueID, At: time.Now()}
	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			return n, fmt.Errorf("marshal old row: %w", err)
		}
		n.Old = b
	}
	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			return n, fmt.Errorf("marshal new row: %w", err)
		}
		n.New = b
	}
	return n, nil
}

// NewChild decodes and validates the new row of a children notification.
// Malformed rows are rejected so they never reach the domain store.
func (n Notification) NewChild() (model.Child, error) {
	var c model.Child
	if n.Table != TableChildren {
		return c, fmt.Errorf("notification for %s is not a child row", n.Table)
	}
	if len(n.New) == 0 {
		return c, fmt.Errorf("notification has no new row")
	}
	if err := json.Unmarshal(n.New, &c); err != nil {
		return c, fmt.Errorf("decode child row: %w", err)
	}
	if err := model.Validate("changefeed.child", c); err != nil {
		return c, err
	}
	return c, nil
}

// OldChildID returns the id of the old row of a children notification.
func (n Notification) OldChildID() string {
	if len(n.Old) == 0 {
		return ""
	}
	var row struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(n.Old, &row); err != nil {
		return ""
	}
	return row.ID
}

// Channel returns the pub/sub channel for a table and venue.  The venues
// table has a single global channel.
func Channel(table Table, venueID string) string {
	if table == TableVenues || venueID == "" {
		return "feed:" + string(table)
	}
	return "feed:" + string(table) + ":" + venueID
}

// Handler receives notifications of one subscription.
type Handler func(Notification)

// Subscription is an active subscription handle.
type Subscription interface {
	Unsubscribe() error
}

// Publisher emits notifications.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Broker is the transport: it publishes notifications and lets callers
// subscribe to one table scoped by venue.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, table Table, venueID string, h Handler) (Subscription, error)
}

// Publish marshals the rows and publishes them through p.  A nil p is a
// no-op so writers can run without a feed.
func Publish(ctx context.Context, p Publisher, table Table, ev EventType, venueID string, oldRow, newRow any) error {
	if p == nil {
		return nil
	}
	n, err := NewNotification(table, ev, venueID, oldRow, newRow)
	if err != nil {
		return err
	}
	return p.Publish(ctx, n)
}
