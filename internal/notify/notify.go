// Package notify implements the local notification dispatcher.
//
// The dispatcher owns the pending set: notifications that are scheduled
// but not yet delivered. The production implementation arms an in-process
// timer per entry and pushes fired reminders through a transport.Sink,
// publishing delivered/actioned events on the bus for anyone who needs
// to react (the reminder scheduler uses them to refill interval batches).
package notify

import (
	"context"
	"time"
)

// Notification is one scheduled-but-not-yet-delivered reminder.
type Notification struct {
	ID     int
	Title  string
	Body   string
	Icon   string
	FireAt time.Time
}

// FiredEvent is the bus payload for delivered/actioned events.
type FiredEvent struct {
	ID     int       `json:"id"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"` // "delivered" or "actioned"
}

// Dispatcher mirrors a platform local-notification plugin.
//
// Schedule replaces nothing: entries accumulate until cancelled or fired.
// Cancel of an id that is not pending is a no-op.
type Dispatcher interface {
	RequestPermission(ctx context.Context) (bool, error)
	CheckPermission(ctx context.Context) (bool, error)

	Schedule(ctx context.Context, batch []Notification) error
	Pending(ctx context.Context) ([]Notification, error)
	Cancel(ctx context.Context, ids []int) error
}
