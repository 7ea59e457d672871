// Package transport defines the delivery surface for reminder messages.
//
// A Sink is the snusd analogue of a platform notification channel: it
// delivers the rendered reminder to the user and reports user actions
// (e.g. an inline "logged it" button press) back to the dispatcher.
package transport

import "context"

// Delivery is one outbound reminder message.
//
// ID is the notification id assigned by the scheduler; it is echoed back
// on action events so the dispatcher can correlate them.
type Delivery struct {
	ID    int
	Title string
	Body  string
	Icon  string
}

// ActionFunc is invoked when the user acts on a delivered reminder.
type ActionFunc func(id int)

type Sink interface {
	// Start begins consuming user actions (if the sink supports any).
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Deliver sends one reminder to the user.
	Deliver(ctx context.Context, d Delivery) error

	// CheckReachable reports whether the sink can currently reach the
	// user. This is the daemon's permission gate: an unreachable sink
	// means reminders must not be enabled.
	CheckReachable(ctx context.Context) error

	// OnAction registers the callback for user action events.
	// Only one callback is supported; later calls replace earlier ones.
	OnAction(fn ActionFunc)
}
