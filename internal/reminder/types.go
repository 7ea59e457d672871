package reminder

import (
	"errors"
	"time"
)

// Mode selects the active scheduling strategy.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeInterval Mode = "interval"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeSingle, ModeInterval:
		return Mode(s), true
	default:
		return "", false
	}
}

var (
	// ErrPermissionDenied means enabling was requested but the sink
	// cannot reach the user; the enabled flag stays false.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrInvalidInterval rejects interval hours outside 1..12.
	ErrInvalidInterval = errors.New("interval hours must be between 1 and 12")

	// ErrInvalidTime rejects an out-of-range time of day.
	ErrInvalidTime = errors.New("time of day out of range")
)

// Settings is the durable reminder configuration.
//
// Both strategies keep their parameters regardless of which mode is
// active, so switching modes restores prior values.
type Settings struct {
	Mode          Mode
	Enabled       bool
	SingleHour    int
	SingleMinute  int
	HaveSingle    bool // a single time has been set at least once
	IntervalHours int
}

// Snapshot is the read surface exposed to UIs.
type Snapshot struct {
	Settings   Settings
	NextSingle time.Time // zero unless a single reminder is armed
}

const (
	// MaxIntervalHours bounds the recurring spacing to a rolling day.
	MaxIntervalHours = 12

	// maxBatch caps one interval batch; the schedule is re-primed on
	// every delivery anyway, so a longer horizon is wasted work.
	maxBatch = 24

	defaultIntervalHours = 2
)

// Notification ids are derived from (mode, slot) rather than a counter,
// so a restart can never collide with ids still pending in the
// dispatcher: the single reminder is always id 1, interval slot k is
// always 100+k.
const (
	singleID         = 1
	intervalIDOffset = 100
)

func intervalID(slot int) int { return intervalIDOffset + slot }
