package journal

import "time"

// Entry is one logged consumption event.
//
// Latitude/Longitude are pointers because a fix is optional; both are
// set or both are nil.
type Entry struct {
	ID         string
	Product    string
	Note       string
	PhotoPath  string
	Latitude   *float64
	Longitude  *float64
	Companions []string
	ConsumedAt time.Time
	CreatedAt  time.Time
}

// DayCount is one bucket of the per-day stats rollup.
type DayCount struct {
	Day   string // YYYY-MM-DD, local time
	Count int
}

// Bounds is a geographic bounding box for the map view query.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}
