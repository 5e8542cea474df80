package model

import "time"

// Event is the normalized internal representation of a calendar event,
// regardless of which source kind produced it.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Tentative   bool      `json:"tentative"`
	SourceID    string    `json:"source_id"`
	SourceName  string    `json:"source_name,omitempty"`
	Color       string    `json:"color"`
	Link        string    `json:"link,omitempty"`

	// Raw is the original source record, kept only so callers can pass
	// details through to a display layer. It is never re-parsed.
	Raw any `json:"-"`
}

// Overlaps reports whether the event intersects the half-open interval
// [start, end).
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// OnDay reports whether any part of the event falls on the civil day
// containing the given time, in that time's location.
func (e Event) OnDay(day time.Time) bool {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return e.Overlaps(dayStart, dayStart.AddDate(0, 0, 1))
}
