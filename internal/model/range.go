package model

import "time"

// DateRange is the inclusive display window for one view.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days returns each civil day in the range, midnight-aligned.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	d := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, r.Start.Location())
	for !d.After(r.End) {
		days = append(days, d)
		d = d.AddDate(0, 0, 1)
	}
	return days
}
