// Package layout turns a day's timed events into non-overlapping
// side-by-side placements for a time grid.
package layout

import (
	"sort"
	"time"

	"calsplit/internal/model"
)

const (
	// gutterPct is shaved off each cluster column so adjacent events
	// don't touch.
	gutterPct = 1.0
	// minHeightPct keeps near-zero-duration events clickable.
	minHeightPct = 1.5
)

// Window is the visible hour range [StartHour, EndHour) used for vertical
// geometry.
type Window struct {
	StartHour int
	EndHour   int
}

// Minutes returns the window's total span in minutes.
func (w Window) Minutes() int {
	return (w.EndHour - w.StartHour) * 60
}

// SplitDay partitions a column's events for one civil day into the all-day
// list and the timed list, the latter sorted ascending by start.
func SplitDay(events []model.Event, day time.Time) (allDay, timed []model.Event) {
	for _, e := range events {
		if !e.OnDay(day) {
			continue
		}
		if e.AllDay {
			allDay = append(allDay, e)
		} else {
			timed = append(timed, e)
		}
	}
	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].Start.Before(timed[j].Start)
	})
	return allDay, timed
}

// Clusters partitions start-sorted timed events into maximal runs of
// overlap-connected events using a single greedy pass: a new cluster opens
// whenever an event starts at or after the open cluster's running max end.
//
// These are connectivity clusters, not pairwise-overlap cliques: two events
// that each overlap a third share its cluster even if they never touch each
// other. Deliberately greedy; chronological left-to-right stability beats
// minimal visual width here.
func Clusters(events []model.Event) [][]model.Event {
	if len(events) == 0 {
		return nil
	}

	var groups [][]model.Event
	var current []model.Event
	var currentEnd time.Time

	for _, e := range events {
		if len(current) == 0 || !e.Start.Before(currentEnd) {
			if len(current) > 0 {
				groups = append(groups, current)
			}
			current = []model.Event{e}
			currentEnd = e.End
		} else {
			current = append(current, e)
			if e.End.After(currentEnd) {
				currentEnd = e.End
			}
		}
	}
	return append(groups, current)
}

// Place computes the full grid geometry for one day's timed events, which
// must already be sorted ascending by start. Events entirely outside the
// visible window still get a clamped-to-edge placement so the consuming UI
// can reach them.
func Place(events []model.Event, day time.Time, win Window) []model.Placement {
	var placements []model.Placement

	for _, cluster := range Clusters(events) {
		n := len(cluster)
		width := 100.0 / float64(n)

		for i, e := range cluster {
			p := vertical(e, day, win)
			p.ColumnIndex = i
			p.ColumnCount = n
			p.Left = float64(i) * width
			p.Width = width - gutterPct
			placements = append(placements, p)
		}
	}
	return placements
}

// vertical computes the top/height percentages for one event against the
// visible window, clamping the interval to the window's bounds.
func vertical(e model.Event, day time.Time, win Window) model.Placement {
	winStart := time.Date(day.Year(), day.Month(), day.Day(), win.StartHour, 0, 0, 0, day.Location())
	winEnd := time.Date(day.Year(), day.Month(), day.Day(), win.EndHour, 0, 0, 0, day.Location())
	total := float64(win.Minutes())

	start := e.Start
	if start.Before(winStart) {
		start = winStart
	}
	end := e.End
	if end.After(winEnd) {
		end = winEnd
	}
	if end.Before(start) {
		end = start
	}

	top := start.Sub(winStart).Minutes() / total * 100
	if top < 0 {
		top = 0
	}
	if top > 100 {
		top = 100
	}

	height := end.Sub(start).Minutes() / total * 100
	if height < minHeightPct {
		height = minHeightPct
	}
	if top+height > 100 {
		height = 100 - top
	}

	return model.Placement{
		Event:              e,
		Top:                top,
		Height:             height,
		StartsBeforeWindow: e.Start.Before(winStart),
		EndsAfterWindow:    e.End.After(winEnd),
	}
}
