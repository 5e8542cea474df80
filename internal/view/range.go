// Package view holds the pure date arithmetic behind view navigation:
// anchor date + mode -> display range, and the prev/next stepping rules.
package view

import (
	"time"

	"calsplit/internal/model"
)

// Mode selects the range formula.
type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

// ParseMode validates a mode string, falling back to the given default.
func ParseMode(s string, fallback Mode) Mode {
	switch Mode(s) {
	case ModeDay, ModeWeek, ModeMonth:
		return Mode(s)
	default:
		return fallback
	}
}

// RangeFor returns the inclusive display window for anchor in the given
// mode. Weeks start on Sunday. Month view covers the calendar-grid month:
// padded backward to the nearest Sunday and forward to the nearest Saturday
// so every displayed week is complete.
func RangeFor(anchor time.Time, mode Mode) model.DateRange {
	switch mode {
	case ModeWeek:
		start := startOfWeek(anchor)
		return model.DateRange{Start: start, End: endOfDay(start.AddDate(0, 0, 6))}
	case ModeMonth:
		monthStart := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		monthEnd := monthStart.AddDate(0, 1, -1)
		return model.DateRange{
			Start: startOfWeek(monthStart),
			End:   endOfDay(startOfWeek(monthEnd).AddDate(0, 0, 6)),
		}
	default:
		return model.DateRange{Start: startOfDay(anchor), End: endOfDay(anchor)}
	}
}

// Step returns the anchor for the adjacent period: ±1 day, ±7 days, or ±1
// calendar month. Month stepping clamps the day-of-month to the target
// month's length (Jan 31 -> Feb 28), so stepping is not always invertible
// at month boundaries. "Go to today" is the caller substituting now().
func Step(anchor time.Time, mode Mode, direction int) time.Time {
	if direction >= 0 {
		direction = 1
	} else {
		direction = -1
	}
	switch mode {
	case ModeWeek:
		return anchor.AddDate(0, 0, 7*direction)
	case ModeMonth:
		return stepMonth(anchor, direction)
	default:
		return anchor.AddDate(0, 0, direction)
	}
}

// stepMonth moves one calendar month, preserving the day-of-month where the
// target month has it and clamping to the month's last day otherwise.
// time.AddDate would normalize Jan 31 + 1 month into March; the clamp keeps
// navigation inside adjacent months.
func stepMonth(anchor time.Time, direction int) time.Time {
	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
	target := first.AddDate(0, direction, 0)
	lastDay := target.AddDate(0, 1, -1).Day()

	day := anchor.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	return d.AddDate(0, 0, -int(d.Weekday()))
}
