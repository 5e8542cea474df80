// Package classify converts raw source records into the internal event
// model, deciding all-day handling, tentativeness, and color.
package classify

import (
	"fmt"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"calsplit/internal/config"
	"calsplit/internal/model"
)

const untitled = "(No title)"

// tentativeKeywords catch sources that do not model tentativeness
// explicitly. Best effort: false positives are an accepted trade-off.
var tentativeKeywords = []string{"maybe", "tentative", "possibly", "perhaps", "?"}

const civilDate = "2006-01-02"

// FromGoogle normalizes one Google Calendar event. Returns (nil, nil) for
// cancelled events, which are filtered rather than retained. All-day
// boundaries are taken as civil midnights in loc, never shifted across
// timezones.
func FromGoogle(item *calendar.Event, src config.Source, fallbackColor string, loc *time.Location) (*model.Event, error) {
	if item.Status == "cancelled" {
		return nil, nil
	}

	allDay := item.Start != nil && item.Start.DateTime == "" && item.Start.Date != ""

	var start, end time.Time
	var err error
	if allDay {
		start, err = time.ParseInLocation(civilDate, item.Start.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("event %s: parse start date: %w", item.Id, err)
		}
		end, err = time.ParseInLocation(civilDate, item.End.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("event %s: parse end date: %w", item.Id, err)
		}
	} else {
		if item.Start == nil || item.End == nil {
			return nil, fmt.Errorf("event %s: missing boundaries", item.Id)
		}
		start, err = time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return nil, fmt.Errorf("event %s: parse start: %w", item.Id, err)
		}
		end, err = time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return nil, fmt.Errorf("event %s: parse end: %w", item.Id, err)
		}
	}
	if end.Before(start) {
		end = start
	}

	title := item.Summary
	if title == "" {
		title = untitled
	}

	color := src.Color
	if color == "" {
		color = fallbackColor
	}

	return &model.Event{
		ID:          item.Id,
		Title:       title,
		Description: item.Description,
		Location:    item.Location,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Tentative:   googleTentative(item),
		SourceID:    src.ID,
		SourceName:  src.Name,
		Color:       color,
		Link:        item.HtmlLink,
		Raw:         item,
	}, nil
}

// googleTentative derives tentativeness by priority: explicit tentative
// status, then the viewing user's own attendance response, then title
// keywords.
func googleTentative(item *calendar.Event) bool {
	if item.Status == "tentative" {
		return true
	}
	for _, a := range item.Attendees {
		if a.Self && a.ResponseStatus == "tentative" {
			return true
		}
	}
	return TitleSuggestsTentative(item.Summary)
}

// TitleSuggestsTentative reports whether the title contains one of the
// tentative keywords, case-insensitively.
func TitleSuggestsTentative(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range tentativeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
