package classify

import (
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calsplit/internal/config"
	"calsplit/internal/model"
)

// FromICS normalizes one VEVENT from an iCalendar feed. Cancelled events
// return (nil, nil). All-day detection follows DTSTART: VALUE=DATE or a
// date-only value means an all-day event anchored at civil midnight in loc.
//
// Recurring events contribute their base occurrence only; recurrence
// expansion is out of scope for this engine.
func FromICS(ve *ical.VEvent, src config.Source, fallbackColor string, loc *time.Location) (*model.Event, error) {
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil &&
		strings.EqualFold(p.Value, "CANCELLED") {
		return nil, nil
	}

	uid := ve.Id()
	if uid == "" {
		return nil, errors.New("ics event: missing UID")
	}

	allDay := false
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			allDay = true
		}
		if !strings.Contains(dtStart.Value, "T") {
			allDay = true
		}
	}

	var start, end time.Time
	if allDay {
		s, err := ve.GetAllDayStartAt()
		if err != nil {
			return nil, err
		}
		start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
		if e, err := ve.GetAllDayEndAt(); err == nil {
			end = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, loc)
		} else {
			end = start.AddDate(0, 0, 1)
		}
	} else {
		var err error
		start, err = ve.GetStartAt()
		if err != nil {
			return nil, err
		}
		end, err = ve.GetEndAt()
		if err != nil {
			end = start
		}
	}
	if end.Before(start) {
		end = start
	}

	title := icsProp(ve, ical.ComponentPropertySummary)
	if title == "" {
		title = untitled
	}

	color := src.Color
	if color == "" {
		color = fallbackColor
	}

	tentative := false
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil &&
		strings.EqualFold(p.Value, "TENTATIVE") {
		tentative = true
	}
	if !tentative {
		tentative = TitleSuggestsTentative(title)
	}

	return &model.Event{
		ID:          uid,
		Title:       title,
		Description: icsProp(ve, ical.ComponentPropertyDescription),
		Location:    icsProp(ve, ical.ComponentPropertyLocation),
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Tentative:   tentative,
		SourceID:    src.ID,
		SourceName:  src.Name,
		Color:       color,
		Raw:         ve,
	}, nil
}

func icsProp(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}
