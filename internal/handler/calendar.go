package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"calsplit/internal/aggregate"
	"calsplit/internal/config"
	"calsplit/internal/layout"
	"calsplit/internal/model"
	"calsplit/internal/view"
)

// CalendarHandler serves the aggregated grid and view navigation.
type CalendarHandler struct {
	svc *aggregate.Service
	cfg *config.Config
	loc *time.Location
}

func NewCalendarHandler(svc *aggregate.Service, cfg *config.Config, loc *time.Location) *CalendarHandler {
	return &CalendarHandler{svc: svc, cfg: cfg, loc: loc}
}

type dayGrid struct {
	Date       string            `json:"date"`
	AllDay     []model.Event     `json:"all_day"`
	Placements []model.Placement `json:"placements"`
}

type columnGrid struct {
	Name    string    `json:"name"`
	Loading bool      `json:"loading"`
	Error   string    `json:"error,omitempty"`
	Days    []dayGrid `json:"days"`
}

type gridResponse struct {
	Anchor     time.Time       `json:"anchor"`
	Mode       view.Mode       `json:"mode"`
	Range      model.DateRange `json:"range"`
	SignedIn   bool            `json:"signed_in"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Seq        uint64          `json:"seq"`
	StartHour  int             `json:"start_hour"`
	EndHour    int             `json:"end_hour"`
	HourLabels []string        `json:"hour_labels"`
	Columns    []columnGrid    `json:"columns"`
}

// Grid returns the latest snapshot with full layout geometry, one day list
// per column. The tentative query parameter overrides the configured
// default filter.
func (h *CalendarHandler) Grid(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()

	showTentative := h.cfg.Display.ShowTentative
	if v := r.URL.Query().Get("tentative"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			showTentative = parsed
		}
	}

	win := layout.Window{StartHour: h.cfg.Display.StartHour, EndHour: h.cfg.Display.EndHour}
	days := snap.Range.Days()

	resp := gridResponse{
		Anchor:     snap.Anchor,
		Mode:       snap.Mode,
		Range:      snap.Range,
		SignedIn:   snap.SignedIn,
		UpdatedAt:  snap.UpdatedAt,
		Seq:        snap.Seq,
		StartHour:  win.StartHour,
		EndHour:    win.EndHour,
		HourLabels: view.HourLabels(win.StartHour, win.EndHour),
	}

	for _, col := range snap.Columns {
		events := col.Events
		if !showTentative {
			events = withoutTentative(events)
		}

		cg := columnGrid{Name: col.Name, Loading: col.Loading, Error: col.Error}
		for _, day := range days {
			allDay, timed := layout.SplitDay(events, day)
			if allDay == nil {
				allDay = []model.Event{}
			}
			placements := layout.Place(timed, day, win)
			if placements == nil {
				placements = []model.Placement{}
			}
			cg.Days = append(cg.Days, dayGrid{
				Date:       day.Format("2006-01-02"),
				AllDay:     allDay,
				Placements: placements,
			})
		}
		resp.Columns = append(resp.Columns, cg)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Columns returns the raw snapshot without layout geometry.
func (h *CalendarHandler) Columns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

type navRequest struct {
	Action string `json:"action"`
	Anchor string `json:"anchor"`
	Mode   string `json:"mode"`
}

// Navigate moves the view. Action is "prev", "next" or "today"; an
// explicit anchor date plus mode jumps straight there instead.
func (h *CalendarHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	var (
		snap aggregate.Snapshot
		err  error
	)
	switch req.Action {
	case "prev":
		snap, err = h.svc.Step(r.Context(), -1)
	case "next":
		snap, err = h.svc.Step(r.Context(), 1)
	case "today":
		snap, err = h.svc.Today(r.Context())
	case "":
		anchor, mode, perr := h.parseTarget(req)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Error()})
			return
		}
		snap, err = h.svc.SetView(r.Context(), anchor, mode)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "refresh failed"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Refresh forces an aggregation pass for the current view.
func (h *CalendarHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "refresh failed"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *CalendarHandler) parseTarget(req navRequest) (time.Time, view.Mode, error) {
	curAnchor, curMode := h.svc.View()
	mode := curMode
	if req.Mode != "" {
		mode = view.ParseMode(req.Mode, curMode)
	}
	anchor := curAnchor
	if req.Anchor != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.Anchor, h.loc)
		if err != nil {
			return time.Time{}, "", err
		}
		anchor = parsed
	}
	return anchor, mode, nil
}

func withoutTentative(events []model.Event) []model.Event {
	kept := make([]model.Event, 0, len(events))
	for _, e := range events {
		if !e.Tentative {
			kept = append(kept, e)
		}
	}
	return kept
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
