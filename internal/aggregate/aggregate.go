// Package aggregate runs the fetch-and-merge passes that turn configured
// calendar sources into the published column snapshot.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"calsplit/internal/config"
	"calsplit/internal/model"
	"calsplit/internal/source"
	"calsplit/internal/view"
)

// fetchPadding widens the fetch window by one day on each side so events
// spilling across the range's timezone-dependent edges still arrive.
const fetchPadding = 24 * time.Hour

// Session is the slice of the auth manager an aggregation pass needs.
type Session interface {
	Credential() (model.Credential, bool)
	Invalidate(reason string)
}

// GoogleFactory builds a calendar client around the pass's bearer token.
// A fresh client per pass keeps one consistent token across the fan-out.
type GoogleFactory func(ctx context.Context, token string) (source.Client, error)

// Snapshot is one published aggregation result. Snapshots are immutable;
// each pass replaces the whole thing.
type Snapshot struct {
	Anchor    time.Time       `json:"anchor"`
	Mode      view.Mode       `json:"mode"`
	Range     model.DateRange `json:"range"`
	Columns   []model.Column  `json:"columns"`
	SignedIn  bool            `json:"signed_in"`
	UpdatedAt time.Time       `json:"updated_at"`
	Seq       uint64          `json:"seq"`
}

// Service owns the view state and the latest snapshot, and runs aggregation
// passes against the configured sources.
type Service struct {
	cfg     *config.Config
	session Session
	google  GoogleFactory
	ics     source.Client
	loc     *time.Location
	logger  *slog.Logger

	// passMu serializes passes so publishes arrive in pass order.
	passMu sync.Mutex

	mu       sync.Mutex
	anchor   time.Time
	mode     view.Mode
	seq      uint64
	snapshot Snapshot
	onUpdate func(Snapshot)

	now func() time.Time
}

// New creates a Service anchored on today in the configured default view.
// The location decides which civil day "today" is near midnight boundaries.
func New(cfg *config.Config, session Session, google GoogleFactory, ics source.Client, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{
		cfg:     cfg,
		session: session,
		google:  google,
		ics:     ics,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
	s.anchor = s.now().In(s.loc)
	s.mode = view.ParseMode(cfg.Display.DefaultView, view.ModeDay)
	s.snapshot = Snapshot{
		Anchor:  s.anchor,
		Mode:    s.mode,
		Range:   view.RangeFor(s.anchor, s.mode),
		Columns: emptyColumns(cfg),
	}
	return s
}

// SetOnUpdate registers the callback fired after each published snapshot.
func (s *Service) SetOnUpdate(fn func(Snapshot)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Snapshot returns the latest published snapshot.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// View returns the current anchor and mode.
func (s *Service) View() (time.Time, view.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor, s.mode
}

// SetView moves the view to the given anchor and mode and runs a pass.
func (s *Service) SetView(ctx context.Context, anchor time.Time, mode view.Mode) (Snapshot, error) {
	s.mu.Lock()
	s.anchor = anchor
	s.mode = mode
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Step navigates to the adjacent period in the current mode.
func (s *Service) Step(ctx context.Context, direction int) (Snapshot, error) {
	s.mu.Lock()
	anchor := view.Step(s.anchor, s.mode, direction)
	mode := s.mode
	s.mu.Unlock()
	return s.SetView(ctx, anchor, mode)
}

// Today snaps the anchor back to the current moment.
func (s *Service) Today(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()
	return s.SetView(ctx, s.now().In(s.loc), mode)
}

// Refresh runs one aggregation pass for the current view and publishes the
// result. A provisional snapshot with the columns marked loading goes out
// first so consumers can show progress; the final snapshot is dropped if
// the view moved while the pass was in flight, since the pass queued behind
// it will supersede it anyway.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	cred, signedIn := s.session.Credential()

	s.mu.Lock()
	anchor, mode := s.anchor, s.mode
	r := view.RangeFor(anchor, mode)
	prevColumns := s.snapshot.Columns
	prev := previousEvents(prevColumns)
	loading := s.publishLocked(Snapshot{
		Anchor:   anchor,
		Mode:     mode,
		Range:    r,
		Columns:  loadingColumns(s.cfg, prev),
		SignedIn: signedIn,
	})
	s.mu.Unlock()
	s.notify(loading)

	var google source.Client
	if signedIn {
		c, err := s.google(ctx, cred.Token)
		if err != nil {
			return s.Snapshot(), err
		}
		google = c
	}

	min := r.Start.Add(-fetchPadding)
	max := r.End.Add(fetchPadding)

	columns := make([]model.Column, len(s.cfg.Columns))
	authErrs := make([]error, len(s.cfg.Columns))
	var wg sync.WaitGroup
	for i := range s.cfg.Columns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			col := s.cfg.Columns[i]
			columns[i], authErrs[i] = s.fetchColumn(ctx, google, col, min, max, prev[col.Name])
		}(i)
	}
	wg.Wait()

	for _, err := range authErrs {
		if err == nil {
			continue
		}
		// The whole pass is rejected: nothing fetched with a dead
		// credential is shown, and the prior cycle's events stay on
		// screen until the user signs in again.
		s.session.Invalidate(source.UserMessage(err))
		columns = withoutLoading(prevColumns)
		signedIn = false
		break
	}

	s.mu.Lock()
	if !s.anchor.Equal(anchor) || s.mode != mode {
		s.mu.Unlock()
		s.logger.Debug("pass result discarded; view moved during fetch")
		return s.Snapshot(), nil
	}
	final := s.publishLocked(Snapshot{
		Anchor:   anchor,
		Mode:     mode,
		Range:    r,
		Columns:  columns,
		SignedIn: signedIn,
	})
	s.mu.Unlock()
	s.notify(final)
	return final, nil
}

// fetchColumn fans out over one column's sources, merges the survivors and
// applies the column-level failure rules. The returned error is non-nil
// only for an authentication failure, which the caller escalates.
func (s *Service) fetchColumn(ctx context.Context, google source.Client, col config.Column, min, max time.Time, stale []model.Event) (model.Column, error) {
	type result struct {
		events  []model.Event
		err     error
		skipped bool
	}
	results := make([]result, len(col.Sources))

	var wg sync.WaitGroup
	for j := range col.Sources {
		src := col.Sources[j]
		client := google
		if src.Kind == config.KindICS {
			client = s.ics
		}
		if client == nil {
			// Credential-backed source while signed out. Its slice of the
			// previous pass rides along until re-authentication brings the
			// source back.
			results[j] = result{events: staleFor(stale, src.ID), skipped: true}
			continue
		}
		wg.Add(1)
		go func(j int, src config.Source, client source.Client) {
			defer wg.Done()
			events, err := client.Events(ctx, src, min, max, s.cfg.FallbackColor(j))
			results[j] = result{events: events, err: err}
		}(j, src, client)
	}
	wg.Wait()

	out := model.Column{Name: col.Name}
	var colErr, authErr, transportErr error
	fetched := 0
	for j, res := range results {
		switch {
		case res.err == nil:
			out.Events = append(out.Events, res.events...)
			if !res.skipped {
				fetched++
			}
		case source.IsAuthFailure(res.err):
			authErr = res.err
		case source.IsTransient(res.err):
			// The fetcher already retried; the source degrades to empty
			// rather than poisoning its column.
			transportErr = res.err
			s.logger.Warn("source degraded after transport failure",
				"column", col.Name, "source", col.Sources[j].ID, "error", res.err)
		default:
			colErr = res.err
			s.logger.Warn("source fetch failed",
				"column", col.Name, "source", col.Sources[j].ID, "error", res.err)
		}
	}

	switch {
	case authErr != nil:
		out.Events = nil
		out.Error = source.UserMessage(authErr)
	case fetched == 0 && colErr != nil:
		// Nothing fresh survived, so keep the last known-good list.
		out.Events = stale
		out.Error = source.UserMessage(colErr)
	case fetched == 0 && transportErr != nil:
		out.Events = stale
		out.Error = source.UserMessage(transportErr)
	default:
		// A failed source degrades to empty; its healthy siblings still
		// carry the column, with the failure surfaced alongside.
		if colErr != nil {
			out.Error = source.UserMessage(colErr)
		}
		sort.SliceStable(out.Events, func(a, b int) bool {
			return out.Events[a].Start.Before(out.Events[b].Start)
		})
	}
	return out, authErr
}

// staleFor narrows a column's previous event list to one source.
func staleFor(stale []model.Event, sourceID string) []model.Event {
	var kept []model.Event
	for _, e := range stale {
		if e.SourceID == sourceID {
			kept = append(kept, e)
		}
	}
	return kept
}

// publishLocked stamps and stores a snapshot. Caller holds s.mu.
func (s *Service) publishLocked(snap Snapshot) Snapshot {
	s.seq++
	snap.Seq = s.seq
	snap.UpdatedAt = s.now()
	s.snapshot = snap
	return snap
}

func (s *Service) notify(snap Snapshot) {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// previousEvents indexes the last snapshot's events by column name so a
// failing column can keep showing what it had.
func previousEvents(columns []model.Column) map[string][]model.Event {
	prev := make(map[string][]model.Event, len(columns))
	for _, c := range columns {
		if c.Error == "" || len(c.Events) > 0 {
			prev[c.Name] = c.Events
		}
	}
	return prev
}

func emptyColumns(cfg *config.Config) []model.Column {
	cols := make([]model.Column, len(cfg.Columns))
	for i, c := range cfg.Columns {
		cols[i] = model.Column{Name: c.Name}
	}
	return cols
}

func withoutLoading(columns []model.Column) []model.Column {
	cols := make([]model.Column, len(columns))
	copy(cols, columns)
	for i := range cols {
		cols[i].Loading = false
	}
	return cols
}

func loadingColumns(cfg *config.Config, prev map[string][]model.Event) []model.Column {
	cols := make([]model.Column, len(cfg.Columns))
	for i, c := range cfg.Columns {
		cols[i] = model.Column{Name: c.Name, Events: prev[c.Name], Loading: true}
	}
	return cols
}
