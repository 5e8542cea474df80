package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"calsplit/internal/config"
	"calsplit/internal/model"
	"calsplit/internal/source"
	"calsplit/internal/view"
)

var anchor = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSession struct {
	mu          sync.Mutex
	signedIn    bool
	invalidated []string
}

func (f *fakeSession) Credential() (model.Credential, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signedIn {
		return model.Credential{}, false
	}
	return model.Credential{Token: "tok"}, true
}

func (f *fakeSession) Invalidate(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedIn = false
	f.invalidated = append(f.invalidated, reason)
}

type fetchCall struct {
	sourceID string
	min, max time.Time
}

// fakeClient serves canned responses keyed by source ID and records the
// windows it was asked for.
type fakeClient struct {
	mu     sync.Mutex
	events map[string][]model.Event
	errs   map[string]error
	calls  []fetchCall
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		events: make(map[string][]model.Event),
		errs:   make(map[string]error),
	}
}

func (f *fakeClient) Events(_ context.Context, src config.Source, min, max time.Time, _ string) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{sourceID: src.ID, min: min, max: max})
	if err := f.errs[src.ID]; err != nil {
		return nil, err
	}
	return f.events[src.ID], nil
}

func ev(id string, hour int) model.Event {
	start := time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
	return model.Event{ID: id, Title: id, Start: start, End: start.Add(time.Hour)}
}

func testConfig(columns ...config.Column) *config.Config {
	cfg := config.Default()
	cfg.Columns = columns
	return cfg
}

func newService(cfg *config.Config, session *fakeSession, google, ics *fakeClient) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func(context.Context, string) (source.Client, error) { return google, nil }
	return New(cfg, session, factory, ics, time.UTC, logger)
}

func column(snap Snapshot, name string) model.Column {
	for _, c := range snap.Columns {
		if c.Name == name {
			return c
		}
	}
	return model.Column{}
}

func TestRefreshMergesAndSortsColumnSources(t *testing.T) {
	cfg := testConfig(config.Column{Name: "alice", Sources: []config.Source{
		{ID: "work"}, {ID: "personal"},
	}})
	google := newFakeClient()
	google.events["work"] = []model.Event{ev("w2", 14), ev("w1", 9)}
	google.events["personal"] = []model.Event{ev("p1", 11)}
	svc := newService(cfg, &fakeSession{signedIn: true}, google, newFakeClient())

	snap, err := svc.SetView(context.Background(), anchor, view.ModeDay)
	if err != nil {
		t.Fatalf("SetView: %v", err)
	}

	got := column(snap, "alice")
	if got.Error != "" {
		t.Fatalf("column error = %q, want none", got.Error)
	}
	var ids []string
	for _, e := range got.Events {
		ids = append(ids, e.ID)
	}
	want := []string{"w1", "p1", "w2"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("merged events = %v, want %v sorted by start", ids, want)
	}
}

func TestColumnFailureKeepsStaleEvents(t *testing.T) {
	cfg := testConfig(
		config.Column{Name: "alice", Sources: []config.Source{{ID: "a"}}},
		config.Column{Name: "bob", Sources: []config.Source{{ID: "b"}}},
	)
	google := newFakeClient()
	google.events["a"] = []model.Event{ev("a1", 9)}
	google.events["b"] = []model.Event{ev("b1", 10)}
	svc := newService(cfg, &fakeSession{signedIn: true}, google, newFakeClient())

	ctx := context.Background()
	if _, err := svc.SetView(ctx, anchor, view.ModeDay); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	google.mu.Lock()
	google.errs["a"] = fmt.Errorf("source a: %w", source.ErrAccessDenied)
	google.events["b"] = []model.Event{ev("b1", 10), ev("b2", 15)}
	google.mu.Unlock()

	snap, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	alice := column(snap, "alice")
	if alice.Error == "" {
		t.Error("failing column should carry a user-facing error")
	}
	if len(alice.Events) != 1 || alice.Events[0].ID != "a1" {
		t.Errorf("failing column events = %v, want the previous pass's events kept", alice.Events)
	}

	bob := column(snap, "bob")
	if bob.Error != "" || len(bob.Events) != 2 {
		t.Errorf("healthy column = %+v, want fresh data unaffected by the other column", bob)
	}
}

func TestAuthFailureRejectsPassAndInvalidatesSession(t *testing.T) {
	cfg := testConfig(
		config.Column{Name: "alice", Sources: []config.Source{{ID: "a"}}},
		config.Column{Name: "bob", Sources: []config.Source{{ID: "b"}}},
	)
	google := newFakeClient()
	google.events["a"] = []model.Event{ev("a1", 9)}
	google.events["b"] = []model.Event{ev("b1", 10)}
	session := &fakeSession{signedIn: true}
	svc := newService(cfg, session, google, newFakeClient())

	ctx := context.Background()
	if _, err := svc.SetView(ctx, anchor, view.ModeDay); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	google.mu.Lock()
	google.errs["a"] = fmt.Errorf("source a: %w", source.ErrUnauthorized)
	google.events["b"] = []model.Event{ev("b1", 10), ev("b2", 15)}
	google.mu.Unlock()

	snap, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if len(session.invalidated) != 1 {
		t.Fatalf("Invalidate called %d times, want exactly once", len(session.invalidated))
	}
	if snap.SignedIn {
		t.Error("snapshot should report signed out after an auth failure")
	}
	// The whole pass is rejected: bob's freshly fetched b2 must not
	// appear; both columns keep the prior cycle's events.
	alice := column(snap, "alice")
	if len(alice.Events) != 1 || alice.Events[0].ID != "a1" {
		t.Errorf("alice events = %v, want the previous pass's kept", alice.Events)
	}
	bob := column(snap, "bob")
	if len(bob.Events) != 1 || bob.Events[0].ID != "b1" {
		t.Errorf("bob events = %v, want the previous pass's, not the rejected pass's", bob.Events)
	}
}

func TestWholeColumnTransportFailureKeepsStaleWithError(t *testing.T) {
	cfg := testConfig(
		config.Column{Name: "alice", Sources: []config.Source{{ID: "a1"}, {ID: "a2"}}},
		config.Column{Name: "bob", Sources: []config.Source{{ID: "b"}}},
	)
	google := newFakeClient()
	google.events["a1"] = []model.Event{ev("x", 9)}
	google.events["a2"] = []model.Event{ev("y", 11)}
	google.events["b"] = []model.Event{ev("b1", 10)}
	svc := newService(cfg, &fakeSession{signedIn: true}, google, newFakeClient())

	ctx := context.Background()
	if _, err := svc.SetView(ctx, anchor, view.ModeDay); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	google.mu.Lock()
	google.errs["a1"] = &source.TransportError{SourceID: "a1", Err: errors.New("timeout")}
	google.errs["a2"] = &source.TransportError{SourceID: "a2", Err: errors.New("timeout")}
	google.mu.Unlock()

	snap, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	alice := column(snap, "alice")
	if alice.Error == "" {
		t.Error("a column with no surviving sources should carry an error")
	}
	if len(alice.Events) != 2 {
		t.Errorf("alice events = %v, want the last known-good list", alice.Events)
	}
	bob := column(snap, "bob")
	if bob.Error != "" || len(bob.Events) != 1 {
		t.Errorf("sibling column = %+v, want fully populated", bob)
	}
}

func TestTransportFailureDegradesSourceToEmpty(t *testing.T) {
	cfg := testConfig(config.Column{Name: "alice", Sources: []config.Source{
		{ID: "flaky"}, {ID: "solid"},
	}})
	google := newFakeClient()
	google.errs["flaky"] = &source.TransportError{SourceID: "flaky", Err: errors.New("connection reset")}
	google.events["solid"] = []model.Event{ev("s1", 9)}
	svc := newService(cfg, &fakeSession{signedIn: true}, google, newFakeClient())

	snap, err := svc.SetView(context.Background(), anchor, view.ModeDay)
	if err != nil {
		t.Fatalf("SetView: %v", err)
	}

	got := column(snap, "alice")
	if got.Error != "" {
		t.Errorf("column error = %q, want transport failures absorbed silently", got.Error)
	}
	if len(got.Events) != 1 || got.Events[0].ID != "s1" {
		t.Errorf("events = %v, want just the healthy source's", got.Events)
	}
}

func TestFetchWindowIsPadded(t *testing.T) {
	cfg := testConfig(config.Column{Name: "alice", Sources: []config.Source{{ID: "a"}}})
	google := newFakeClient()
	svc := newService(cfg, &fakeSession{signedIn: true}, google, newFakeClient())

	snap, err := svc.SetView(context.Background(), anchor, view.ModeWeek)
	if err != nil {
		t.Fatalf("SetView: %v", err)
	}

	google.mu.Lock()
	defer google.mu.Unlock()
	if len(google.calls) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(google.calls))
	}
	call := google.calls[0]
	if !call.min.Equal(snap.Range.Start.Add(-fetchPadding)) {
		t.Errorf("min = %v, want range start minus one day", call.min)
	}
	if !call.max.Equal(snap.Range.End.Add(fetchPadding)) {
		t.Errorf("max = %v, want range end plus one day", call.max)
	}
}

func TestSignedOutSkipsCredentialSources(t *testing.T) {
	cfg := testConfig(config.Column{Name: "alice", Sources: []config.Source{
		{ID: "g"},
		{ID: "feed", Kind: config.KindICS, URL: "https://example.com/cal.ics"},
	}})
	google := newFakeClient()
	ics := newFakeClient()
	ics.events["feed"] = []model.Event{ev("f1", 9)}
	svc := newService(cfg, &fakeSession{}, google, ics)

	snap, err := svc.SetView(context.Background(), anchor, view.ModeDay)
	if err != nil {
		t.Fatalf("SetView: %v", err)
	}

	google.mu.Lock()
	googleCalls := len(google.calls)
	google.mu.Unlock()
	if googleCalls != 0 {
		t.Errorf("credential-backed source fetched %d times while signed out", googleCalls)
	}

	got := column(snap, "alice")
	if len(got.Events) != 1 || got.Events[0].ID != "f1" {
		t.Errorf("events = %v, want the subscription feed's events regardless of sign-in", got.Events)
	}
	if snap.SignedIn {
		t.Error("snapshot should report signed out")
	}
}

func TestStaleEventsSurviveSignedOutPass(t *testing.T) {
	cfg := testConfig(config.Column{Name: "alice", Sources: []config.Source{
		{ID: "g"},
		{ID: "feed", Kind: config.KindICS, URL: "https://example.com/cal.ics"},
	}})
	google := newFakeClient()
	g1 := ev("g1", 9)
	g1.SourceID = "g"
	google.events["g"] = []model.Event{g1}
	ics := newFakeClient()
	f1 := ev("f1", 8)
	f1.SourceID = "feed"
	ics.events["feed"] = []model.Event{f1}
	session := &fakeSession{signedIn: true}
	svc := newService(cfg, session, google, ics)

	ctx := context.Background()
	if _, err := svc.SetView(ctx, anchor, view.ModeDay); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	google.mu.Lock()
	google.errs["g"] = fmt.Errorf("source g: %w", source.ErrUnauthorized)
	google.mu.Unlock()
	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("rejection pass: %v", err)
	}

	// The feed keeps updating while the credential is dead.
	f2 := ev("f2", 13)
	f2.SourceID = "feed"
	ics.mu.Lock()
	ics.events["feed"] = []model.Event{f1, f2}
	ics.mu.Unlock()

	snap, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("signed-out pass: %v", err)
	}

	got := column(snap, "alice")
	var ids []string
	for _, e := range got.Events {
		ids = append(ids, e.ID)
	}
	// g's events ride along from the last signed-in pass; the feed is fresh.
	want := []string{"f1", "g1", "f2"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("events after signed-out pass = %v, want %v", ids, want)
	}
	google.mu.Lock()
	defer google.mu.Unlock()
	// One call from the first pass, one from the pass that hit the 401,
	// none from the signed-out pass.
	if len(google.calls) != 2 {
		t.Errorf("credential source fetched %d times, want 2", len(google.calls))
	}
}

func TestSourceFailureKeepsHealthySiblingFresh(t *testing.T) {
	cfg := testConfig(config.Column{Name: "alice", Sources: []config.Source{
		{ID: "broken"}, {ID: "healthy"},
	}})
	google := newFakeClient()
	google.events["broken"] = []model.Event{ev("old", 9)}
	google.events["healthy"] = []model.Event{ev("h1", 10)}
	svc := newService(cfg, &fakeSession{signedIn: true}, google, newFakeClient())

	ctx := context.Background()
	if _, err := svc.SetView(ctx, anchor, view.ModeDay); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	google.mu.Lock()
	google.errs["broken"] = fmt.Errorf("source broken: %w", source.ErrAccessDenied)
	google.events["healthy"] = []model.Event{ev("h1", 10), ev("h2", 14)}
	google.mu.Unlock()

	snap, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	got := column(snap, "alice")
	if got.Error == "" {
		t.Error("failed source should surface a column-level message")
	}
	var ids []string
	for _, e := range got.Events {
		ids = append(ids, e.ID)
	}
	// The failed source degrades to empty; its sibling's fresh events stand.
	want := []string{"h1", "h2"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v from the healthy sibling", ids, want)
	}
}

func TestStepMovesTheRange(t *testing.T) {
	cfg := testConfig()
	svc := newService(cfg, &fakeSession{}, newFakeClient(), newFakeClient())
	ctx := context.Background()

	if _, err := svc.SetView(ctx, anchor, view.ModeWeek); err != nil {
		t.Fatalf("SetView: %v", err)
	}
	before := svc.Snapshot().Range

	snap, err := svc.Step(ctx, 1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !snap.Range.Start.Equal(before.Start.AddDate(0, 0, 7)) {
		t.Errorf("range start = %v, want one week after %v", snap.Range.Start, before.Start)
	}

	back, err := svc.Step(ctx, -1)
	if err != nil {
		t.Fatalf("Step back: %v", err)
	}
	if !back.Range.Start.Equal(before.Start) {
		t.Errorf("stepping forward then back landed on %v, want %v", back.Range.Start, before.Start)
	}
}

func TestTodayUsesConfiguredLocation(t *testing.T) {
	cfg := testConfig()
	loc := time.FixedZone("UTC+14", 14*60*60)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func(context.Context, string) (source.Client, error) { return newFakeClient(), nil }
	svc := New(cfg, &fakeSession{}, factory, newFakeClient(), loc, logger)
	// 23:00 UTC on March 10 is already March 11 in the configured zone.
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC) }

	snap, err := svc.Today(context.Background())
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if snap.Anchor.Day() != 11 {
		t.Errorf("anchor day = %d, want 11 in the configured zone", snap.Anchor.Day())
	}
	if snap.Anchor.Location() != loc {
		t.Errorf("anchor location = %v, want the configured zone", snap.Anchor.Location())
	}
}

func TestRefreshPublishesLoadingThenFinal(t *testing.T) {
	cfg := testConfig(config.Column{Name: "alice", Sources: []config.Source{{ID: "a"}}})
	google := newFakeClient()
	google.events["a"] = []model.Event{ev("a1", 9)}
	svc := newService(cfg, &fakeSession{signedIn: true}, google, newFakeClient())

	var mu sync.Mutex
	var updates []Snapshot
	svc.SetOnUpdate(func(snap Snapshot) {
		mu.Lock()
		updates = append(updates, snap)
		mu.Unlock()
	})

	if _, err := svc.SetView(context.Background(), anchor, view.ModeDay); err != nil {
		t.Fatalf("SetView: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want loading then final", len(updates))
	}
	if !updates[0].Columns[0].Loading {
		t.Error("first update should mark columns loading")
	}
	if updates[1].Columns[0].Loading {
		t.Error("final update should not be marked loading")
	}
	if updates[1].Seq <= updates[0].Seq {
		t.Errorf("seq did not increase: %d then %d", updates[0].Seq, updates[1].Seq)
	}
}
