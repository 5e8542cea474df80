package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/sethvargo/go-retry"

	"calsplit/internal/classify"
	"calsplit/internal/config"
	"calsplit/internal/model"
)

// ICSClient reads an iCalendar subscription feed over HTTP. ICS feeds carry
// their own credentials (if any) in the URL, so a 401/403 there is a
// per-source access problem, never a session invalidation.
type ICSClient struct {
	client *http.Client
	loc    *time.Location
	logger *slog.Logger
}

func NewICSClient(loc *time.Location, logger *slog.Logger) *ICSClient {
	return &ICSClient{
		client: &http.Client{Timeout: 15 * time.Second},
		loc:    loc,
		logger: logger,
	}
}

// Events fetches the feed, parses it, and returns the normalized events
// overlapping [min, max]. Unlike the calendar API, an ICS feed returns the
// whole calendar; the window filter happens here.
func (c *ICSClient) Events(ctx context.Context, src config.Source, min, max time.Time, fallbackColor string) ([]model.Event, error) {
	var cal *ical.Calendar

	backoff := retry.WithMaxRetries(transientRetries, retry.NewExponential(transientBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return fmt.Errorf("source %s: build request: %w", src.ID, err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(&TransportError{SourceID: src.ID, Err: err})
		}
		defer resp.Body.Close()

		if err := mapICSStatus(src.ID, resp.StatusCode); err != nil {
			if IsTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}

		cal, err = ical.ParseCalendar(resp.Body)
		if err != nil {
			return &FetchError{SourceID: src.ID, Status: resp.StatusCode, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for _, ve := range cal.Events() {
		ev, err := classify.FromICS(ve, src, fallbackColor, c.loc)
		if err != nil {
			c.logger.Warn("skipping malformed ics event", "source", src.ID, "error", err)
			continue
		}
		if ev == nil {
			continue // cancelled
		}
		if !ev.Overlaps(min, max) {
			continue
		}
		events = append(events, *ev)
	}
	return events, nil
}

func mapICSStatus(sourceID string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("source %s: %w", sourceID, ErrAccessDenied)
	case status == http.StatusNotFound:
		return fmt.Errorf("source %s: %w", sourceID, ErrNotFound)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("source %s: %w", sourceID, ErrRateLimited)
	case status >= 500:
		return &TransportError{SourceID: sourceID, Status: status}
	default:
		return &FetchError{SourceID: sourceID, Status: status}
	}
}
