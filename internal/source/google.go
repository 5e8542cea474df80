package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calsplit/internal/classify"
	"calsplit/internal/config"
	"calsplit/internal/model"
)

const (
	transientRetries = 2
	transientBackoff = 500 * time.Millisecond
)

// GoogleClient reads events from the Google Calendar API with the current
// bearer credential. A new client is built per aggregation pass so the pass
// uses one consistent token.
type GoogleClient struct {
	svc    *calendar.Service
	loc    *time.Location
	logger *slog.Logger
}

// NewGoogleClient builds a client around a static bearer token. The implicit
// grant yields no refresh token, so there is nothing to renew here.
func NewGoogleClient(ctx context.Context, token string, loc *time.Location, logger *slog.Logger) (*GoogleClient, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &GoogleClient{svc: svc, loc: loc, logger: logger}, nil
}

// Events fetches and normalizes one source's events for [min, max].
// Transient failures are retried with capped exponential backoff before the
// error is returned; all other error classes return immediately.
func (c *GoogleClient) Events(ctx context.Context, src config.Source, min, max time.Time, fallbackColor string) ([]model.Event, error) {
	var items []*calendar.Event

	backoff := retry.WithMaxRetries(transientRetries, retry.NewExponential(transientBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.svc.Events.List(src.ID).
			TimeMin(min.Format(time.RFC3339)).
			TimeMax(max.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(maxResults).
			Context(ctx).
			Do()
		if err != nil {
			mapped := mapGoogleError(src.ID, err)
			if IsTransient(mapped) {
				return retry.RetryableError(mapped)
			}
			return mapped
		}
		items = resp.Items
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0, len(items))
	for _, item := range items {
		ev, err := classify.FromGoogle(item, src, fallbackColor, c.loc)
		if err != nil {
			c.logger.Warn("skipping malformed event", "source", src.ID, "error", err)
			continue
		}
		if ev == nil {
			continue // cancelled
		}
		events = append(events, *ev)
	}
	return events, nil
}

// mapGoogleError translates API failures onto the fetch error taxonomy.
func mapGoogleError(sourceID string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// Request never produced a response: network-level failure.
		return &TransportError{SourceID: sourceID, Err: err}
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return fmt.Errorf("source %s: %w", sourceID, ErrUnauthorized)
	case apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("source %s: %w", sourceID, ErrAccessDenied)
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("source %s: %w", sourceID, ErrNotFound)
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("source %s: %w", sourceID, ErrRateLimited)
	case apiErr.Code >= 500:
		return &TransportError{SourceID: sourceID, Status: apiErr.Code, Err: err}
	default:
		return &FetchError{SourceID: sourceID, Status: apiErr.Code, Err: err}
	}
}
