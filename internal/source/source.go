package source

import (
	"context"
	"time"

	"calsplit/internal/config"
	"calsplit/internal/model"
)

// maxResults caps one window's read from a single source.
const maxResults = 250

// Client reads one source's events for a time window and returns them
// already normalized. Implementations map their transport's failure modes
// onto this package's error taxonomy.
type Client interface {
	Events(ctx context.Context, src config.Source, min, max time.Time, fallbackColor string) ([]model.Event, error)
}
