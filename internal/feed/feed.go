package feed

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/neo"
)

// Client defines the interface for feed service communication (HTTP, mock, etc.)
type Client interface {
	// Feed fetches the current set of near-earth objects
	Feed(ctx context.Context, query FeedQuery) ([]neo.Object, error)

	// Object fetches a single object by its feed id
	Object(ctx context.Context, id string) (*neo.Object, error)

	// HealthCheck checks if the feed service is reachable
	HealthCheck(ctx context.Context) error
}

// Config defines settings for the feed HTTP client
type Config struct {
	BaseURL      string         // Resolved base address of the feed service
	APIKey       string         // Optional: Authorization header as Bearer <APIKey>
	FetchTimeout time.Duration  // Budget for one fetch; DefaultFetchTimeout when zero
	HTTPClient   *http.Client   // Optional transport override
	Logger       zerolog.Logger // Outcome logging; zerolog.Nop() silences
}

// FeedQuery narrows the object listing
type FeedQuery struct {
	HazardousOnly bool
	Start         time.Time
	End           time.Time
}

// Values encodes the query as URL parameters
func (q FeedQuery) Values() url.Values {
	values := url.Values{}

	if q.HazardousOnly {
		values.Set("hazardous", "true")
	}
	if !q.Start.IsZero() {
		values.Set("start", q.Start.Format("2006-01-02"))
	}
	if !q.End.IsZero() {
		values.Set("end", q.End.Format("2006-01-02"))
	}

	return values
}
