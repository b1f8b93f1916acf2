package ports

import (
	"context"
	"net/http"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

// HTTPDoer sends outbound requests. Cancellation travels on the request context.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UsageAlerter publishes usage events to a message broker.
type UsageAlerter interface {
	PublishUsageEvent(ctx context.Context, event domain.UsageEvent) error
}

// UsageEventSubscriber delivers published usage events.
type UsageEventSubscriber interface {
	SubscribeUsageEvents(ctx context.Context, handler func(ctx context.Context, event domain.UsageEvent) error) error
}

// UsageTracker counts quota-bearing upstream calls.
type UsageTracker interface {
	TrackRequest(ctx context.Context, category string) domain.UsageSnapshot
}

// TextGenerator produces raw model output for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// PlaceSearcher resolves a free-text place name.
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, params domain.PlaceQuery) ([]domain.Place, error)
}

// MapsBackend is the raw Google Maps Platform transport.
type MapsBackend interface {
	// CheckCredentials reports a missing key without a network call.
	CheckCredentials() error
	TextSearch(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error)
	ResolvePhoto(ctx context.Context, q domain.PhotoQuery) (domain.PlacePhoto, error)
	Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.GeocodeResult, error)
}

// EventsBackend is the raw event-discovery transport.
type EventsBackend interface {
	CheckCredentials() error
	SearchEvents(ctx context.Context, q domain.EventQuery) ([]domain.Event, error)
}
