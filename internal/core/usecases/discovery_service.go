package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/ports"
)

// DiscoveryTTLs sets how long each backend's results stay fresh.
type DiscoveryTTLs struct {
	Places  time.Duration
	Photos  time.Duration
	Geocode time.Duration
	Events  time.Duration
}

// DefaultDiscoveryTTLs are 24h for Google results and 30min for events.
var DefaultDiscoveryTTLs = DiscoveryTTLs{
	Places:  24 * time.Hour,
	Photos:  24 * time.Hour,
	Geocode: 24 * time.Hour,
	Events:  30 * time.Minute,
}

// DiscoveryService serves place, photo, geocode and event lookups through the response cache.
type DiscoveryService struct {
	places  *CachedFetcher[domain.PlaceQuery, []domain.Place]
	photos  *CachedFetcher[domain.PhotoQuery, domain.PlacePhoto]
	geocode *CachedFetcher[domain.GeocodeQuery, *domain.GeocodeResult]
	events  *CachedFetcher[domain.EventQuery, []domain.Event]
}

// NewDiscoveryService creates a new DiscoveryService.
func NewDiscoveryService(maps ports.MapsBackend, events ports.EventsBackend, cache ports.ResponseCache, usage ports.UsageTracker, ttls DiscoveryTTLs) *DiscoveryService {
	return &DiscoveryService{
		places: NewCachedFetcher(FetcherConfig[domain.PlaceQuery, []domain.Place]{
			Name:     "places",
			Category: domain.CategoryPlaceDetails,
			TTL:      ttls.Places,
			Key:      placeKey,
			Valid:    func(q domain.PlaceQuery) bool { return strings.TrimSpace(q.Query) != "" },
			Precheck: maps.CheckCredentials,
			Fetch:    maps.TextSearch,
			Empty:    []domain.Place{},
		}, cache, usage),
		photos: NewCachedFetcher(FetcherConfig[domain.PhotoQuery, domain.PlacePhoto]{
			Name:     "photos",
			Category: domain.CategoryPlacePhotos,
			TTL:      ttls.Photos,
			Key:      func(q domain.PhotoQuery) string { return fmt.Sprintf("%s|%d", q.PhotoReference, q.MaxWidth) },
			Valid:    func(q domain.PhotoQuery) bool { return strings.TrimSpace(q.PhotoReference) != "" },
			Precheck: maps.CheckCredentials,
			Fetch:    maps.ResolvePhoto,
		}, cache, usage),
		geocode: NewCachedFetcher(FetcherConfig[domain.GeocodeQuery, *domain.GeocodeResult]{
			Name:     "geocode",
			Category: domain.CategoryGeocoding,
			TTL:      ttls.Geocode,
			Key:      geocodeKey,
			Valid:    func(q domain.GeocodeQuery) bool { return strings.TrimSpace(q.Location) != "" },
			Precheck: maps.CheckCredentials,
			Fetch:    maps.Geocode,
		}, cache, usage),
		events: NewCachedFetcher(FetcherConfig[domain.EventQuery, []domain.Event]{
			Name:     "events",
			TTL:      ttls.Events,
			Key:      eventKey,
			Valid:    validEventQuery,
			Precheck: events.CheckCredentials,
			Fetch:    events.SearchEvents,
			Empty:    []domain.Event{},
		}, cache, usage),
	}
}

// WithClock sets the freshness clock on every backend.
func (s *DiscoveryService) WithClock(now func() time.Time) *DiscoveryService {
	s.places.WithClock(now)
	s.photos.WithClock(now)
	s.geocode.WithClock(now)
	s.events.WithClock(now)
	return s
}

// SearchPlaces returns places matching a free-text query.
func (s *DiscoveryService) SearchPlaces(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
	return s.places.FetchCached(ctx, q)
}

// ResolvePhoto returns a loadable URL for a photo reference.
func (s *DiscoveryService) ResolvePhoto(ctx context.Context, q domain.PhotoQuery) (domain.PlacePhoto, error) {
	if q.MaxWidth <= 0 || q.MaxWidth > 1600 {
		q.MaxWidth = 800
	}
	return s.photos.FetchCached(ctx, q)
}

// Geocode returns the best match for a location name, or nil.
func (s *DiscoveryService) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.GeocodeResult, error) {
	return s.geocode.FetchCached(ctx, q)
}

// SearchEvents returns events near a point within a date range.
func (s *DiscoveryService) SearchEvents(ctx context.Context, q domain.EventQuery) ([]domain.Event, error) {
	if q.RadiusKm <= 0 {
		q.RadiusKm = 25
	}
	return s.events.FetchCached(ctx, q)
}

func normalizeQuery(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func placeKey(q domain.PlaceQuery) string {
	key := normalizeQuery(q.Query)
	if q.Near != nil {
		key += fmt.Sprintf("|%.4f,%.4f", q.Near.Lat, q.Near.Lng)
	}
	return key
}

func geocodeKey(q domain.GeocodeQuery) string {
	return placeKey(domain.PlaceQuery{Query: q.Location, Near: q.Near})
}

func eventKey(q domain.EventQuery) string {
	return fmt.Sprintf("%.4f,%.4f|%d|%d|%d",
		q.Location.Lat, q.Location.Lng, q.Start.Unix(), q.End.Unix(), q.RadiusKm)
}

func validEventQuery(q domain.EventQuery) bool {
	if q.Location.Lat == 0 && q.Location.Lng == 0 {
		return false
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return false
	}
	return !q.End.Before(q.Start)
}
