// Package googlemaps talks to the Google Maps Platform web services.
package googlemaps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/ports"
	"github.com/samirrijal/tripcore/internal/pkg/geospatial"
	"github.com/samirrijal/tripcore/internal/pkg/telemetry"
)

const (
	DefaultBaseURL = "https://maps.googleapis.com"

	textSearchPath = "/maps/api/place/textsearch/json"
	photoPath      = "/maps/api/place/photo"
	geocodePath    = "/maps/api/geocode/json"

	searchBiasRadiusMeters  = 50000
	geocodeBiasRadiusMeters = 50000
	maxPhotoRefs            = 5
)

// Client implements ports.MapsBackend.
type Client struct {
	apiKey  string
	baseURL string
	doer    ports.HTTPDoer
	limiter *rate.Limiter
}

// NewClient creates a new Google Maps client. A nil limiter means unlimited.
// Redirects are not followed so photo URLs can be read from the Location header.
func NewClient(apiKey, baseURL string, limiter *rate.Limiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		doer: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: limiter,
	}
}

// WithHTTPDoer replaces the transport.
func (c *Client) WithHTTPDoer(d ports.HTTPDoer) *Client {
	c.doer = d
	return c
}

// CheckCredentials reports a missing API key.
func (c *Client) CheckCredentials() error {
	if c.apiKey == "" {
		return fmt.Errorf("google maps api key is not configured: %w", domain.ErrUpstreamAuthorization)
	}
	return nil
}

// --- API Structures ---

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type geometry struct {
	Location location `json:"location"`
}

type photo struct {
	PhotoReference string `json:"photo_reference"`
}

type placeResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Geometry         geometry `json:"geometry"`
	Types            []string `json:"types"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
	Photos           []photo  `json:"photos"`
}

type textSearchResponse struct {
	Results      []placeResult `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
}

type geocodeResult struct {
	PlaceID          string   `json:"place_id"`
	FormattedAddress string   `json:"formatted_address"`
	Geometry         geometry `json:"geometry"`
}

type geocodeResponse struct {
	Results      []geocodeResult `json:"results"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
}

// --- API Methods ---

// TextSearch finds places matching a free-text query.
func (c *Client) TextSearch(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
	params := url.Values{}
	params.Set("query", strings.TrimSpace(q.Query))
	if q.Near != nil {
		params.Set("location", fmt.Sprintf("%f,%f", q.Near.Lat, q.Near.Lng))
		params.Set("radius", strconv.Itoa(searchBiasRadiusMeters))
	}

	var result textSearchResponse
	if err := c.getJSON(ctx, "places.textsearch", textSearchPath, params, &result); err != nil {
		return nil, err
	}
	if err := checkStatus("place text search", result.Status, result.ErrorMessage); err != nil {
		return nil, err
	}

	places := make([]domain.Place, 0, len(result.Results))
	for _, r := range result.Results {
		p := domain.Place{
			PlaceID:          r.PlaceID,
			Name:             r.Name,
			FormattedAddress: r.FormattedAddress,
			Location:         domain.GeoPoint{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			Types:            r.Types,
			Rating:           r.Rating,
			UserRatingsTotal: r.UserRatingsTotal,
			PriceLevel:       r.PriceLevel,
		}
		for i, ph := range r.Photos {
			if i == maxPhotoRefs {
				break
			}
			p.PhotoReferences = append(p.PhotoReferences, ph.PhotoReference)
		}
		places = append(places, p)
	}
	return places, nil
}

// ResolvePhoto follows the photo endpoint's redirect to the image URL.
func (c *Client) ResolvePhoto(ctx context.Context, q domain.PhotoQuery) (domain.PlacePhoto, error) {
	params := url.Values{}
	params.Set("photo_reference", q.PhotoReference)
	params.Set("maxwidth", strconv.Itoa(q.MaxWidth))

	resp, err := c.get(ctx, "places.photo", photoPath, params)
	if err != nil {
		return domain.PlacePhoto{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if err := checkHTTPStatus("place photo", resp.StatusCode); err != nil {
		return domain.PlacePhoto{}, err
	}

	var resolved string
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		resolved = resp.Header.Get("Location")
	case resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.Path != photoPath:
		// transport followed the redirect itself
		resolved = resp.Request.URL.String()
	}
	if resolved == "" {
		return domain.PlacePhoto{}, errors.New("place photo: no redirect location in response")
	}

	return domain.PlacePhoto{Reference: q.PhotoReference, URL: resolved, MaxWidth: q.MaxWidth}, nil
}

// Geocode converts a location name into its best matching coordinates.
// ZERO_RESULTS yields a nil result without error.
func (c *Client) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.GeocodeResult, error) {
	params := url.Values{}
	params.Set("address", strings.TrimSpace(q.Location))
	if q.Near != nil {
		box := geospatial.RadiusBox(*q.Near, geocodeBiasRadiusMeters)
		params.Set("bounds", fmt.Sprintf("%f,%f|%f,%f",
			box.Southwest.Lat, box.Southwest.Lng, box.Northeast.Lat, box.Northeast.Lng))
	}

	var result geocodeResponse
	if err := c.getJSON(ctx, "geocode", geocodePath, params, &result); err != nil {
		return nil, err
	}
	if err := checkStatus("geocoding", result.Status, result.ErrorMessage); err != nil {
		return nil, err
	}
	if len(result.Results) == 0 {
		return nil, nil
	}

	best := result.Results[0]
	return &domain.GeocodeResult{
		Query:            strings.TrimSpace(q.Location),
		FormattedAddress: best.FormattedAddress,
		PlaceID:          best.PlaceID,
		Location:         domain.GeoPoint{Lat: best.Geometry.Location.Lat, Lng: best.Geometry.Location.Lng},
	}, nil
}

func (c *Client) get(ctx context.Context, span, path string, params url.Values) (*http.Response, error) {
	if err := c.CheckCredentials(); err != nil {
		return nil, err
	}

	ctx, s := telemetry.Tracer().Start(ctx, "googlemaps."+span)
	defer s.End()
	s.SetAttributes(attribute.String("http.path", path))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	params.Set("key", c.apiKey)
	req.URL.RawQuery = params.Encode()

	resp, err := c.doer.Do(req)
	if err != nil {
		s.RecordError(err)
		s.SetStatus(codes.Error, "transport")
		return nil, err
	}
	s.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, span, path string, params url.Values, out any) error {
	resp, err := c.get(ctx, span, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(span, resp.StatusCode); err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", span, resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out)
}

// checkHTTPStatus maps 401/403 to an authorization failure and other 4xx/5xx to a plain error.
func checkHTTPStatus(op string, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", op, status, domain.ErrUpstreamAuthorization)
	case status >= 400:
		return fmt.Errorf("%s: status %d", op, status)
	}
	return nil
}

// checkStatus interprets the status field carried in every JSON body.
func checkStatus(op, status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "REQUEST_DENIED":
		return fmt.Errorf("%s API error: %s %s: %w", op, status, message, domain.ErrUpstreamAuthorization)
	default:
		return fmt.Errorf("%s API error: %s %s", op, status, message)
	}
}
