// Package ticketmaster searches events through the Ticketmaster Discovery API.
package ticketmaster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/ports"
	"github.com/samirrijal/tripcore/internal/pkg/geospatial"
	"github.com/samirrijal/tripcore/internal/pkg/telemetry"
)

const (
	DefaultBaseURL = "https://app.ticketmaster.com"

	eventsPath = "/discovery/v2/events.json"
	pageSize   = 50
	// Discovery expects second precision with a literal Z.
	dateLayout = "2006-01-02T15:04:05Z"
)

// Client implements ports.EventsBackend.
type Client struct {
	apiKey  string
	baseURL string
	doer    ports.HTTPDoer
}

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    &http.Client{Timeout: 20 * time.Second},
	}
}

// WithHTTPDoer replaces the transport.
func (c *Client) WithHTTPDoer(d ports.HTTPDoer) *Client {
	c.doer = d
	return c
}

func (c *Client) CheckCredentials() error {
	if c.apiKey == "" {
		return fmt.Errorf("ticketmaster api key is not configured: %w", domain.ErrUpstreamAuthorization)
	}
	return nil
}

type image struct {
	URL   string `json:"url"`
	Width int    `json:"width"`
}

type venue struct {
	Name     string         `json:"name"`
	Location map[string]any `json:"location"`
}

type event struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			DateTime  string `json:"dateTime"`
			LocalDate string `json:"localDate"`
		} `json:"start"`
	} `json:"dates"`
	Images          []image `json:"images"`
	Classifications []struct {
		Segment struct {
			Name string `json:"name"`
		} `json:"segment"`
	} `json:"classifications"`
	Embedded struct {
		Venues []venue `json:"venues"`
	} `json:"_embedded"`
}

type searchResponse struct {
	Embedded struct {
		Events []event `json:"events"`
	} `json:"_embedded"`
}

type faultResponse struct {
	Fault struct {
		FaultString string `json:"faultstring"`
		Detail      struct {
			ErrorCode string `json:"errorcode"`
		} `json:"detail"`
	} `json:"fault"`
}

// SearchEvents lists events within q.RadiusKm of q.Location between q.Start and q.End.
func (c *Client) SearchEvents(ctx context.Context, q domain.EventQuery) ([]domain.Event, error) {
	if err := c.CheckCredentials(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "ticketmaster.SearchEvents")
	defer span.End()

	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("latlong", fmt.Sprintf("%f,%f", q.Location.Lat, q.Location.Lng))
	params.Set("radius", strconv.Itoa(q.RadiusKm))
	params.Set("unit", "km")
	params.Set("startDateTime", q.Start.UTC().Format(dateLayout))
	params.Set("endDateTime", q.End.UTC().Format(dateLayout))
	params.Set("size", strconv.Itoa(pageSize))
	params.Set("sort", "date,asc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+eventsPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	events := make([]domain.Event, 0, len(result.Embedded.Events))
	for _, e := range result.Embedded.Events {
		events = append(events, toDomain(e))
	}
	return events, nil
}

// statusError treats 401/403 and an InvalidApiKey fault as authorization
// failures. Rate-limit faults are transient.
func statusError(status int, body []byte) error {
	var fault faultResponse
	_ = json.Unmarshal(body, &fault)
	code := fault.Fault.Detail.ErrorCode
	msg := fault.Fault.FaultString
	if msg == "" {
		msg = http.StatusText(status)
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden || strings.HasSuffix(code, "InvalidApiKey") {
		return fmt.Errorf("ticketmaster: status %d: %s: %w", status, msg, domain.ErrUpstreamAuthorization)
	}
	return fmt.Errorf("ticketmaster: status %d: %s", status, msg)
}

func toDomain(e event) domain.Event {
	out := domain.Event{ID: e.ID, Name: e.Name, URL: e.URL}

	if t, err := time.Parse(time.RFC3339, e.Dates.Start.DateTime); err == nil {
		out.StartsAt = t
	} else if t, err := time.Parse("2006-01-02", e.Dates.Start.LocalDate); err == nil {
		out.StartsAt = t
	}

	if len(e.Classifications) > 0 {
		out.Segment = e.Classifications[0].Segment.Name
	}

	widest := 0
	for _, img := range e.Images {
		if img.Width > widest {
			widest = img.Width
			out.ImageURL = img.URL
		}
	}

	if len(e.Embedded.Venues) > 0 {
		v := e.Embedded.Venues[0]
		out.Venue = v.Name
		if p, ok := geospatial.ExtractCoordinates(v.Location); ok {
			out.Location = &p
		}
	}
	return out
}
