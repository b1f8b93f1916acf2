package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/tripcore/internal/adapters/http"
	"github.com/samirrijal/tripcore/internal/adapters/memory"
	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/usecases"
	"github.com/samirrijal/tripcore/internal/pkg/ttlcache"
)

// ---- Mock backends ----

type mockGenerator struct {
	generateFn func(ctx context.Context, prompt string) (string, error)
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt)
	}
	return `{"days":[]}`, nil
}

type mockMaps struct {
	mu         sync.Mutex
	calls      int
	missingKey bool
	textFn     func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error)
	photoFn    func(ctx context.Context, q domain.PhotoQuery) (domain.PlacePhoto, error)
	geocodeFn  func(ctx context.Context, q domain.GeocodeQuery) (*domain.GeocodeResult, error)
}

func (m *mockMaps) CheckCredentials() error {
	if m.missingKey {
		return fmt.Errorf("google maps api key is not configured: %w", domain.ErrUpstreamAuthorization)
	}
	return nil
}

func (m *mockMaps) count() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *mockMaps) TextSearch(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
	m.count()
	if m.textFn != nil {
		return m.textFn(ctx, q)
	}
	return []domain.Place{}, nil
}

func (m *mockMaps) ResolvePhoto(ctx context.Context, q domain.PhotoQuery) (domain.PlacePhoto, error) {
	m.count()
	if m.photoFn != nil {
		return m.photoFn(ctx, q)
	}
	return domain.PlacePhoto{}, nil
}

func (m *mockMaps) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.GeocodeResult, error) {
	m.count()
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, q)
	}
	return nil, nil
}

type mockEvents struct {
	searchFn func(ctx context.Context, q domain.EventQuery) ([]domain.Event, error)
}

func (m *mockEvents) CheckCredentials() error { return nil }
func (m *mockEvents) SearchEvents(ctx context.Context, q domain.EventQuery) ([]domain.Event, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return []domain.Event{}, nil
}

// ---- Test helpers ----

var (
	bilbao   = domain.GeoPoint{Lat: 43.263, Lng: -2.935}
	donostia = domain.GeoPoint{Lat: 43.3183, Lng: -1.9812}
)

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

type backends struct {
	generator *mockGenerator
	maps      *mockMaps
	events    *mockEvents
}

// makeDeps wires real services over mock backends, a memory store and a ttl cache.
func makeDeps(b backends, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	if b.generator == nil {
		b.generator = &mockGenerator{}
	}
	if b.maps == nil {
		b.maps = &mockMaps{}
	}
	if b.events == nil {
		b.events = &mockEvents{}
	}

	usage := usecases.NewUsageMonitor(context.Background(), memory.NewKVStore(), domain.DailyLimits{
		domain.CategoryPlaceDetails: 100,
		domain.CategoryPlacePhotos:  100,
		domain.CategoryGeocoding:    100,
	})
	discovery := usecases.NewDiscoveryService(b.maps, b.events, ttlcache.New(), usage, usecases.DefaultDiscoveryTTLs)

	d := &handler.Dependencies{
		Plans:     usecases.NewPlanService(b.generator, discovery),
		Discovery: discovery,
		Usage:     usage,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (int, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, readBody(t, resp.Body)
}

func get(t *testing.T, app *fiber.App, path string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, readBody(t, resp.Body)
}

func decodeError(t *testing.T, body []byte) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return apiErr
}

// ---- Plan handler tests ----

func TestGeneratePlan_Success(t *testing.T) {
	gen := &mockGenerator{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return "Here you go:\n```json\n{\"days\":[{\"day\":1,\"activities\":[{\"place\":\"Guggenheim\"}]}]}\n```", nil
	}}
	app := setupApp(makeDeps(backends{generator: gen}))

	req := httptest.NewRequest("POST", "/v1/plans", strings.NewReader(`{"prompt":"two days in Bilbao"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", cc)
	}

	var plan domain.TripPlan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		t.Fatal(err)
	}
	if plan.ID == "" {
		t.Error("expected plan id")
	}
	doc, ok := plan.Document.(map[string]any)
	if !ok {
		t.Fatalf("expected object document, got %T", plan.Document)
	}
	if _, ok := doc["days"]; !ok {
		t.Errorf("expected days in document, got %v", doc)
	}
	if len(plan.Places) != 0 {
		t.Errorf("expected no located places without locate, got %d", len(plan.Places))
	}
}

func TestGeneratePlan_Locate(t *testing.T) {
	gen := &mockGenerator{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return `{"stops":[{"place":"Guggenheim"},{"place":"La Concha","lat":43.3183,"lng":-1.9812}]}`, nil
	}}
	maps := &mockMaps{textFn: func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
		return []domain.Place{{PlaceID: "p1", Name: q.Query, Location: bilbao}}, nil
	}}
	app := setupApp(makeDeps(backends{generator: gen, maps: maps}))

	status, body := postJSON(t, app, "/v1/plans", map[string]any{"prompt": "coast trip", "locate": true})
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	var plan domain.TripPlan
	if err := json.Unmarshal(body, &plan); err != nil {
		t.Fatal(err)
	}
	if len(plan.Places) != 2 {
		t.Fatalf("expected 2 located places, got %d", len(plan.Places))
	}
	if plan.Geometry == nil || plan.Geometry.Points != 2 {
		t.Fatalf("expected geometry over 2 points, got %+v", plan.Geometry)
	}
	if maps.calls != 1 {
		t.Errorf("expected 1 lookup for the place without coordinates, got %d", maps.calls)
	}
}

func TestGeneratePlan_EmptyPrompt(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, body := postJSON(t, app, "/v1/plans", map[string]any{"prompt": "   "})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
	if apiErr := decodeError(t, body); apiErr.Code != "bad_request" {
		t.Errorf("expected code bad_request, got %q", apiErr.Code)
	}
}

func TestGeneratePlan_InvalidBody(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	req := httptest.NewRequest("POST", "/v1/plans", strings.NewReader(`{"prompt":`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGeneratePlan_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		output     string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "timeout",
			err:        &domain.GenerationError{Kind: domain.KindTimeout, Timeout: 45 * time.Second},
			wantStatus: 504,
			wantCode:   "generation_timeout",
		},
		{
			name:       "unreachable",
			err:        &domain.GenerationError{Kind: domain.KindUnreachable, Endpoint: "http://localhost:1/api/generate"},
			wantStatus: 503,
			wantCode:   "generation_unreachable",
		},
		{
			name:       "authorization",
			err:        &domain.GenerationError{Kind: domain.KindAuthorization, Status: 401, Message: "bad key"},
			wantStatus: 502,
			wantCode:   "upstream_authorization",
		},
		{
			name:       "upstream",
			err:        &domain.GenerationError{Kind: domain.KindUpstream, Status: 500, Message: "model overloaded"},
			wantStatus: 502,
			wantCode:   "generation_failed",
		},
		{
			name:       "unparseable output",
			output:     "Sorry, I cannot plan that trip.",
			wantStatus: 422,
			wantCode:   "unparseable_plan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{generateFn: func(ctx context.Context, prompt string) (string, error) {
				return tt.output, tt.err
			}}
			app := setupApp(makeDeps(backends{generator: gen}))

			status, body := postJSON(t, app, "/v1/plans", map[string]any{"prompt": "weekend in Bilbao"})
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, status, body)
			}
			apiErr := decodeError(t, body)
			if apiErr.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, apiErr.Code)
			}
			if apiErr.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestGeneratePlan_TimeoutMessageNamesDuration(t *testing.T) {
	gen := &mockGenerator{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return "", &domain.GenerationError{Kind: domain.KindTimeout, Timeout: 45 * time.Second}
	}}
	app := setupApp(makeDeps(backends{generator: gen}))

	_, body := postJSON(t, app, "/v1/plans", map[string]any{"prompt": "weekend"})
	if apiErr := decodeError(t, body); !strings.Contains(apiErr.Message, "45s") {
		t.Errorf("expected message to name the timeout, got %q", apiErr.Message)
	}
}

func TestParsePlan_Fenced(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, body := postJSON(t, app, "/v1/plans/parse", map[string]any{
		"raw": "```json\n{\"city\":\"Bilbao\"}\n```",
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		Document map[string]any `json:"document"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.Document["city"] != "Bilbao" {
		t.Errorf("expected city Bilbao, got %v", result.Document)
	}
}

func TestParsePlan_StructuredPassthrough(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, body := postJSON(t, app, "/v1/plans/parse", map[string]any{
		"raw": map[string]any{"days": []any{}},
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if !strings.Contains(string(body), `"days":[]`) {
		t.Errorf("expected document passed through, got %s", body)
	}
}

func TestParsePlan_Errors(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, _ := postJSON(t, app, "/v1/plans/parse", map[string]any{})
	if status != 400 {
		t.Errorf("missing raw: expected 400, got %d", status)
	}

	status, body := postJSON(t, app, "/v1/plans/parse", map[string]any{"raw": "no structure here"})
	if status != 422 {
		t.Fatalf("prose: expected 422, got %d", status)
	}
	if apiErr := decodeError(t, body); apiErr.Code != "unparseable_plan" {
		t.Errorf("expected unparseable_plan, got %q", apiErr.Code)
	}
}

func TestGeometry_Success(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, body := postJSON(t, app, "/v1/plans/geometry", map[string]any{
		"points": []any{
			map[string]any{"lat": bilbao.Lat, "lng": bilbao.Lng},
			"not a point",
			map[string]any{},
			map[string]any{"geometry": map[string]any{"location": map[string]any{"lat": donostia.Lat, "lng": donostia.Lng}}},
		},
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var geometry domain.PlanGeometry
	if err := json.Unmarshal(body, &geometry); err != nil {
		t.Fatal(err)
	}
	if geometry.Points != 2 {
		t.Fatalf("expected 2 valid points, got %d", geometry.Points)
	}
	if geometry.Center == nil || geometry.Bounds == nil {
		t.Fatal("expected center and bounds")
	}
	if geometry.TotalKm < 75 || geometry.TotalKm > 85 {
		t.Errorf("expected ~77km Bilbao to Donostia, got %.1f", geometry.TotalKm)
	}
	if !geometry.Bounds.Contains(*geometry.Center) {
		t.Error("expected center inside bounds")
	}
}

func TestGeometry_NoValidPoints(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, body := postJSON(t, app, "/v1/plans/geometry", map[string]any{"points": []any{"x", nil}})
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var geometry domain.PlanGeometry
	if err := json.Unmarshal(body, &geometry); err != nil {
		t.Fatal(err)
	}
	if geometry.Points != 0 || geometry.Center != nil || geometry.Bounds != nil {
		t.Errorf("expected empty geometry, got %+v", geometry)
	}
}

func TestLocate_Success(t *testing.T) {
	maps := &mockMaps{textFn: func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
		if q.Query == "Nowhere" {
			return []domain.Place{}, nil
		}
		return []domain.Place{{PlaceID: "p-" + q.Query, Name: q.Query, Location: bilbao}}, nil
	}}
	app := setupApp(makeDeps(backends{maps: maps}))

	status, body := postJSON(t, app, "/v1/plans/locate", map[string]any{
		"places": []string{"Guggenheim", "guggenheim", "Nowhere"},
		"near":   map[string]any{"lat": bilbao.Lat, "lng": bilbao.Lng},
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		Places   []domain.LocatedPlace `json:"places"`
		Geometry *domain.PlanGeometry  `json:"geometry"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Places) != 2 {
		t.Fatalf("expected 2 deduplicated places, got %d", len(result.Places))
	}
	if result.Places[0].Location == nil {
		t.Error("expected Guggenheim located")
	}
	if result.Places[1].Location != nil {
		t.Error("expected Nowhere without location")
	}
	if result.Geometry == nil || result.Geometry.Points != 1 {
		t.Errorf("expected geometry over 1 point, got %+v", result.Geometry)
	}
}

func TestLocate_Validation(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, _ := postJSON(t, app, "/v1/plans/locate", map[string]any{"places": []string{}})
	if status != 400 {
		t.Errorf("empty: expected 400, got %d", status)
	}

	many := make([]string, 26)
	for i := range many {
		many[i] = fmt.Sprintf("place %d", i)
	}
	status, _ = postJSON(t, app, "/v1/plans/locate", map[string]any{"places": many})
	if status != 400 {
		t.Errorf("too many: expected 400, got %d", status)
	}
}

func TestLocate_AuthorizationAborts(t *testing.T) {
	app := setupApp(makeDeps(backends{maps: &mockMaps{missingKey: true}}))

	status, body := postJSON(t, app, "/v1/plans/locate", map[string]any{"places": []string{"Guggenheim"}})
	if status != 502 {
		t.Fatalf("expected 502, got %d: %s", status, body)
	}
	if apiErr := decodeError(t, body); apiErr.Code != "upstream_authorization" {
		t.Errorf("expected upstream_authorization, got %q", apiErr.Code)
	}
}

// ---- Discovery handler tests ----

func TestSearchPlaces_Success(t *testing.T) {
	var gotNear *domain.GeoPoint
	maps := &mockMaps{textFn: func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
		gotNear = q.Near
		return []domain.Place{{PlaceID: "p1", Name: "Guggenheim Museum", Location: bilbao}}, nil
	}}
	app := setupApp(makeDeps(backends{maps: maps}))

	req := httptest.NewRequest("GET", "/v1/places/search?q=guggenheim&lat=43.263&lng=-2.935", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Errorf("expected Cache-Control public, max-age=3600, got %q", cc)
	}

	var places []domain.Place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		t.Fatal(err)
	}
	if len(places) != 1 || places[0].PlaceID != "p1" {
		t.Errorf("unexpected places: %+v", places)
	}
	if gotNear == nil || gotNear.Lat != 43.263 {
		t.Errorf("expected location bias forwarded, got %+v", gotNear)
	}
}

func TestSearchPlaces_CachedWithinTTL(t *testing.T) {
	maps := &mockMaps{textFn: func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
		return []domain.Place{{PlaceID: "p1", Name: "Guggenheim"}}, nil
	}}
	app := setupApp(makeDeps(backends{maps: maps}))

	for i := 0; i < 3; i++ {
		if status, _ := get(t, app, "/v1/places/search?q=Guggenheim"); status != 200 {
			t.Fatalf("call %d: expected 200, got %d", i, status)
		}
	}
	if maps.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", maps.calls)
	}
}

func TestSearchPlaces_BadParams(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	paths := []string{
		"/v1/places/search",
		"/v1/places/search?q=" + strings.Repeat("a", 201),
		"/v1/places/search?q=bar&lat=43.2",
		"/v1/places/search?q=bar&lat=north&lng=-2.9",
	}
	for _, path := range paths {
		status, body := get(t, app, path)
		if status != 400 {
			t.Errorf("%s: expected 400, got %d", path, status)
			continue
		}
		if apiErr := decodeError(t, body); apiErr.Code != "bad_request" {
			t.Errorf("%s: expected bad_request, got %q", path, apiErr.Code)
		}
	}
}

func TestSearchPlaces_MissingKey(t *testing.T) {
	maps := &mockMaps{missingKey: true}
	app := setupApp(makeDeps(backends{maps: maps}))

	status, body := get(t, app, "/v1/places/search?q=pintxos")
	if status != 502 {
		t.Fatalf("expected 502, got %d", status)
	}
	if apiErr := decodeError(t, body); apiErr.Code != "upstream_authorization" {
		t.Errorf("expected upstream_authorization, got %q", apiErr.Code)
	}
	if maps.calls != 0 {
		t.Errorf("expected no upstream call without a key, got %d", maps.calls)
	}
}

func TestSearchPlaces_UpstreamFailureDegrades(t *testing.T) {
	maps := &mockMaps{textFn: func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
		return nil, fmt.Errorf("unexpected status INVALID_REQUEST")
	}}
	app := setupApp(makeDeps(backends{maps: maps}))

	status, body := get(t, app, "/v1/places/search?q=pintxos")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("expected empty list, got %s", body)
	}
}

func TestPlacePhoto(t *testing.T) {
	var gotWidth int
	maps := &mockMaps{photoFn: func(ctx context.Context, q domain.PhotoQuery) (domain.PlacePhoto, error) {
		gotWidth = q.MaxWidth
		if q.PhotoReference == "gone" {
			return domain.PlacePhoto{}, nil
		}
		return domain.PlacePhoto{Reference: q.PhotoReference, URL: "https://lh3.example.com/p.jpg", MaxWidth: q.MaxWidth}, nil
	}}
	app := setupApp(makeDeps(backends{maps: maps}))

	status, body := get(t, app, "/v1/places/photo?ref=abc&maxwidth=5000")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var photo domain.PlacePhoto
	if err := json.Unmarshal(body, &photo); err != nil {
		t.Fatal(err)
	}
	if photo.URL == "" {
		t.Error("expected url")
	}
	if gotWidth != 800 {
		t.Errorf("expected out-of-range width clamped to 800, got %d", gotWidth)
	}

	if status, _ := get(t, app, "/v1/places/photo?ref=gone"); status != 404 {
		t.Errorf("expected 404 for unresolvable photo, got %d", status)
	}
	if status, _ := get(t, app, "/v1/places/photo"); status != 400 {
		t.Errorf("expected 400 without ref, got %d", status)
	}
}

func TestGeocode(t *testing.T) {
	maps := &mockMaps{geocodeFn: func(ctx context.Context, q domain.GeocodeQuery) (*domain.GeocodeResult, error) {
		if q.Location == "Atlantis" {
			return nil, nil
		}
		return &domain.GeocodeResult{Query: q.Location, FormattedAddress: "Bilbao, Spain", Location: bilbao}, nil
	}}
	app := setupApp(makeDeps(backends{maps: maps}))

	status, body := get(t, app, "/v1/geocode?location=Bilbao")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var result domain.GeocodeResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.Location != bilbao {
		t.Errorf("expected Bilbao location, got %+v", result.Location)
	}

	status, body = get(t, app, "/v1/geocode?location=Atlantis")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
	if apiErr := decodeError(t, body); apiErr.Code != "not_found" {
		t.Errorf("expected not_found, got %q", apiErr.Code)
	}
}

func TestEvents_Success(t *testing.T) {
	var got domain.EventQuery
	events := &mockEvents{searchFn: func(ctx context.Context, q domain.EventQuery) ([]domain.Event, error) {
		got = q
		return []domain.Event{{ID: "e1", Name: "BBK Live", StartsAt: q.Start}}, nil
	}}
	app := setupApp(makeDeps(backends{events: events}))

	status, body := get(t, app, "/v1/events?lat=43.263&lng=-2.935&start=2026-07-09&end=2026-07-11T23:00:00Z")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var list []domain.Event
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 event, got %d", len(list))
	}
	if got.RadiusKm != 25 {
		t.Errorf("expected default radius 25, got %d", got.RadiusKm)
	}
	if !got.Start.Equal(time.Date(2026, 7, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", got.Start)
	}
}

func TestEvents_BadParams(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	paths := []string{
		"/v1/events?start=2026-07-09&end=2026-07-10",
		"/v1/events?lat=43.2&lng=-2.9&end=2026-07-10",
		"/v1/events?lat=43.2&lng=-2.9&start=tomorrow&end=2026-07-10",
		"/v1/events?lat=43.2&lng=-2.9&start=2026-07-10&end=2026-07-09",
		"/v1/events?lat=43.2&lng=-2.9&start=2026-07-09&end=2026-07-10&radius=9000",
	}
	for _, path := range paths {
		if status, _ := get(t, app, path); status != 400 {
			t.Errorf("%s: expected 400, got %d", path, status)
		}
	}
}

// ---- Usage handler tests ----

type usageResponse struct {
	Categories map[string]domain.UsageSnapshot `json:"categories"`
	Total      int                             `json:"total"`
	LastReset  string                          `json:"last_reset"`
}

func TestUsage_CountsAndReset(t *testing.T) {
	maps := &mockMaps{textFn: func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
		return []domain.Place{{PlaceID: q.Query}}, nil
	}}
	app := setupApp(makeDeps(backends{maps: maps}))

	get(t, app, "/v1/places/search?q=one")
	get(t, app, "/v1/places/search?q=two")
	get(t, app, "/v1/places/search?q=two") // cached, not counted

	status, body := get(t, app, "/v1/usage")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var usage usageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		t.Fatal(err)
	}
	if got := usage.Categories[domain.CategoryPlaceDetails]; got.Count != 2 || got.Limit != 100 || got.Percentage != 2 {
		t.Errorf("unexpected placeDetails snapshot %+v", got)
	}
	if usage.Total != 2 {
		t.Errorf("expected total 2, got %d", usage.Total)
	}
	if usage.LastReset == "" {
		t.Error("expected last_reset")
	}

	status, body = postJSON(t, app, "/v1/usage/reset", nil)
	if status != 200 {
		t.Fatalf("reset: expected 200, got %d", status)
	}
	if err := json.Unmarshal(body, &usage); err != nil {
		t.Fatal(err)
	}
	if usage.Total != 0 || usage.Categories[domain.CategoryPlaceDetails].Count != 0 {
		t.Errorf("expected zeroed counters, got %+v", usage)
	}
}

func TestUsage_NotCached(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/usage", nil), -1)
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected no-store, got %q", cc)
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		t.Errorf("expected no ETag on usage, got %q", etag)
	}
}

// ---- GraphQL tests ----

func TestGraphQL_DistanceAndUsage(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, body := postJSON(t, app, "/graphql", map[string]any{
		"query": `{
			distance(from: {lat: 43.263, lng: -2.935}, to: {lat: 43.3183, lng: -1.9812})
			usage { total categories { category limit } }
		}`,
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		Data struct {
			Distance float64 `json:"distance"`
			Usage    struct {
				Total      int `json:"total"`
				Categories []struct {
					Category string `json:"category"`
					Limit    int    `json:"limit"`
				} `json:"categories"`
			} `json:"usage"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Data.Distance < 75 || result.Data.Distance > 85 {
		t.Errorf("expected ~77km, got %.1f", result.Data.Distance)
	}
	if len(result.Data.Usage.Categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(result.Data.Usage.Categories))
	}
	if result.Data.Usage.Categories[0].Category != domain.CategoryGeocoding {
		t.Errorf("expected categories sorted by name, got %s first", result.Data.Usage.Categories[0].Category)
	}
}

func TestGraphQL_Geometry(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	status, body := postJSON(t, app, "/graphql", map[string]any{
		"query": `query($pts: [PointInput!]!) { geometry(points: $pts) { points total_km center { lat lng } } }`,
		"variables": map[string]any{
			"pts": []any{
				map[string]any{"lat": bilbao.Lat, "lng": bilbao.Lng},
				map[string]any{"lat": donostia.Lat, "lng": donostia.Lng},
			},
		},
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		Data struct {
			Geometry struct {
				Points  int             `json:"points"`
				TotalKm float64         `json:"total_km"`
				Center  domain.GeoPoint `json:"center"`
			} `json:"geometry"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.Data.Geometry.Points != 2 {
		t.Errorf("expected 2 points, got %d", result.Data.Geometry.Points)
	}
	if result.Data.Geometry.Center.Lat < bilbao.Lat || result.Data.Geometry.Center.Lat > donostia.Lat {
		t.Errorf("center latitude out of range: %v", result.Data.Geometry.Center)
	}
}

func TestGraphQL_MissingQuery(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	if status, _ := postJSON(t, app, "/graphql", map[string]any{}); status != 400 {
		t.Errorf("expected 400, got %d", status)
	}
}

// ---- Health & middleware tests ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps(backends{}, func(d *handler.Dependencies) { d.Version = "1.2.3" }))

	status, body := get(t, app, "/v1/health")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
	if result["version"] != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %v", result["version"])
	}
}

func TestReady(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	broken := func(ctx context.Context) error { return fmt.Errorf("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]handler.ReadinessCheck
		wantStatus int
	}{
		{"no checks", nil, 200},
		{"all ok", map[string]handler.ReadinessCheck{"storage": ok, "cache": ok}, 200},
		{"storage down", map[string]handler.ReadinessCheck{"storage": broken, "cache": ok}, 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(backends{}, func(d *handler.Dependencies) { d.Checks = tt.checks }))

			status, body := get(t, app, "/v1/ready")
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, status, body)
			}

			var result struct {
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				t.Fatal(err)
			}
			if result.Checks["nats"] != "not configured" {
				t.Errorf("expected nats not configured, got %q", result.Checks["nats"])
			}
			for name := range tt.checks {
				if _, ok := result.Checks[name]; !ok {
					t.Errorf("expected check %s reported", name)
				}
			}
		})
	}
}

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if v := resp.Header.Get("X-API-Version"); v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
	if v := resp.Header.Get("X-Request-ID"); v == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestETag_NotModified(t *testing.T) {
	maps := &mockMaps{textFn: func(ctx context.Context, q domain.PlaceQuery) ([]domain.Place, error) {
		return []domain.Place{{PlaceID: "p1"}}, nil
	}}
	app := setupApp(makeDeps(backends{maps: maps}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/places/search?q=bar", nil), -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag")
	}

	tests := []struct {
		name        string
		ifNoneMatch string
		want        int
	}{
		{"exact", etag, 304},
		{"strong form", strings.TrimPrefix(etag, "W/"), 304},
		{"list", `W/"0000000000000000", ` + etag, 304},
		{"wildcard", "*", 304},
		{"stale", `W/"0000000000000000"`, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/places/search?q=bar", nil)
			req.Header.Set("If-None-Match", tt.ifNoneMatch)
			resp, _ := app.Test(req, -1)
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps(backends{}))

	if status, _ := get(t, app, "/ws/usage"); status != fiber.StatusUpgradeRequired {
		t.Errorf("expected 426, got %d", status)
	}
}

func TestDocs_ServesOpenAPI(t *testing.T) {
	app := setupApp(makeDeps(backends{}, func(d *handler.Dependencies) {
		d.OpenAPIPath = findOpenAPIDoc(t)
	}))

	status, body := get(t, app, "/docs/openapi.yaml")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.HasPrefix(string(body), "openapi:") {
		t.Errorf("unexpected document start: %.40s", body)
	}

	status, body = get(t, app, "/docs/openapi.json")
	if status != 200 {
		t.Fatalf("expected 200 for json document, got %d", status)
	}
	var doc struct {
		Info struct {
			Version string `json:"version"`
		} `json:"info"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("json document did not decode: %v", err)
	}
	if doc.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", doc.Info.Version)
	}

	if status, _ := get(t, app, "/docs"); status != 200 {
		t.Errorf("expected 200 for docs UI, got %d", status)
	}
}

func TestDocs_MissingDocument(t *testing.T) {
	app := setupApp(makeDeps(backends{}, func(d *handler.Dependencies) {
		d.OpenAPIPath = filepath.Join(t.TempDir(), "missing.yaml")
	}))

	for _, path := range []string{"/docs/openapi.yaml", "/docs/openapi.json"} {
		status, body := get(t, app, path)
		if status != 404 {
			t.Errorf("%s: expected 404, got %d", path, status)
		}
		if code := decodeError(t, body).Code; code != "not_found" {
			t.Errorf("%s: expected not_found, got %q", path, code)
		}
	}
	if status, _ := get(t, app, "/docs"); status != 200 {
		t.Errorf("expected docs UI to stay up, got %d", status)
	}
}

// TestAccessLogMiddleware verifies structured access logging does not alter responses.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", body)
	}
}

func TestRequestIDLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-42")
		return c.Next()
	})
	app.Use(handler.RequestIDLogMiddleware())

	var gotID string
	var gotLogger bool
	app.Get("/test", func(c *fiber.Ctx) error {
		gotID = handler.RequestIDFromCtx(c.UserContext())
		gotLogger = handler.LoggerFromCtx(c.UserContext()) != nil
		return c.SendStatus(fiber.StatusNoContent)
	})

	if _, err := app.Test(httptest.NewRequest("GET", "/test", nil)); err != nil {
		t.Fatal(err)
	}
	if gotID != "req-42" {
		t.Errorf("expected request id req-42, got %q", gotID)
	}
	if !gotLogger {
		t.Error("expected request logger")
	}
}
