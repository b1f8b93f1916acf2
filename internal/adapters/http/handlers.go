package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/tripcore/internal/core/domain"
)

const (
	maxQueryLength  = 200
	maxLocateNames  = 25
	maxGeometryPins = 500
)

type planRequest struct {
	Prompt string `json:"prompt"`
	Locate bool   `json:"locate"`
}

type parseRequest struct {
	Raw any `json:"raw"`
}

type geometryRequest struct {
	Points []any `json:"points"`
}

type locateRequest struct {
	Places []string         `json:"places"`
	Near   *domain.GeoPoint `json:"near,omitempty"`
}

type locateResponse struct {
	Places   []domain.LocatedPlace `json:"places"`
	Geometry *domain.PlanGeometry  `json:"geometry"`
}

// GeneratePlanHandler asks the generation backend for a trip plan.
func GeneratePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req planRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		plan, err := deps.Plans.Generate(c.UserContext(), req.Prompt, req.Locate)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Warn("plan generation failed", "error", err)
			return errFromDomain(c, err)
		}

		c.Set("Cache-Control", "no-store")
		return c.Status(fiber.StatusCreated).JSON(plan)
	}
}

// ParsePlanHandler recovers a structured document from raw generation output.
func ParsePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req parseRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Raw == nil {
			return errBadRequest(c, "raw is required")
		}

		doc, err := deps.Plans.Parse(req.Raw)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"document": doc})
	}
}

// GeometryHandler frames an arbitrary list of coordinate-bearing values.
func GeometryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req geometryRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) > maxGeometryPins {
			return errBadRequest(c, "too many points (max "+strconv.Itoa(maxGeometryPins)+")")
		}
		return c.JSON(deps.Plans.Geometry(req.Points))
	}
}

// LocateHandler resolves place names and frames the results.
func LocateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req locateRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Places) == 0 {
			return errBadRequest(c, "places must not be empty")
		}
		if len(req.Places) > maxLocateNames {
			return errBadRequest(c, "too many places (max "+strconv.Itoa(maxLocateNames)+")")
		}

		places, geometry, err := deps.Plans.Locate(c.UserContext(), req.Places, req.Near)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(locateResponse{Places: places, Geometry: geometry})
	}
}

// SearchPlacesHandler performs a text search for places, optionally biased to a point.
func SearchPlacesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Discovery == nil {
			return errUnavailable(c, "place search is not configured")
		}
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		if len(query) > maxQueryLength {
			return errBadRequest(c, "query too long (max 200 characters)")
		}
		near, err := queryPoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		places, err := deps.Discovery.SearchPlaces(c.UserContext(), domain.PlaceQuery{Query: query, Near: near})
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(places)
	}
}

// PlacePhotoHandler resolves a photo reference to a loadable URL.
func PlacePhotoHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Discovery == nil {
			return errUnavailable(c, "place photos are not configured")
		}
		ref := strings.TrimSpace(c.Query("ref"))
		if ref == "" {
			return errBadRequest(c, "ref query parameter is required")
		}

		photo, err := deps.Discovery.ResolvePhoto(c.UserContext(), domain.PhotoQuery{
			PhotoReference: ref,
			MaxWidth:       c.QueryInt("maxwidth", 0),
		})
		if err != nil {
			return errFromDomain(c, err)
		}
		if photo.URL == "" {
			return errNotFound(c, "photo not available")
		}
		return c.JSON(photo)
	}
}

// GeocodeHandler returns the best match for a location name.
func GeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Discovery == nil {
			return errUnavailable(c, "geocoding is not configured")
		}
		location := strings.TrimSpace(c.Query("location"))
		if location == "" {
			return errBadRequest(c, "location query parameter is required")
		}
		near, err := queryPoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		result, err := deps.Discovery.Geocode(c.UserContext(), domain.GeocodeQuery{Location: location, Near: near})
		if err != nil {
			return errFromDomain(c, err)
		}
		if result == nil {
			return errNotFound(c, "no match for "+location)
		}
		return c.JSON(result)
	}
}

// EventsHandler lists events near a point within a date range.
func EventsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Discovery == nil {
			return errUnavailable(c, "event search is not configured")
		}
		near, err := queryPoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if near == nil {
			return errBadRequest(c, "lat and lng are required")
		}
		start, err := parseDate(c.Query("start"))
		if err != nil {
			return errBadRequest(c, "start: "+err.Error())
		}
		end, err := parseDate(c.Query("end"))
		if err != nil {
			return errBadRequest(c, "end: "+err.Error())
		}
		if end.Before(start) {
			return errBadRequest(c, "end must not be before start")
		}
		radius := c.QueryInt("radius", 25)
		if radius <= 0 || radius > 500 {
			return errBadRequest(c, "radius must be between 1 and 500 km")
		}

		events, err := deps.Discovery.SearchEvents(c.UserContext(), domain.EventQuery{
			Location: *near,
			Start:    start,
			End:      end,
			RadiusKm: radius,
		})
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(events)
	}
}

// UsageStatsHandler reports the daily quota counters.
func UsageStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-store")
		return c.JSON(deps.Usage.GetUsageStats())
	}
}

// ResetUsageHandler zeroes the daily quota counters.
func ResetUsageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Usage.ResetCounters(c.UserContext())
		LoggerFromCtx(c.UserContext()).Info("usage counters reset via api")
		return c.JSON(deps.Usage.GetUsageStats())
	}
}

// queryPoint reads an optional lat/lng pair. Both or neither must be given.
func queryPoint(c *fiber.Ctx) (*domain.GeoPoint, error) {
	latRaw, lngRaw := c.Query("lat"), c.Query("lng")
	if latRaw == "" && lngRaw == "" {
		return nil, nil
	}
	if latRaw == "" || lngRaw == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "lat and lng must be given together")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "lat is not a number")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "lng is not a number")
	}
	return &domain.GeoPoint{Lat: lat, Lng: lng}, nil
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (UTC midnight).
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}
