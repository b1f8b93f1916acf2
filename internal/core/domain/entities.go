package domain

import (
	"time"
)

// Place is a point of interest resolved through the place-search backend.
type Place struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	Location         GeoPoint `json:"location"`
	Types            []string `json:"types,omitempty"`
	Rating           float64  `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
	PriceLevel       int      `json:"price_level,omitempty"`
	PhotoReferences  []string `json:"photo_references,omitempty"`
}

// PlacePhoto is a photo reference resolved to a directly loadable URL.
type PlacePhoto struct {
	Reference string `json:"reference"`
	URL       string `json:"url"`
	MaxWidth  int    `json:"max_width"`
}

// Event is a ticketed event near a trip destination.
type Event struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	URL      string    `json:"url,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	Venue    string    `json:"venue,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
	Segment  string    `json:"segment,omitempty"`
	ImageURL string    `json:"image_url,omitempty"`
}

// GeocodeResult is the best match for a free-text location name.
type GeocodeResult struct {
	Query            string   `json:"query"`
	FormattedAddress string   `json:"formatted_address"`
	PlaceID          string   `json:"place_id,omitempty"`
	Location         GeoPoint `json:"location"`
}

// TripPlan is a recovered itinerary document returned by the generation backend.
type TripPlan struct {
	ID          string         `json:"id"`
	Prompt      string         `json:"prompt"`
	Document    any            `json:"document"`
	Places      []LocatedPlace `json:"places,omitempty"`
	Geometry    *PlanGeometry  `json:"geometry,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// LocatedPlace pairs a place name from a plan with its resolved location.
type LocatedPlace struct {
	Name     string    `json:"name"`
	Place    *Place    `json:"place,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
}

// PlanGeometry is the map framing derived from a plan's locations.
type PlanGeometry struct {
	Center  *GeoPoint    `json:"center,omitempty"`
	Bounds  *BoundingBox `json:"bounds,omitempty"`
	Points  int          `json:"points"`
	LegsKm  []float64    `json:"legs_km,omitempty"`
	TotalKm float64      `json:"total_km"`
}
