package domain

import "time"

// PlaceQuery is a free-text place lookup, optionally biased toward a point.
type PlaceQuery struct {
	Query string    `json:"query"`
	Near  *GeoPoint `json:"near,omitempty"`
}

// PhotoQuery resolves a photo reference to a servable URL.
type PhotoQuery struct {
	PhotoReference string `json:"photo_reference"`
	MaxWidth       int    `json:"max_width"`
}

// EventQuery searches events around a point within a date range.
type EventQuery struct {
	Location GeoPoint  `json:"location"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	RadiusKm int       `json:"radius_km"`
}

// GeocodeQuery geocodes a location name, optionally biased toward a point.
type GeocodeQuery struct {
	Location string    `json:"location"`
	Near     *GeoPoint `json:"near,omitempty"`
}
