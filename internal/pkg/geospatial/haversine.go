package geospatial

import (
	"math"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

const earthRadiusKm = 6371.0

// CalculateDistance returns the great-circle distance in kilometers between a and b.
// Out-of-range coordinates are not clamped; the result is still finite.
func CalculateDistance(a, b domain.GeoPoint) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng) / 1000
}

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// rounding can push a a hair outside [0,1] for antipodal input
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// RadiusBox returns a bounding box around center with the given radius in meters.
func RadiusBox(center domain.GeoPoint, radiusMeters float64) domain.BoundingBox {
	latDelta := radiusMeters / 111320.0
	lngDelta := radiusMeters / (111320.0 * math.Cos(toRad(center.Lat)))

	return domain.BoundingBox{
		Southwest: domain.GeoPoint{Lat: center.Lat - latDelta, Lng: center.Lng - lngDelta},
		Northeast: domain.GeoPoint{Lat: center.Lat + latDelta, Lng: center.Lng + lngDelta},
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
