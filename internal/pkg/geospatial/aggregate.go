package geospatial

import (
	"math"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

// boundsPaddingRatio widens each axis by this share of its span on both sides.
const boundsPaddingRatio = 0.1

// ValidPoints extracts every source that yields a coordinate, in order.
func ValidPoints(sources []any) []domain.GeoPoint {
	points := make([]domain.GeoPoint, 0, len(sources))
	for _, src := range sources {
		if p, ok := ExtractCoordinates(src); ok {
			points = append(points, p)
		}
	}
	return points
}

// CalculateCenter returns the arithmetic mean of latitude and of longitude
// across the sources that yield a coordinate.
//
// This is a planar approximation, not a spherical centroid: it is fine for
// city-sized clusters and drifts for widely spread or antimeridian-crossing
// points.
func CalculateCenter(sources []any) (domain.GeoPoint, bool) {
	points := ValidPoints(sources)
	if len(points) == 0 {
		return domain.GeoPoint{}, false
	}

	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(points))
	return domain.GeoPoint{Lat: sumLat / n, Lng: sumLng / n}, true
}

// CalculateBounds returns the min/max box of the valid sources padded by 10%
// of each axis span. A zero span yields zero padding on that axis.
func CalculateBounds(sources []any) (domain.BoundingBox, bool) {
	points := ValidPoints(sources)
	if len(points) == 0 {
		return domain.BoundingBox{}, false
	}

	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLng, maxLng := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLng = math.Min(minLng, p.Lng)
		maxLng = math.Max(maxLng, p.Lng)
	}

	latPad := (maxLat - minLat) * boundsPaddingRatio
	lngPad := (maxLng - minLng) * boundsPaddingRatio

	return domain.BoundingBox{
		Northeast: domain.GeoPoint{Lat: maxLat + latPad, Lng: maxLng + lngPad},
		Southwest: domain.GeoPoint{Lat: minLat - latPad, Lng: minLng - lngPad},
	}, true
}

// RouteLegs returns the distance in kilometers between consecutive points and
// the total.
func RouteLegs(points []domain.GeoPoint) ([]float64, float64) {
	if len(points) < 2 {
		return nil, 0
	}
	legs := make([]float64, 0, len(points)-1)
	var total float64
	for i := 1; i < len(points); i++ {
		d := CalculateDistance(points[i-1], points[i])
		legs = append(legs, d)
		total += d
	}
	return legs, total
}
