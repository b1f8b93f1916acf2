package domain

// GeoPoint represents a geographic coordinate (WGS 84).
// Values are not range-checked; out-of-range input passes through unchanged.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox represents a padded map viewport around a set of points.
type BoundingBox struct {
	Northeast GeoPoint `json:"northeast"`
	Southwest GeoPoint `json:"southwest"`
}

// Contains reports whether p lies inside the box (edges inclusive).
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.Southwest.Lat && p.Lat <= b.Northeast.Lat &&
		p.Lng >= b.Southwest.Lng && p.Lng <= b.Northeast.Lng
}
