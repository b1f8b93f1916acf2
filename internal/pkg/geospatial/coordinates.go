// Package geospatial normalizes loosely shaped location values into
// domain.GeoPoint and derives map framing from them.
package geospatial

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/samirrijal/tripcore/internal/core/domain"
)

// maxNestingDepth bounds geoCoordinates re-dispatch on self-referencing input.
const maxNestingDepth = 8

// LatLngAccessor is satisfied by map SDK style point objects exposing
// zero-argument Lat/Lng methods.
type LatLngAccessor interface {
	Lat() float64
	Lng() float64
}

// shape is the structural variant detected for a location source.
type shape int

const (
	shapeNone shape = iota
	shapeLatLngString
	shapeLatLngObject
	shapeLatitudeLongitude
	shapeGeometryLocation
	shapeCoordinatesArray
	shapeCoordinatesObject
	shapeGeoCoordinates
)

// object is a field lookup over the map-like values we accept.
type object map[string]any

func (o object) has(name string) bool {
	v, ok := o[name]
	return ok && v != nil
}

// ExtractCoordinates converts a location-bearing value into a GeoPoint.
// Supported shapes, in detection order:
//
//	"lat,lng"
//	{lat, lng}                  (fields may be zero-argument accessors)
//	{latitude, longitude}
//	{geometry: {location: {lat, lng}}}
//	{coordinates: [lng, lat]} or {coordinates: {lat, lng}}
//	{geoCoordinates: <any of the above>}
//
// Detection stops at the first matching shape. It reports false when nothing
// matches or the matched values are not finite numbers, and never panics.
func ExtractCoordinates(source any) (p domain.GeoPoint, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p, ok = domain.GeoPoint{}, false
		}
	}()
	return extract(source, 0)
}

func extract(source any, depth int) (domain.GeoPoint, bool) {
	if source == nil || depth > maxNestingDepth {
		return domain.GeoPoint{}, false
	}

	if s, isString := source.(string); isString {
		return parseLatLngString(s)
	}

	obj, isObject := asObject(source)
	if !isObject {
		return domain.GeoPoint{}, false
	}

	switch classify(obj) {
	case shapeLatLngObject:
		return latLngFrom(obj)
	case shapeLatitudeLongitude:
		return pointFrom(obj["latitude"], obj["longitude"], false)
	case shapeGeometryLocation:
		geometry, _ := asObject(obj["geometry"])
		location, _ := asObject(geometry["location"])
		return latLngFrom(location)
	case shapeCoordinatesArray:
		seq, _ := asSequence(obj["coordinates"])
		return pointFrom(seq[1], seq[0], false)
	case shapeCoordinatesObject:
		coords, _ := asObject(obj["coordinates"])
		return latLngFrom(coords)
	case shapeGeoCoordinates:
		return extract(obj["geoCoordinates"], depth+1)
	default:
		return domain.GeoPoint{}, false
	}
}

func classify(obj object) shape {
	if obj.has("lat") && obj.has("lng") {
		return shapeLatLngObject
	}
	if obj.has("latitude") && obj.has("longitude") {
		return shapeLatitudeLongitude
	}
	if geometry, ok := asObject(obj["geometry"]); ok {
		if _, ok := asObject(geometry["location"]); ok {
			return shapeGeometryLocation
		}
	}
	if obj.has("coordinates") {
		if seq, ok := asSequence(obj["coordinates"]); ok && len(seq) >= 2 {
			return shapeCoordinatesArray
		}
		if coords, ok := asObject(obj["coordinates"]); ok && coords.has("lat") && coords.has("lng") {
			return shapeCoordinatesObject
		}
	}
	if obj.has("geoCoordinates") {
		return shapeGeoCoordinates
	}
	return shapeNone
}

func parseLatLngString(s string) (domain.GeoPoint, bool) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return domain.GeoPoint{}, false
	}
	return pointFrom(parts[0], parts[1], false)
}

func latLngFrom(obj object) (domain.GeoPoint, bool) {
	if obj == nil {
		return domain.GeoPoint{}, false
	}
	return pointFrom(obj["lat"], obj["lng"], true)
}

func pointFrom(lat, lng any, callAccessors bool) (domain.GeoPoint, bool) {
	la, ok := toFloat(lat, callAccessors)
	if !ok {
		return domain.GeoPoint{}, false
	}
	ln, ok := toFloat(lng, callAccessors)
	if !ok {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: la, Lng: ln}, true
}

func toFloat(v any, callAccessors bool) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case func() float64:
		if !callAccessors {
			return 0, false
		}
		f = x()
	case func() string:
		if !callAccessors {
			return 0, false
		}
		return toFloat(x(), false)
	case func() any:
		if !callAccessors {
			return 0, false
		}
		return toFloat(x(), false)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asObject(v any) (object, bool) {
	switch x := v.(type) {
	case map[string]any:
		return object(x), true
	case object:
		return x, true
	case map[string]float64:
		obj := make(object, len(x))
		for k, f := range x {
			obj[k] = f
		}
		return obj, true
	case map[string]string:
		obj := make(object, len(x))
		for k, s := range x {
			obj[k] = s
		}
		return obj, true
	case domain.GeoPoint:
		return object{"lat": x.Lat, "lng": x.Lng}, true
	case *domain.GeoPoint:
		if x == nil {
			return nil, false
		}
		return object{"lat": x.Lat, "lng": x.Lng}, true
	case LatLngAccessor:
		return object{"lat": x.Lat, "lng": x.Lng}, true
	default:
		return nil, false
	}
}

func asSequence(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []float64:
		seq := make([]any, len(x))
		for i, f := range x {
			seq[i] = f
		}
		return seq, true
	case []string:
		seq := make([]any, len(x))
		for i, s := range x {
			seq[i] = s
		}
		return seq, true
	default:
		return nil, false
	}
}
