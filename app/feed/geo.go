package feed

import "math"

const earthRadiusKm = 6371

// Point is a coordinate in degrees
type Point struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lng float64 `yaml:"lng" json:"lng"`
}

// DefaultOrigin is the reference point distances are measured from when none is configured
var DefaultOrigin = Point{Lat: 35.8459, Lng: 129.2319}

// IsZero reports whether p is unset
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// Distance returns the great-circle distance in km between a and b (haversine)
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Pow(math.Sin(dLng/2), 2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
