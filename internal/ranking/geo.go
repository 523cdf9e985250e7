package ranking

import (
	"math"

	"github.com/hyperjump/basho/internal/models"
)

const earthRadiusMeters = 6371008.8

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b models.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceScore applies linear decay: 100 at the center, 0 at maxMeters and beyond.
func DistanceScore(distanceMeters, maxMeters float64) float64 {
	if maxMeters <= 0 {
		return 0
	}
	return math.Max(0, 100-(distanceMeters/maxMeters)*100)
}
