package services

import (
	"math"

	"github.com/leadflow/backend/internal/models"
)

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBoxAround returns a box that contains every point within radiusKm of
// (lat, lng). It over-approximates; callers refine with DistanceKm. Near the
// antimeridian the box wraps and MinLng > MaxLng.
func BoundingBoxAround(lat, lng, radiusKm float64) *models.BoundingBox {
	dLat := radiusKm / 111.32
	box := &models.BoundingBox{
		MinLat: math.Max(lat-dLat, -90),
		MaxLat: math.Min(lat+dLat, 90),
		MinLng: -180,
		MaxLng: 180,
	}
	cos := math.Cos(lat * math.Pi / 180)
	// A circle that reaches a pole spans every meridian.
	if cos <= 1e-6 || lat+dLat >= 90 || lat-dLat <= -90 {
		return box
	}
	dLng := radiusKm / (111.32 * cos)
	if dLng >= 180 {
		return box
	}
	box.MinLng = wrapLng(lng - dLng)
	box.MaxLng = wrapLng(lng + dLng)
	return box
}

// wrapLng folds a longitude into [-180, 180].
func wrapLng(lng float64) float64 {
	switch {
	case lng > 180:
		return lng - 360
	case lng < -180:
		return lng + 360
	}
	return lng
}
