package models

// BoundingBox is a caller-supplied lat/lng rectangle. MinLng > MaxLng means
// the box crosses the antimeridian.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether the point lies inside the box (edges included).
func (b *BoundingBox) Contains(lat, lng float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.Wraps() {
		return lng >= b.MinLng || lng <= b.MaxLng
	}
	return lng >= b.MinLng && lng <= b.MaxLng
}

// Wraps reports whether the box crosses the antimeridian.
func (b *BoundingBox) Wraps() bool {
	return b.MinLng > b.MaxLng
}

// Valid reports whether the latitudes are ordered and every edge is in range.
func (b *BoundingBox) Valid() bool {
	return b.MinLat <= b.MaxLat &&
		b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MinLng >= -180 && b.MinLng <= 180 &&
		b.MaxLng >= -180 && b.MaxLng <= 180
}
