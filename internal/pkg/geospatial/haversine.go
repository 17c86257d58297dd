package geospatial

import "math"

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometers between two points.
// Coincident points yield 0.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return DistanceKm(lat1, lon1, lat2, lon2) * 1000
}

// BoundingBox returns a box enclosing every point within radiusKm of (lat, lon).
// It over-approximates slightly so it can be used as a cheap prefilter.
// Longitudes are normalized to [-180, 180]; when the box crosses the
// antimeridian minLon > maxLon. A circle reaching a pole spans every longitude.
func BoundingBox(lat, lon, radiusKm float64) (minLat, minLon, maxLat, maxLon float64) {
	ang := radiusKm / earthRadiusKm * 1.01
	latDelta := toDeg(ang)
	minLat, maxLat = lat-latDelta, lat+latDelta
	if minLat <= -90 || maxLat >= 90 || ang >= math.Pi/2 {
		return math.Max(minLat, -90), -180, math.Min(maxLat, 90), 180
	}

	// Widest longitude reach of a spherical cap: asin(sin(r/R) / cos(lat)).
	s := math.Sin(ang) / math.Cos(toRad(lat))
	if s >= 1 {
		return minLat, -180, maxLat, 180
	}
	lonDelta := toDeg(math.Asin(s))
	if lonDelta >= 180 {
		return minLat, -180, maxLat, 180
	}
	return minLat, normalizeLon(lon - lonDelta), maxLat, normalizeLon(lon + lonDelta)
}

// normalizeLon maps any longitude into [-180, 180].
func normalizeLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
