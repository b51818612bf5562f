package main

import "math"

const earthRadiusMeters = 6371000

// HaversineDistance returns the great-circle distance in meters between two
// (longitude, latitude) points given in degrees. Coordinates are expected to
// already be in range; out-of-range input is the caller's problem.
func HaversineDistance(lon1, lat1, lon2, lat2 float64) float64 {
	toRad := func(x float64) float64 { return x * math.Pi / 180 }

	p1 := toRad(lat1)
	p2 := toRad(lat2)
	dp := toRad(lat2 - lat1)
	dl := toRad(lon2 - lon1)

	a := math.Sin(dp/2)*math.Sin(dp/2) +
		math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Meters spanned by one degree of latitude on the mean-radius sphere.
const metersPerDegree = earthRadiusMeters * math.Pi / 180

// BoundingBox returns the half-spans in degrees of latitude and longitude
// covering a circle of the given radius around a point at lat degrees. Used
// as a coarse SQL filter; callers still re-check with HaversineDistance.
func BoundingBox(lat, radiusMeters float64) (dLat, dLon float64) {
	dLat = radiusMeters / metersPerDegree
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	dLon = dLat / cos
	return dLat, dLon
}
