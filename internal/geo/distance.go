package geo

import (
	"fmt"
	"math"
)

const earthRadiusMetres = 6371000

// Haversine returns the great-circle distance in metres between two points
// given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMetres * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Travel speeds used for the drive time estimate: about 50 km/h in town, and a
// blend of town and highway driving beyond a kilometre.
const (
	metresPerMinuteTown = 833
	kmPerMinuteMixed    = 1.2
)

// FormatDistance renders a distance and an estimated drive time, e.g.
// ("450 m", "1 min") or ("87.3 km", "1 hour 13 mins").
func FormatDistance(metres float64) (distance, driveTime string) {
	km := metres / 1000
	if km < 1 {
		m := int(math.Round(metres))
		mins := maxInt(1, int(math.Round(float64(m)/metresPerMinuteTown)))
		return fmt.Sprintf("%d m", m), plural(mins, "min")
	}

	mins := maxInt(1, int(math.Round(km/kmPerMinuteMixed)))
	distance = fmt.Sprintf("%.1f km", km)
	if hours := mins / 60; hours > 0 {
		return distance, plural(hours, "hour") + " " + plural(mins%60, "min")
	}
	return distance, plural(mins, "min")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
