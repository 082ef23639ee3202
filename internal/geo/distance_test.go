package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	brisbaneToSydney := Haversine(-27.4698, 153.0251, -33.8688, 151.2093)
	assert.InDelta(t, 732000, brisbaneToSydney, 5000)
	assert.Zero(t, Haversine(-27.4698, 153.0251, -27.4698, 153.0251))
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		metres         float64
		distance, time string
	}{
		{150, "150 m", "1 min"},
		{450, "450 m", "1 min"},
		{1000, "1.0 km", "1 min"},
		{12000, "12.0 km", "10 mins"},
		{87300, "87.3 km", "1 hour 13 mins"},
		{144000, "144.0 km", "2 hours 0 mins"},
		{73200, "73.2 km", "1 hour 1 min"},
	}
	for _, tt := range tests {
		d, tm := FormatDistance(tt.metres)
		assert.Equal(t, tt.distance, d, "distance for %v", tt.metres)
		assert.Equal(t, tt.time, tm, "time for %v", tt.metres)
	}
}
