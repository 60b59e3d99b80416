package gps

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DemoTrack generates a simulated drive as position and wall-clock log text,
// one record every step seconds for n records.
func DemoTrack(n int, step float64) (positions, labels string) {
	// Drive in a circle around a point
	centerLat := -32.5121 // Perth, WA
	centerLon := 115.9773
	radius := 0.005 // ~500m

	start := time.Date(2024, time.March, 2, 14, 9, 21, 0, time.UTC)

	var pb, lb strings.Builder
	for i := 0; i < n; i++ {
		t := float64(i) * step
		lat := centerLat + radius*math.Sin(t*0.01)
		lon := centerLon + radius*math.Cos(t*0.01)
		fmt.Fprintf(&pb, "%.1f:%s\n", t, FormatDMS(lat, lon))
		at := start.Add(time.Duration(t * float64(time.Second)))
		fmt.Fprintf(&lb, "%.1f: %s\n", t, at.Format("15:04:05"))
	}
	return pb.String(), lb.String()
}
