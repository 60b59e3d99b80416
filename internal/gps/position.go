package gps

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Position is a single decimal-degree fix as pushed to live-map clients.
type Position struct {
	Latitude  float64 `json:"lat"` // decimal degrees
	Longitude float64 `json:"lon"` // decimal degrees
}

// dmsPattern matches a compact latitude+longitude pair such as
// 32°30'43.60"S115°58'38.47"E. The seconds quote is optional.
var dmsPattern = regexp.MustCompile(`^(\d+)°(\d+)'([\d.]+)"?([NS])(\d+)°(\d+)'([\d.]+)"?([EW])`)

// ParseDMS converts a degrees-minutes-seconds pair with hemisphere codes to
// signed decimal degrees. Text after the longitude hemisphere is ignored.
func ParseDMS(s string) (lat, lon float64, err error) {
	m := dmsPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("gps: invalid DMS format %q", s)
	}

	lat, err = dmsToDecimal(m[1], m[2], m[3], m[4])
	if err != nil {
		return 0, 0, fmt.Errorf("gps: latitude in %q: %w", s, err)
	}
	lon, err = dmsToDecimal(m[5], m[6], m[7], m[8])
	if err != nil {
		return 0, 0, fmt.Errorf("gps: longitude in %q: %w", s, err)
	}

	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("gps: latitude %.6f out of range", lat)
	}
	if lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("gps: longitude %.6f out of range", lon)
	}
	return lat, lon, nil
}

func dmsToDecimal(deg, min, sec, dir string) (float64, error) {
	d, err := strconv.ParseFloat(deg, 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseFloat(min, 64)
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseFloat(sec, 64)
	if err != nil {
		return 0, err
	}

	dd := d + m/60 + s/3600
	if dir == "S" || dir == "W" {
		dd = -dd
	}
	return dd, nil
}

// FormatDMS renders a position in the compact form accepted by ParseDMS,
// with seconds to two decimals.
func FormatDMS(lat, lon float64) string {
	latDir, lonDir := "N", "E"
	if lat < 0 {
		latDir = "S"
	}
	if lon < 0 {
		lonDir = "W"
	}
	return formatComponent(math.Abs(lat)) + latDir + formatComponent(math.Abs(lon)) + lonDir
}

func formatComponent(v float64) string {
	// Work in hundredths of a second so rounding carries into minutes/degrees.
	total := int64(math.Round(v * 3600 * 100))
	deg := total / (3600 * 100)
	total -= deg * 3600 * 100
	min := total / (60 * 100)
	total -= min * 60 * 100
	return fmt.Sprintf("%d°%d'%d.%02d\"", deg, min, total/100, total%100)
}
