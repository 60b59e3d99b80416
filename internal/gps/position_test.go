package gps

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestParseDMS(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantLat float64
		wantLon float64
		wantErr bool
	}{
		{
			name:    "south east",
			in:      `32°30'43.60"S115°58'38.47"E`,
			wantLat: -32.512111,
			wantLon: 115.977353,
		},
		{
			name:    "north west",
			in:      `51°28'40.12"N0°0'5.31"W`,
			wantLat: 51.477811,
			wantLon: -0.001475,
		},
		{
			name:    "seconds quote omitted",
			in:      `10°0'0S20°30'0E`,
			wantLat: -10,
			wantLon: 20.5,
		},
		{
			name:    "trailing text ignored",
			in:      `1°0'0"N2°0'0"E junk`,
			wantLat: 1,
			wantLon: 2,
		},
		{name: "empty", in: "", wantErr: true},
		{name: "missing longitude", in: `32°30'43.60"S`, wantErr: true},
		{name: "bad hemisphere", in: `32°30'43.60"X115°58'38.47"E`, wantErr: true},
		{name: "leading garbage", in: `x32°30'43.60"S115°58'38.47"E`, wantErr: true},
		{name: "double decimal point", in: `32°30'4.3.6"S115°58'38.47"E`, wantErr: true},
		{name: "latitude out of range", in: `91°0'0"N0°0'0"E`, wantErr: true},
		{name: "longitude out of range", in: `0°0'0"N181°0'0"E`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, err := ParseDMS(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDMS(%q) = %v, %v; want error", tt.in, lat, lon)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDMS(%q) error: %v", tt.in, err)
			}
			if math.Abs(lat-tt.wantLat) > 1e-4 {
				t.Errorf("lat = %.6f, want %.6f", lat, tt.wantLat)
			}
			if math.Abs(lon-tt.wantLon) > 1e-4 {
				t.Errorf("lon = %.6f, want %.6f", lon, tt.wantLon)
			}
		})
	}
}

func TestFormatDMSRoundTrip(t *testing.T) {
	points := [][2]float64{
		{-32.511, 115.977},
		{0, 0},
		{45.999999, -122.5},
		{-89.9, 179.99},
	}
	for _, p := range points {
		s := FormatDMS(p[0], p[1])
		lat, lon, err := ParseDMS(s)
		if err != nil {
			t.Fatalf("ParseDMS(FormatDMS(%v)) = %q: %v", p, s, err)
		}
		if math.Abs(lat-p[0]) > 1e-4 || math.Abs(lon-p[1]) > 1e-4 {
			t.Errorf("round trip %v -> %q -> (%f, %f)", p, s, lat, lon)
		}
	}
}

func TestFormatDMSCarriesRounding(t *testing.T) {
	// 59.999999 seconds rounds up into the next minute
	s := FormatDMS(10+59.0/60+59.999999/3600, 0)
	if !strings.HasPrefix(s, `11°0'0.00"N`) {
		t.Errorf("FormatDMS = %q, want prefix 11°0'0.00\"N", s)
	}
}

func TestPositionJSON(t *testing.T) {
	data, err := json.Marshal(Position{Latitude: -32.5, Longitude: 115.25})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `{"lat":-32.5,"lon":115.25}`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}
}

func TestDemoTrackParses(t *testing.T) {
	positions, labels := DemoTrack(5, 1.0)
	lines := strings.Split(strings.TrimSpace(positions), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d position lines, want 5", len(lines))
	}
	for _, l := range lines {
		_, payload, ok := strings.Cut(l, ":")
		if !ok {
			t.Fatalf("line %q has no colon", l)
		}
		if _, _, err := ParseDMS(payload); err != nil {
			t.Errorf("demo line %q: %v", l, err)
		}
	}
	if !strings.HasPrefix(labels, "0.0: 14:09:21\n") {
		t.Errorf("labels start = %q", labels[:min(len(labels), 20)])
	}
}
