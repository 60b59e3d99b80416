package track

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/shaunagostinho/trailsync/internal/gps"
	"github.com/shaunagostinho/trailsync/internal/observability"
)

// ParseOptions tunes position log parsing.
type ParseOptions struct {
	// StripSpaces removes every space from a line before parsing. OCR output
	// often splits coordinates with stray spaces.
	StripSpaces bool `yaml:"strip_spaces" json:"stripSpaces"`
}

// LoadPositions reads a position log file. Failing to open or read the file
// is an error; malformed lines are skipped.
func LoadPositions(path string, opts ParseOptions) (*Index[PositionFix], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("track: open position log: %w", err)
	}
	defer f.Close()

	ix, skipped, err := ParsePositions(f, opts)
	if err != nil {
		return nil, fmt.Errorf("track: read %s: %w", path, err)
	}
	log.Printf("[track] loaded %d fixes from %s (%d skipped)", ix.Len(), path, skipped)
	return ix, nil
}

// LoadLabels reads a wall-clock label log file.
func LoadLabels(path string) (*Index[TimeLabel], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("track: open label log: %w", err)
	}
	defer f.Close()

	ix, skipped, err := ParseLabels(f)
	if err != nil {
		return nil, fmt.Errorf("track: read %s: %w", path, err)
	}
	log.Printf("[track] loaded %d labels from %s (%d skipped)", ix.Len(), path, skipped)
	return ix, nil
}

// ParsePositions builds a fix index from "<seconds>:<DMS lat><DMS lon>"
// lines. It returns the number of malformed lines that were skipped.
func ParsePositions(r io.Reader, opts ParseOptions) (*Index[PositionFix], int, error) {
	var fixes []PositionFix
	skipped, err := scanRecords(r, func(line string) error {
		if opts.StripSpaces {
			line = strings.ReplaceAll(line, " ", "")
		}
		t, payload, err := splitRecord(line)
		if err != nil {
			return err
		}
		lat, lon, err := gps.ParseDMS(strings.TrimSpace(payload))
		if err != nil {
			return err
		}
		fixes = append(fixes, PositionFix{Time: t, Latitude: lat, Longitude: lon})
		return nil
	}, "positions")
	if err != nil {
		return nil, skipped, err
	}
	return NewIndex(fixes), skipped, nil
}

// ParseLabels builds a label index from "<seconds>:<free text>" lines. The
// text after the first colon is kept verbatim, leading and trailing
// whitespace included; only the line terminator is removed.
func ParseLabels(r io.Reader) (*Index[TimeLabel], int, error) {
	var labels []TimeLabel
	skipped, err := scanRecords(r, func(line string) error {
		t, payload, err := splitRecord(line)
		if err != nil {
			return err
		}
		labels = append(labels, TimeLabel{Time: t, Label: payload})
		return nil
	}, "labels")
	if err != nil {
		return nil, skipped, err
	}
	return NewIndex(labels), skipped, nil
}

// maxLineBytes caps a single record. Longer lines are OCR garbage or a file
// without newlines and are skipped like any other malformed line.
const maxLineBytes = 64 * 1024

// scanRecords feeds each non-blank line, without its line terminator, to
// parse. Lines that parse rejects are logged and counted, never fatal. Only
// read errors from r are returned.
func scanRecords(r io.Reader, parse func(string) error, kind string) (int, error) {
	br := bufio.NewReader(r)
	lineNo, skipped := 0, 0
	for {
		raw, readErr := br.ReadString('\n')
		if raw != "" {
			lineNo++
			line := strings.TrimRight(raw, "\r\n")
			if strings.TrimSpace(line) != "" {
				var err error
				if len(line) > maxLineBytes {
					err = fmt.Errorf("line is %d bytes, limit %d", len(line), maxLineBytes)
				} else {
					err = parse(line)
				}
				if err != nil {
					skipped++
					observability.LinesSkipped.WithLabelValues(kind).Inc()
					log.Printf("[track] skipping %s line %d %q: %v", kind, lineNo, excerpt(line), err)
				}
			}
		}
		if readErr == io.EOF {
			return skipped, nil
		}
		if readErr != nil {
			return skipped, readErr
		}
	}
}

func excerpt(line string) string {
	if len(line) <= 80 {
		return line
	}
	return line[:80] + "..."
}

// splitRecord splits "<seconds>:<payload>" on the first colon.
func splitRecord(line string) (float64, string, error) {
	timePart, payload, ok := strings.Cut(line, ":")
	if !ok {
		return 0, "", fmt.Errorf("missing ':' separator")
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(timePart), 64)
	if err != nil {
		return 0, "", fmt.Errorf("bad time %q: %w", timePart, err)
	}
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, "", fmt.Errorf("time %q is not finite", timePart)
	}
	return t, payload, nil
}

// Writer emits log records in the format the parsers read back.
type Writer struct {
	Positions io.Writer
	Labels    io.Writer
}

// WritePosition appends one position record.
func (w *Writer) WritePosition(t, lat, lon float64) error {
	_, err := fmt.Fprintf(w.Positions, "%s:%s\n", formatOffset(t), gps.FormatDMS(lat, lon))
	return err
}

// WriteLabel appends one wall-clock record.
func (w *Writer) WriteLabel(t float64, label string) error {
	_, err := fmt.Fprintf(w.Labels, "%s: %s\n", formatOffset(t), label)
	return err
}

func formatOffset(t float64) string {
	s := strconv.FormatFloat(t, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
