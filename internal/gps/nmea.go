package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"
)

// LogWriter receives recorded fixes keyed by seconds since the first fix.
type LogWriter interface {
	WritePosition(t, lat, lon float64) error
	WriteLabel(t float64, label string) error
}

// SerialConfig holds configuration for opening a UART GPS.
type SerialConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// OpenSerial opens the GPS serial port. Reads block until data arrives;
// close the port to unblock a pending read.
func OpenSerial(cfg SerialConfig) (serial.Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600 // Standard NMEA default
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("gps: failed to open %s: %w", cfg.PortPath, err)
	}
	log.Printf("[gps] connected to %s at %d baud", cfg.PortPath, cfg.BaudRate)
	return port, nil
}

// Recorder turns a stream of NMEA 0183 sentences into position and
// wall-clock log records. Only valid RMC sentences produce records.
type Recorder struct {
	out     LogWriter
	start   time.Time
	started bool
	fixes   int
}

// NewRecorder creates a Recorder writing to out.
func NewRecorder(out LogWriter) *Recorder {
	return &Recorder{out: out}
}

// Fixes returns the number of records written so far.
func (r *Recorder) Fixes() int { return r.fixes }

// Run reads sentences from src until EOF, a read error, or ctx is done.
func (r *Recorder) Run(ctx context.Context, src io.Reader) error {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := r.Feed(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("gps: read: %w", err)
	}
	return nil
}

// Feed handles one raw sentence. It reports whether a record was written.
// Unparseable or irrelevant sentences are ignored; only write errors are
// returned.
func (r *Recorder) Feed(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receivers emit partial sentences
		return false, nil
	}
	if sentence.DataType() != nmea.TypeRMC {
		return false, nil
	}

	m := sentence.(nmea.RMC)
	if m.Validity != nmea.ValidRMC || !m.Time.Valid {
		return false, nil
	}

	at := fixTime(m.Date, m.Time)
	if !r.started {
		r.start = at
		r.started = true
	}
	offset := at.Sub(r.start).Seconds()
	if offset < 0 {
		// receiver clock stepped back; keep the log non-decreasing
		offset = 0
	}

	if err := r.out.WritePosition(offset, m.Latitude, m.Longitude); err != nil {
		return false, fmt.Errorf("gps: write position: %w", err)
	}
	label := fmt.Sprintf("%02d:%02d:%02d", m.Time.Hour, m.Time.Minute, m.Time.Second)
	if err := r.out.WriteLabel(offset, label); err != nil {
		return false, fmt.Errorf("gps: write label: %w", err)
	}
	r.fixes++
	return true, nil
}

// fixTime combines the RMC date and time. A missing date is treated as the
// zero day so that offsets still work within a single UTC day.
func fixTime(d nmea.Date, t nmea.Time) time.Time {
	year, month, day := 0, time.January, 1
	if d.Valid {
		year, month, day = 2000+d.YY, time.Month(d.MM), d.DD
	}
	return time.Date(year, month, day, t.Hour, t.Minute, t.Second,
		t.Millisecond*int(time.Millisecond), time.UTC)
}
