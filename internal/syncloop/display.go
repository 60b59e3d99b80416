package syncloop

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Text shown when a log has nothing in effect yet.
const (
	UnknownTime     = "--:--:--"
	UnknownPosition = "--, --"
)

// State is the local display state for one tick.
type State struct {
	Offset    float64 `json:"offset"` // Playback seconds
	Label     string  `json:"label"`  // Wall-clock text, verbatim from the log
	HasLabel  bool    `json:"hasLabel"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	HasFix    bool    `json:"hasFix"`
}

// TimeText is the wall-clock line as the player window shows it.
func (s State) TimeText() string {
	if !s.HasLabel {
		return "Current Time: " + UnknownTime
	}
	return "Current Time: " + strings.TrimSpace(s.Label)
}

// PositionText is the coordinate line as the player window shows it.
func (s State) PositionText() string {
	if !s.HasFix {
		return "Current GPS: " + UnknownPosition
	}
	return fmt.Sprintf("Current GPS: %.6f, %.6f", s.Latitude, s.Longitude)
}

// Display receives the state once per tick. Show runs on the sync loop's
// goroutine and must be quick.
type Display interface {
	Show(State)
}

// Displays shows the state on several sinks in order.
type Displays []Display

func (d Displays) Show(st State) {
	for _, disp := range d {
		disp.Show(st)
	}
}

// ConsoleDisplay writes the two display lines whenever either changes.
type ConsoleDisplay struct {
	w    io.Writer
	last string
}

// NewConsoleDisplay creates a console display writing to w.
func NewConsoleDisplay(w io.Writer) *ConsoleDisplay {
	return &ConsoleDisplay{w: w}
}

func (c *ConsoleDisplay) Show(st State) {
	line := st.TimeText() + " | " + st.PositionText()
	if line == c.last {
		return
	}
	c.last = line
	fmt.Fprintln(c.w, line)
}

// Snapshot keeps the most recent state for readers on other goroutines.
type Snapshot struct {
	mu    sync.RWMutex
	state State
	ok    bool
}

func (s *Snapshot) Show(st State) {
	s.mu.Lock()
	s.state = st
	s.ok = true
	s.mu.Unlock()
}

// Latest returns the last state shown, or false before the first tick.
func (s *Snapshot) Latest() (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.ok
}
