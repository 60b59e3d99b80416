package playback

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"sync/atomic"
	"time"
)

const (
	reqTimePos = 1
	reqPause   = 2
)

// MPVConfig holds configuration for the mpv IPC clock.
type MPVConfig struct {
	SocketPath string `yaml:"socket_path" json:"socketPath"` // mpv --input-ipc-server path
	PollMs     int    `yaml:"poll_ms" json:"pollMs"`
}

// MPVClock follows an external mpv player over its JSON IPC socket. A
// background goroutine polls the player; Position reads a cached value.
type MPVClock struct {
	socketPath string
	interval   time.Duration
	dial       func(ctx context.Context) (net.Conn, error)

	pos    atomic.Uint64 // math.Float64bits of time-pos
	paused atomic.Bool
	cmds   chan []any
}

// NewMPVClock creates an mpv clock. Call Run to start following the player.
func NewMPVClock(cfg MPVConfig) *MPVClock {
	interval := time.Duration(cfg.PollMs) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	m := &MPVClock{
		socketPath: cfg.SocketPath,
		interval:   interval,
		cmds:       make(chan []any, 8),
	}
	m.dial = func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", m.socketPath)
	}
	m.paused.Store(true)
	return m
}

func (m *MPVClock) Position() float64 {
	return math.Float64frombits(m.pos.Load())
}

func (m *MPVClock) Play() { m.send("set_property", "pause", false) }

func (m *MPVClock) Pause() { m.send("set_property", "pause", true) }

func (m *MPVClock) Seek(seconds float64) { m.send("seek", seconds, "absolute") }

func (m *MPVClock) Playing() bool { return !m.paused.Load() }

// send queues a command for the IPC goroutine without blocking.
func (m *MPVClock) send(args ...any) {
	select {
	case m.cmds <- args:
	default:
		log.Printf("[mpv] command queue full, dropping %v", args[0])
	}
}

// Run connects to the player and keeps the cached offset fresh until ctx is
// cancelled, reconnecting with exponential backoff when the socket drops.
func (m *MPVClock) Run(ctx context.Context) error {
	delay := 1 * time.Second
	maxDelay := 30 * time.Second

	for {
		err := m.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[mpv] %v (retry in %v)", err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

type mpvReply struct {
	Event     string          `json:"event"`
	RequestID int             `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
}

// session runs one connection until it fails or ctx is done.
func (m *MPVClock) session(ctx context.Context) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("mpv: connect %s: %w", m.socketPath, err)
	}
	defer conn.Close()
	log.Printf("[mpv] connected to %s", m.socketPath)

	readErr := make(chan error, 1)
	go func() {
		readErr <- m.readLoop(conn)
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	enc := json.NewEncoder(conn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("mpv: read: %w", err)
		case args := <-m.cmds:
			if err := enc.Encode(map[string]any{"command": args}); err != nil {
				return fmt.Errorf("mpv: write: %w", err)
			}
		case <-ticker.C:
			if err := enc.Encode(map[string]any{"command": []any{"get_property", "time-pos"}, "request_id": reqTimePos}); err != nil {
				return fmt.Errorf("mpv: write: %w", err)
			}
			if err := enc.Encode(map[string]any{"command": []any{"get_property", "pause"}, "request_id": reqPause}); err != nil {
				return fmt.Errorf("mpv: write: %w", err)
			}
		}
	}
}

func (m *MPVClock) readLoop(conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var r mpvReply
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if r.Event != "" || r.Error != "success" {
			continue
		}
		switch r.RequestID {
		case reqTimePos:
			var pos *float64
			if err := json.Unmarshal(r.Data, &pos); err == nil && pos != nil {
				m.pos.Store(math.Float64bits(*pos))
			}
		case reqPause:
			var paused bool
			if err := json.Unmarshal(r.Data, &paused); err == nil {
				m.paused.Store(paused)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("connection closed")
}
