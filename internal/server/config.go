package server

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/trailsync/internal/gps"
	"github.com/shaunagostinho/trailsync/internal/logger"
	"github.com/shaunagostinho/trailsync/internal/playback"
	"github.com/shaunagostinho/trailsync/internal/publish"
	"github.com/shaunagostinho/trailsync/internal/track"
)

// Config holds all session configuration.
type Config struct {
	mu sync.RWMutex

	// Input logs
	Logs LogsConfig `yaml:"logs" json:"logs"`

	// Playback clock source
	Playback PlaybackConfig `yaml:"playback" json:"playback"`

	// Sync loop
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Broadcast server
	Server ServerConfig `yaml:"server" json:"server"`

	// CSV recording of display state
	Recording logger.Config `yaml:"recording" json:"recording"`

	// Optional mirrors of the position stream
	Mirrors MirrorsConfig `yaml:"mirrors" json:"mirrors"`

	// NMEA capture (trailrec)
	Capture gps.SerialConfig `yaml:"capture" json:"capture"`

	path string // file path the config was loaded from
}

type LogsConfig struct {
	Positions string             `yaml:"positions" json:"positions"` // e.g. ride_roi1_output.txt
	Labels    string             `yaml:"labels" json:"labels"`       // e.g. ride_roi2_output.txt
	Parse     track.ParseOptions `yaml:"parse" json:"parse"`
}

type PlaybackConfig struct {
	Type     string             `yaml:"type" json:"type"` // "sim" or "mpv"
	Autoplay bool               `yaml:"autoplay" json:"autoplay"`
	Sim      playback.SimConfig `yaml:"sim" json:"sim"`
	MPV      playback.MPVConfig `yaml:"mpv" json:"mpv"`
}

type SyncConfig struct {
	IntervalMs int `yaml:"interval_ms" json:"intervalMs"` // 200 = 5 Hz
}

type ServerConfig struct {
	ListenAddr   string `yaml:"listen_addr" json:"listenAddr"`
	BridgeBuffer int    `yaml:"bridge_buffer" json:"bridgeBuffer"` // Queued events before drop
	ClientBuffer int    `yaml:"client_buffer" json:"clientBuffer"` // Per-client send queue
	OpenBrowser  bool   `yaml:"open_browser" json:"openBrowser"`   // Launch the live map
	Metrics      bool   `yaml:"metrics" json:"metrics"`            // Serve /metrics
}

type MirrorsConfig struct {
	MQTT  publish.MQTTConfig  `yaml:"mqtt" json:"mqtt"`
	Redis publish.RedisConfig `yaml:"redis" json:"redis"`
	Kafka publish.KafkaConfig `yaml:"kafka" json:"kafka"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logs: LogsConfig{
			Positions: "positions.txt",
			Labels:    "times.txt",
		},
		Playback: PlaybackConfig{
			Type:     "sim",
			Autoplay: true,
			Sim:      playback.SimConfig{Rate: 1},
			MPV: playback.MPVConfig{
				SocketPath: "/tmp/mpvsocket",
				PollMs:     100,
			},
		},
		Sync: SyncConfig{
			IntervalMs: 200,
		},
		Server: ServerConfig{
			ListenAddr:   "localhost:8765",
			BridgeBuffer: 64,
			ClientBuffer: 16,
			OpenBrowser:  false,
			Metrics:      true,
		},
		Recording: logger.Config{
			Enabled:    false,
			Path:       "recordings",
			IntervalMs: 200,
		},
		Mirrors: MirrorsConfig{
			MQTT: publish.MQTTConfig{
				Broker:   "tcp://localhost:1883",
				ClientID: "trailsync",
				Topic:    "trailsync/position",
				Retained: true,
			},
			Redis: publish.RedisConfig{
				Addr:       "localhost:6379",
				Key:        "trailsync:position",
				TTLSeconds: 600,
			},
			Kafka: publish.KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "trailsync.positions",
				Key:     "trailsync",
			},
		},
		Capture: gps.SerialConfig{
			PortPath: "/dev/ttyGPS",
			BaudRate: 9600,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: POSITION_LOG, LABEL_LOG, PLAYBACK_TYPE, MPV_SOCKET,
// SYNC_INTERVAL_MS, LISTEN_ADDR, OPEN_BROWSER, LOG_ENABLED, LOG_PATH,
// LOG_INTERVAL_MS, MQTT_BROKER, REDIS_ADDR, KAFKA_BROKERS, GPS_PORT, GPS_BAUD
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("POSITION_LOG"); v != "" {
		c.Logs.Positions = v
	}
	if v := os.Getenv("LABEL_LOG"); v != "" {
		c.Logs.Labels = v
	}
	if v := os.Getenv("PLAYBACK_TYPE"); v != "" {
		c.Playback.Type = v
	}
	if v := os.Getenv("MPV_SOCKET"); v != "" {
		c.Playback.MPV.SocketPath = v
	}
	if v := os.Getenv("SYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.IntervalMs = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("OPEN_BROWSER"); v != "" {
		c.Server.OpenBrowser = isTrue(v)
	}
	// Recording
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Recording.Enabled = isTrue(v)
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Recording.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Recording.IntervalMs = n
		}
	}
	// Mirrors are enabled by naming their endpoint
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Mirrors.MQTT.Broker = v
		c.Mirrors.MQTT.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Mirrors.Redis.Addr = v
		c.Mirrors.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Mirrors.Kafka.Brokers = strings.Split(v, ",")
		c.Mirrors.Kafka.Enabled = true
	}
	// Capture
	if v := os.Getenv("GPS_PORT"); v != "" {
		c.Capture.PortPath = v
	}
	if v := os.Getenv("GPS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Capture.BaudRate = n
		}
	}
}

func isTrue(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}
