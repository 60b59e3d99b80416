package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shaunagostinho/trailsync/internal/gps"
	"github.com/shaunagostinho/trailsync/internal/logger"
	"github.com/shaunagostinho/trailsync/internal/playback"
	"github.com/shaunagostinho/trailsync/internal/publish"
	"github.com/shaunagostinho/trailsync/internal/server"
	"github.com/shaunagostinho/trailsync/internal/syncloop"
	"github.com/shaunagostinho/trailsync/internal/track"
	"github.com/shaunagostinho/trailsync/web"
)

func main() {
	configPath := flag.String("config", "/etc/trailsync/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated track and playback clock")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8765)")
	positionsPath := flag.String("positions", "", "Override position log path")
	labelsPath := flag.String("labels", "", "Override wall-clock log path")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] trailsync starting")

	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.Playback.Type = "sim"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *positionsPath != "" {
		cfg.Logs.Positions = *positionsPath
	}
	if *labelsPath != "" {
		cfg.Logs.Labels = *labelsPath
	}

	// Both logs must load before anything else starts
	fixes, labels, err := loadLogs(cfg, *demo)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	first, last := fixes.Span()
	log.Printf("[main] %d fixes (%.1fs to %.1fs), %d labels", fixes.Len(), first, last, labels.Len())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Playback clock
	var clock playback.Clock
	switch cfg.Playback.Type {
	case "mpv":
		mpv := playback.NewMPVClock(cfg.Playback.MPV)
		go func() {
			if err := mpv.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[mpv] exited: %v", err)
			}
		}()
		clock = mpv
	default:
		simCfg := cfg.Playback.Sim
		if simCfg.Duration == 0 {
			simCfg.Duration = last
		}
		clock = playback.NewSimClock(simCfg)
	}

	hub := server.NewHub(cfg.Server.BridgeBuffer, cfg.Server.ClientBuffer)
	snapshot := &syncloop.Snapshot{}
	srv := server.New(cfg, hub, clock, snapshot, web.FS)

	// A port that cannot be bound ends the session before playback starts
	if err := srv.Listen(); err != nil {
		log.Fatalf("[main] %v", err)
	}

	displays := syncloop.Displays{syncloop.NewConsoleDisplay(os.Stdout), snapshot}
	if cfg.Recording.Enabled {
		rec := logger.New(cfg.Recording)
		defer rec.Close()
		displays = append(displays, rec)
	}

	outs := syncloop.Submitters{hub}
	mirrors := startMirrors(ctx, cfg)
	for _, m := range mirrors {
		outs = append(outs, m)
	}
	mirrorsDone := runMirrors(ctx, mirrors)

	loop := syncloop.New(syncloop.Config{
		Clock:    clock,
		Fixes:    fixes,
		Labels:   labels,
		Display:  displays,
		Out:      outs,
		Interval: time.Duration(cfg.Sync.IntervalMs) * time.Millisecond,
	})
	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	if cfg.Playback.Autoplay {
		clock.Play()
	}

	if cfg.Server.OpenBrowser {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			if err := server.OpenBrowser(srv.MapURL()); err != nil {
				log.Printf("[main] could not open browser: %v", err)
			}
		}()
	}

	log.Printf("[main] live map at %s", srv.MapURL())
	if err := srv.Serve(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
		stop()
	}
	<-loopDone
	// Mirrors flush and disconnect on the way out
	<-mirrorsDone
	log.Println("[main] stopped")
}

// loadLogs reads both logs from disk, or generates them in demo mode.
func loadLogs(cfg *server.Config, demo bool) (*track.Index[track.PositionFix], *track.Index[track.TimeLabel], error) {
	if demo {
		posText, lblText := gps.DemoTrack(600, 0.5)
		fixes, _, err := track.ParsePositions(strings.NewReader(posText), cfg.Logs.Parse)
		if err != nil {
			return nil, nil, err
		}
		labels, _, err := track.ParseLabels(strings.NewReader(lblText))
		if err != nil {
			return nil, nil, err
		}
		return fixes, labels, nil
	}

	fixes, err := track.LoadPositions(cfg.Logs.Positions, cfg.Logs.Parse)
	if err != nil {
		return nil, nil, err
	}
	labels, err := track.LoadLabels(cfg.Logs.Labels)
	if err != nil {
		return nil, nil, err
	}
	return fixes, labels, nil
}

// startMirrors connects every enabled mirror. A mirror that cannot connect
// is logged and skipped; the websocket channel works regardless.
func startMirrors(ctx context.Context, cfg *server.Config) []*publish.Mirror {
	var mirrors []*publish.Mirror

	if c := cfg.Mirrors.MQTT; c.Enabled {
		if pub, err := publish.NewMQTT(c); err != nil {
			log.Printf("[main] mqtt mirror disabled: %v", err)
		} else {
			mirrors = append(mirrors, publish.NewMirror("mqtt", pub, 0))
		}
	}
	if c := cfg.Mirrors.Redis; c.Enabled {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		pub, err := publish.NewRedis(pingCtx, c)
		cancel()
		if err != nil {
			log.Printf("[main] redis mirror disabled: %v", err)
		} else {
			mirrors = append(mirrors, publish.NewMirror("redis", pub, 0))
		}
	}
	if c := cfg.Mirrors.Kafka; c.Enabled {
		mirrors = append(mirrors, publish.NewMirror("kafka", publish.NewKafka(c), 0))
	}
	return mirrors
}

// runMirrors starts every mirror. The returned channel is closed once all
// of them have stopped and closed their publishers.
func runMirrors(ctx context.Context, mirrors []*publish.Mirror) <-chan struct{} {
	var wg sync.WaitGroup
	for _, m := range mirrors {
		wg.Add(1)
		go func(m *publish.Mirror) {
			defer wg.Done()
			m.Run(ctx)
		}(m)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
