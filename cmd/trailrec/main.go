package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaunagostinho/trailsync/internal/gps"
	"github.com/shaunagostinho/trailsync/internal/server"
	"github.com/shaunagostinho/trailsync/internal/track"
)

func main() {
	configPath := flag.String("config", "/etc/trailsync/config.yaml", "Path to config file")
	port := flag.String("port", "", "Override GPS serial port (e.g. /dev/ttyUSB0)")
	baud := flag.Int("baud", 0, "Override GPS baud rate")
	positionsPath := flag.String("positions", "", "Override position log path")
	labelsPath := flag.String("labels", "", "Override wall-clock log path")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] trailrec starting")

	cfg := server.LoadConfig(*configPath)
	if *port != "" {
		cfg.Capture.PortPath = *port
	}
	if *baud != 0 {
		cfg.Capture.BaudRate = *baud
	}
	if *positionsPath != "" {
		cfg.Logs.Positions = *positionsPath
	}
	if *labelsPath != "" {
		cfg.Logs.Labels = *labelsPath
	}

	posFile, err := os.Create(cfg.Logs.Positions)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer posFile.Close()
	lblFile, err := os.Create(cfg.Logs.Labels)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer lblFile.Close()

	posBuf := bufio.NewWriter(posFile)
	lblBuf := bufio.NewWriter(lblFile)
	defer posBuf.Flush()
	defer lblBuf.Flush()

	sp, err := gps.OpenSerial(cfg.Capture)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Closing the port unblocks the pending read
	go func() {
		<-ctx.Done()
		sp.Close()
	}()

	rec := gps.NewRecorder(&track.Writer{Positions: posBuf, Labels: lblBuf})
	log.Printf("[main] recording to %s and %s", cfg.Logs.Positions, cfg.Logs.Labels)

	err = rec.Run(ctx, sp)
	if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		log.Printf("[main] capture stopped: %v", err)
	}
	log.Printf("[main] recorded %d fixes", rec.Fixes())
}
