// Command presenced runs the network presence tracker as a daemon.
//
// It scans the local network for known devices (via the cable router's
// web interface or an SSH-reachable gateway) and records arrivals and
// departures in the event log.
//
// Usage:
//
//	presenced -config <file> [flags]
//
// Flags:
//
//	-config string     Configuration file path (required)
//	-log-level string  Log level override: debug, info, warn, error
//	-once              Run a single scan and exit
//
// Examples:
//
//	# Run the tracker with the configured scan interval
//	presenced -config hub.yaml
//
//	# One-shot scan, printing who is home
//	presenced -config hub.yaml -once
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adrianalin/home-assistant-series/pkg/config"
	"github.com/adrianalin/home-assistant-series/pkg/hub"
	"github.com/adrianalin/home-assistant-series/pkg/throttle"
)

type options struct {
	ConfigFile string
	LogLevel   string
	Once       bool
}

var opts options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level override: debug, info, warn, error")
	flag.BoolVar(&opts.Once, "once", false, "Run a single scan and exit")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime)

	if opts.ConfigFile == "" {
		log.Fatal("missing -config flag")
	}
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if cfg.Presence == nil {
		log.Fatal("No presence section in configuration")
	}

	logger := setupLogging(cfg.LogLevel)

	h, err := hub.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build hub: %v", err)
	}
	defer h.Close()

	tracker := h.Tracker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.Once {
		if err := tracker.Update(ctx, throttle.Force()); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		for _, d := range tracker.Devices() {
			state := "away"
			if d.Home {
				state = "home"
			}
			fmt.Printf("%-18s %-16s %s\n", d.MAC, d.Name, state)
		}
		return
	}

	interval := cfg.Presence.Interval.Std()
	log.Printf("presenced: scanning every %v", interval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- tracker.Run(ctx, interval)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("Tracker stopped: %v", err)
		}
	}

	log.Println("Shutting down...")
}

func setupLogging(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}
