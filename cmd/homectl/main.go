// Command homectl drives the configured smart-home devices.
//
// It loads a YAML configuration describing lights (Flux/Magic Home LED
// strips, Xiaomi Philips bulbs), an MPD media player and a presence
// tracker, then either polls them in the background or offers an
// interactive shell.
//
// Usage:
//
//	homectl -config <file> [flags]
//
// Flags:
//
//	-config string     Configuration file path (required)
//	-log-level string  Log level override: debug, info, warn, error
//	-interactive       Enable interactive command mode
//	-poll duration     Background poll interval (default 30s)
//
// Examples:
//
//	# Start with interactive mode
//	homectl -config hub.yaml -interactive
//
//	# Run headless, polling devices and logging events
//	homectl -config hub.yaml -log-level debug
//
// Interactive Commands:
//
//	lights                    - List lights with their state
//	on/off <light>            - Switch a light
//	brightness <light> <val>  - Set brightness (0-255)
//	rgb <light> <r> <g> <b>   - Set color (fluxled lights)
//	effect <light> <name>     - Start an effect (fluxled lights)
//	temp <light> <mireds>     - Set color temperature (miio lights)
//	player [subcommand]       - Control the media player
//	who                       - Show presence tracker state
//	scan                      - Discover devices on the network
//	update                    - Force-refresh every device
//	quit                      - Exit
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrianalin/home-assistant-series/cmd/homectl/interactive"
	"github.com/adrianalin/home-assistant-series/pkg/config"
	"github.com/adrianalin/home-assistant-series/pkg/hub"
)

type options struct {
	ConfigFile  string
	LogLevel    string
	Interactive bool
	Poll        time.Duration
}

var opts options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level override: debug, info, warn, error")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Enable interactive command mode")
	flag.DurationVar(&opts.Poll, "poll", 30*time.Second, "Background poll interval")
}

func main() {
	flag.Parse()

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

	logger := setupLogging(cfg.LogLevel)

	h, err := hub.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build hub: %v", err)
	}
	defer h.Close()

	log.Printf("homectl: %d light(s), player: %v, presence: %v",
		len(h.Lights()), h.Player() != nil, h.Tracker() != nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.Interactive {
		shell, err := interactive.New(h, cfg.EventLog)
		if err != nil {
			log.Fatalf("Failed to create shell: %v", err)
		}
		// Route log output through readline to avoid clobbering the
		// prompt.
		log.SetOutput(shell.Stdout())
		go shell.Run(ctx, cancel)
	} else {
		go func() {
			if err := h.Run(ctx, opts.Poll); err != nil && ctx.Err() == nil {
				log.Printf("Poll loop stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
}

func setupLogging(level string) *slog.Logger {
	log.SetFlags(log.Ltime)

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
