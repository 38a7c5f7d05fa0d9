// ABOUTME: Entry point for the Resonate voice client
// ABOUTME: Parses CLI flags, loads personas and runs a live voice session
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-voice/internal/app"
	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/metrics"
	"github.com/Resonate-Protocol/resonate-voice/internal/version"
	"github.com/Resonate-Protocol/resonate-voice/pkg/voice"
)

var (
	configFile  = flag.String("config", "", "YAML config file with transport, audio and personas")
	persona     = flag.String("persona", "", "Persona to talk to (default: first in config)")
	transportFl = flag.String("transport", "", "Override transport: gemini or gateway")
	gatewayAddr = flag.String("gateway", "", "Gateway address host:port (skip mDNS)")
	name        = flag.String("name", "", "Client friendly name (default: hostname-resonate-voice)")
	volume      = flag.Int("volume", -1, "Initial playback volume 0-100 (default: from config)")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	logFile     = flag.String("log-file", "resonate-voice.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	listVoices  = flag.Bool("list-voices", false, "Print the available voices and exit")
	listPeople  = flag.Bool("list-personas", false, "Print the personas from the config and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}
	if *listVoices {
		for _, v := range voice.Voices() {
			fmt.Println(v)
		}
		return
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	settings := config.Default()
	if *configFile != "" {
		settings, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *transportFl != "" {
		settings.Transport.Kind = *transportFl
	}
	if *gatewayAddr != "" {
		settings.Transport.Kind = "gateway"
		settings.Transport.Address = *gatewayAddr
	}
	if *volume >= 0 {
		settings.Audio.Volume = *volume
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	if *listPeople {
		for _, p := range settings.Personas {
			fmt.Printf("%s (%s)\n", p.Name, p.Voice)
		}
		return
	}

	if !useTUI {
		log.Printf("Starting %s %s", version.Product, version.Version)
		log.Printf("TUI disabled - logging to stdout and %s", *logFile)
	}

	var m *metrics.Metrics
	if *metricsAddr != "" {
		m = metrics.New("")
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			log.Printf("Metrics available on %s/metrics", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	a, err := app.New(app.Config{
		Settings:    settings,
		Persona:     *persona,
		Name:        *name,
		UseTUI:      useTUI,
		AutoConnect: true,
		Metrics:     m,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	// Handle shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("Client error: %v", err)
	}

	log.Printf("Client stopped")
}
