// ABOUTME: Entry point for the Resonate voice gateway
// ABOUTME: Parses CLI flags and config, then runs the local gateway server
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/metrics"
	"github.com/Resonate-Protocol/resonate-voice/internal/server"
)

var (
	configFile = flag.String("config", "", "YAML config file; the gateway section is used")
	port       = flag.Int("port", 0, "WebSocket server port (default: from config, 8928)")
	name       = flag.String("name", "", "Gateway friendly name (default: from config)")
	codec      = flag.String("codec", "", "Preferred reply codec: wav, pcm or opus")
	replyFile  = flag.String("reply", "", "Audio clip (WAV, MP3, FLAC) to play as every reply. Default: tone")
	logFile    = flag.String("log-file", "voice-gateway.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	settings := config.Default()
	if *configFile != "" {
		settings, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	gw := settings.Gateway
	if *port != 0 {
		gw.Port = *port
	}
	if *codec != "" {
		gw.OutputCodec = *codec
	}
	if *noMDNS {
		gw.Advertise = false
	} else if *configFile == "" {
		gw.Advertise = true
	}

	serverName := gw.Name
	if *name != "" {
		serverName = *name
	}

	log.Printf("Starting voice gateway: %s on port %d", serverName, gw.Port)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)

	srv := server.New(server.Config{
		Port:         gw.Port,
		Name:         serverName,
		EnableMDNS:   gw.Advertise,
		Debug:        *debug,
		UseTUI:       useTUI,
		OutputCodec:  gw.OutputCodec,
		VADThreshold: gw.VADThreshold,
		ReplyFile:    *replyFile,
		MetricsPath:  gw.MetricsPath,
		Metrics:      metrics.New(""),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
