// Command moonmic-client captures the local microphone and streams it
// to a moonmic host over UDP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/moonmic/moonmic/internal/clientpipeline"
	"github.com/moonmic/moonmic/internal/config"
	"github.com/moonmic/moonmic/internal/liveness"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to client configuration file (YAML). Missing file uses built-in defaults.")
	hostAddress := pflag.StringP("host", "H", "", "Override host_address from the configuration file.")
	hostPort := pflag.Uint16P("host-port", "p", 0, "Override host_port from the configuration file.")
	deviceName := pflag.StringP("device-name", "n", "", "Override device_name from the configuration file.")
	verbose := pflag.BoolP("verbose", "v", false, "Enable debug-level logging.")
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "moonmic-client"})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "err", err)
	}
	if *hostAddress != "" {
		cfg.HostAddress = *hostAddress
	}
	if *hostPort != 0 {
		cfg.HostPort = *hostPort
	}
	if *deviceName != "" {
		cfg.DeviceName = *deviceName
	}
	if cfg.HostAddress == "" {
		logger.Fatal("host address is required (set host_address in config or pass --host)")
	}

	live, err := liveness.Listen(cfg.LivenessPort)
	if err != nil {
		logger.Fatal("failed to bind liveness socket", "err", err)
	}
	defer live.Close()

	pipeline, err := clientpipeline.New(cfg, live, logger)
	if err != nil {
		logger.Fatal("failed to start client pipeline", "err", err)
	}
	defer pipeline.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	go live.Run(ctx)

	logger.Info("streaming microphone audio", "host", cfg.HostAddress, "port", cfg.HostPort, "device_name", cfg.DeviceName)
	if err := pipeline.Run(ctx); err != nil {
		logger.Fatal("pipeline error", "err", err)
	}
}
