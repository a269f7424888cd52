// Command moonmic-host receives streamed microphone audio from a
// moonmic client and renders it on the local playback device.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/moonmic/moonmic/internal/config"
	"github.com/moonmic/moonmic/internal/hostpipeline"
	"github.com/moonmic/moonmic/internal/stats"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to host configuration file (YAML). Missing file uses built-in defaults.")
	port := pflag.Uint16P("port", "p", 0, "Override server.port from the configuration file.")
	bindAddress := pflag.StringP("bind", "b", "", "Override server.bind_address from the configuration file.")
	verbose := pflag.BoolP("verbose", "v", false, "Enable debug-level logging.")
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "moonmic-host"})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.LoadHost(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "err", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *bindAddress != "" {
		cfg.Server.BindAddress = *bindAddress
	}

	st := &stats.Host{}
	pipeline, err := hostpipeline.New(cfg, config.NoopResolutionRequester{}, logger, st)
	if err != nil {
		logger.Fatal("failed to start host pipeline", "err", err)
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

	logger.Info("listening for client audio", "bind_address", cfg.Server.BindAddress, "port", cfg.Server.Port)
	pipeline.Run(ctx)
}
