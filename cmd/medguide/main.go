package main

// Package main provides the main entry point for the Medguide server and CLI.
import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/internal/app"
	"github.com/Denis-Chistyakov/Medguide/internal/gateway/cli"
	"github.com/Denis-Chistyakov/Medguide/internal/gateway/http"
	"github.com/Denis-Chistyakov/Medguide/internal/version"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

func main() {
	// Setup logging until the config is read
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// No subcommand means server mode
	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"server"}
	}

	root := cli.NewRootCmd(runServer)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// runServer starts the monitor and the HTTP API and blocks until a shutdown signal
func runServer(ctx context.Context, config *types.Config) error {
	log.Info().Msg("Starting " + version.String())

	a, err := app.New(ctx, config)
	if err != nil {
		return err
	}

	// Start status monitor
	var monitor http.StatusMonitor
	if a.Monitor != nil {
		if err := a.Monitor.Start(ctx); err != nil {
			return err
		}
		monitor = a.Monitor
	}

	// Start HTTP API server
	httpServer := http.NewServer(a.Orchestrator, monitor, a.Collector, &config.Server)
	if err := httpServer.Start(); err != nil {
		return err
	}

	log.Info().Msg("Medguide server is running")
	log.Info().Msgf("HTTP API: http://%s:%d", config.Server.Host, config.Server.Port)
	log.Info().Msg("Press Ctrl+C to stop")

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for signal
	<-sigChan
	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop HTTP server
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Stop monitor and close the cache
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Medguide server stopped")
	return nil
}
