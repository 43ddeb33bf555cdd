package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/ordo/internal/audit"
	"github.com/fentz26/ordo/internal/controlplane"
	"github.com/fentz26/ordo/internal/solver"
	"github.com/fentz26/ordo/internal/store"
	"github.com/spf13/cobra"
)

var listenAddr string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the ordo daemon",
	Long:  `Starts the ordo daemon which serves the HTTP API for goals and optimize sessions.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	addr := cfg.Listen
	if listenAddr != "" {
		addr = listenAddr
	}
	logger.Info().Str("db", cfg.DBPath).Msg("starting ordo daemon")

	// Initialize store
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}

	service := controlplane.NewService(s, audit.NewPDRWriter(s), logger)
	optimizer := controlplane.NewOptimizer(service, func() solver.Options {
		return cfg.Solver.SessionOptions(logger)
	}, logger)
	server := controlplane.NewServer(service, optimizer, addr, logger)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			optimizer.Close()
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}
	if err := s.Close(); err != nil {
		logger.Error().Err(err).Msg("database close")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

// ensureDaemon starts a background daemon when none answers on apiAddr.
func ensureDaemon() error {
	if _, err := CheckHealth(); err == nil {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"daemon", "--config", configPath}
	if dbPath != "" {
		args = append(args, "--db", dbPath)
	}
	proc := exec.Command(exe, args...)
	// Detach process so it survives the CLI
	configureDaemonProc(proc)
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil

	if err := proc.Start(); err != nil {
		return err
	}

	for i := 0; i < 20; i++ { // Wait up to 5 seconds
		if _, err := CheckHealth(); err == nil {
			logger.Debug().Int("pid", proc.Process.Pid).Msg("daemon started")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return errors.New("daemon started but API not reachable at " + apiAddr)
}
