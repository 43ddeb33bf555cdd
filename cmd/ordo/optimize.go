package main

import (
	"context"
	"fmt"

	"github.com/fentz26/ordo/internal/audit"
	"github.com/fentz26/ordo/internal/controlplane"
	"github.com/fentz26/ordo/internal/models"
	"github.com/fentz26/ordo/internal/solver"
	"github.com/fentz26/ordo/internal/store"
	"github.com/fentz26/ordo/internal/telemetry"
	"github.com/fentz26/ordo/internal/tui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Interactively optimize the schedule of pending goals",
	Long:  `Opens the optimize screen against the local database. Start and stop the search, then commit the schedule or cancel it.`,
	RunE:  runOptimize,
}

// local is an in-process view of the goal database.
type local struct {
	store   *store.Store
	service *controlplane.Service
}

func openLocal() (*local, error) {
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return &local{
		store:   s,
		service: controlplane.NewService(s, audit.NewPDRWriter(s), logger),
	}, nil
}

func (l *local) Close() error {
	return l.store.Close()
}

// goalNames maps pending goal ids to names for display.
func (l *local) goalNames(ctx context.Context) (map[string]string, error) {
	goals, err := l.service.ListGoals(ctx, string(models.GoalStatusPending))
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(goals))
	for _, g := range goals {
		names[g.ID] = g.Name
	}
	return names, nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	names, err := l.goalNames(cmd.Context())
	if err != nil {
		return err
	}

	// keep log lines off the alternate screen
	quiet := logger.Level(zerolog.ErrorLevel)
	sess := solver.NewSession(l.service, l.service, cfg.Solver.SessionOptions(quiet))
	sess.Observe(telemetry.Observe)

	if err := tui.New(sess, names).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
