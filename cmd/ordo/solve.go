package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fentz26/ordo/internal/solver"
	"github.com/spf13/cobra"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run the optimizer headless for a fixed number of iterations",
	RunE:  runSolve,
}

var (
	solveTicks  int
	solveCommit bool
	solveSeed   int64
)

func init() {
	solveCmd.Flags().IntVar(&solveTicks, "ticks", 1000, "Number of iterations to run")
	solveCmd.Flags().BoolVar(&solveCommit, "commit", false, "Save the resulting schedule")
	solveCmd.Flags().Int64Var(&solveSeed, "seed", 0, "Random seed (overrides config)")
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	names, err := l.goalNames(ctx)
	if err != nil {
		return err
	}

	settings := cfg.Solver
	if solveSeed != 0 {
		settings.Seed = solveSeed
	}
	sess := solver.NewSession(l.service, l.service, settings.SessionOptions(logger))
	if err := sess.Load(ctx); err != nil {
		return err
	}
	initial := sess.Snapshot().Value

	for i := 0; i < solveTicks; i++ {
		if _, err := sess.Step(); err != nil {
			return err
		}
	}
	snap := sess.Snapshot()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GOAL\tSTART\tEND\tVALUE")
	for _, g := range snap.Goals {
		v, _ := g.Value()
		name := names[g.ID]
		if name == "" {
			name = truncateID(g.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4g\n", truncate(name, 40), formatMillis(g.Start), formatMillis(g.End()), v)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nExpected value: %.6g -> %.6g (%d/%d accepted)\n", initial, snap.Value, snap.Accepted, snap.Iteration)

	if !solveCommit {
		return sess.Cancel()
	}
	report, err := sess.Commit(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %d goals\n", len(report.Committed))
	for _, f := range report.Failed {
		fmt.Fprintf(os.Stderr, "Failed to save %s: %v\n", f.GoalID, f.Err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d goals failed to save", len(report.Failed))
	}
	return nil
}
