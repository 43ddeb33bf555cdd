package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fentz26/ordo/internal/controlplane"
	"github.com/fentz26/ordo/internal/models"
	"github.com/spf13/cobra"
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage goals",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return ensureDaemon()
	},
}

var goalAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new goal",
	Long: `Add a goal with a utility curve. Each --point is TIME=UTILITY where TIME
is RFC3339 or epoch milliseconds, e.g.

  ordo goal add --name "Tax return" --duration 2h \
    --point 2026-04-10T00:00:00Z=100 --point 2026-04-15T00:00:00Z=0`,
	RunE: runGoalAdd,
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals",
	RunE:  runGoalList,
}

var goalShowCmd = &cobra.Command{
	Use:   "show [goal-id]",
	Short: "Show goal details and schedule history",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalShow,
}

var goalScheduleCmd = &cobra.Command{
	Use:   "schedule [goal-id]",
	Short: "Schedule a goal at a start time",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalSchedule,
}

var goalStatusCmd = &cobra.Command{
	Use:   "status [goal-id] [pending|succeeded|failed|cancelled]",
	Short: "Set a goal's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runGoalStatus,
}

var (
	goalName     string
	goalDuration time.Duration
	goalPoints   []string
	goalStart    string
	goalEnd      string
	goalStatus   string
)

func init() {
	goalCmd.AddCommand(goalAddCmd, goalListCmd, goalShowCmd, goalScheduleCmd, goalStatusCmd)

	goalAddCmd.Flags().StringVar(&goalName, "name", "", "Goal name (required)")
	goalAddCmd.Flags().DurationVar(&goalDuration, "duration", time.Hour, "Estimated duration")
	goalAddCmd.Flags().StringArrayVar(&goalPoints, "point", nil, "Utility point TIME=UTILITY (repeatable, required)")
	goalAddCmd.Flags().StringVar(&goalStart, "start", "", "Initial start time (RFC3339 or epoch ms)")
	goalAddCmd.MarkFlagRequired("name")
	goalAddCmd.MarkFlagRequired("point")

	goalListCmd.Flags().StringVar(&goalStatus, "status", "", "Filter by status (pending, succeeded, failed, cancelled)")

	goalScheduleCmd.Flags().StringVar(&goalStart, "start", "", "Start time (RFC3339 or epoch ms, required)")
	goalScheduleCmd.Flags().StringVar(&goalEnd, "end", "", "End time (defaults to start + duration)")
	goalScheduleCmd.MarkFlagRequired("start")
}

func runGoalAdd(cmd *cobra.Command, args []string) error {
	times, utils, err := parsePoints(goalPoints)
	if err != nil {
		return err
	}

	req := controlplane.NewGoalParams{
		Name:       goalName,
		Duration:   goalDuration.Milliseconds(),
		StartTimes: times,
		Utils:      utils,
	}
	if goalStart != "" {
		start, err := parseTime(goalStart)
		if err != nil {
			return err
		}
		req.Start = &start
	}

	var goal models.Goal
	if err := apiPost("/goals", req, &goal); err != nil {
		return err
	}

	fmt.Printf("Created goal: %s\n", goal.ID)
	return nil
}

func runGoalList(cmd *cobra.Command, args []string) error {
	url := "/goals"
	if goalStatus != "" {
		url += "?status=" + goalStatus
	}

	var goals []models.Goal
	if err := apiGet(url, &goals); err != nil {
		return err
	}
	if len(goals) == 0 {
		fmt.Println("No goals found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tDURATION")
	for _, g := range goals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", truncateID(g.ID), truncate(g.Name, 40), g.Status, time.Duration(g.DurationEstimate)*time.Millisecond)
	}
	return w.Flush()
}

func runGoalShow(cmd *cobra.Command, args []string) error {
	var goal controlplane.GoalDetail
	if err := apiGet("/goals/"+args[0], &goal); err != nil {
		return err
	}
	var events []models.GoalEvent
	if err := apiGet("/goals/"+args[0]+"/events", &events); err != nil {
		return err
	}

	fmt.Printf("ID:       %s\n", goal.ID)
	fmt.Printf("Name:     %s\n", goal.Name)
	fmt.Printf("Status:   %s\n", goal.Status)
	fmt.Printf("Duration: %s\n", time.Duration(goal.DurationEstimate)*time.Millisecond)
	if goal.Current != nil {
		fmt.Printf("Schedule: %s - %s\n", formatMillis(goal.Current.StartTime), formatMillis(goal.Current.EndTime))
	} else {
		fmt.Println("Schedule: (none)")
	}

	if tuf := goal.UtilityFunction; tuf != nil {
		fmt.Println("\nUtility:")
		for i := range tuf.StartTimes {
			fmt.Printf("  %s  %g\n", formatMillis(tuf.StartTimes[i]), tuf.Utils[i])
		}
	}

	if len(events) > 0 {
		fmt.Println("\nHistory:")
		for _, e := range events {
			active := ""
			if !e.Active {
				active = " (inactive)"
			}
			fmt.Printf("  %s - %s%s\n", formatMillis(e.StartTime), formatMillis(e.EndTime), active)
		}
	}
	return nil
}

func runGoalSchedule(cmd *cobra.Command, args []string) error {
	start, err := parseTime(goalStart)
	if err != nil {
		return err
	}
	body := map[string]int64{"start_time": start}
	if goalEnd != "" {
		end, err := parseTime(goalEnd)
		if err != nil {
			return err
		}
		body["end_time"] = end
	}

	var event models.GoalEvent
	if err := apiPost("/goals/"+args[0]+"/events", body, &event); err != nil {
		return err
	}
	fmt.Printf("Scheduled %s: %s - %s\n", args[0], formatMillis(event.StartTime), formatMillis(event.EndTime))
	return nil
}

func runGoalStatus(cmd *cobra.Command, args []string) error {
	if err := apiPost("/goals/"+args[0]+"/status", map[string]string{"status": args[1]}, nil); err != nil {
		return err
	}
	fmt.Printf("Goal %s is now %s\n", args[0], args[1])
	return nil
}

// --- Helpers ---

// parseTime accepts RFC3339 or epoch milliseconds.
func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want RFC3339 or epoch ms", s)
	}
	return t.UnixMilli(), nil
}

// parsePoints splits TIME=UTILITY pairs into parallel series.
func parsePoints(points []string) ([]int64, []float64, error) {
	times := make([]int64, 0, len(points))
	utils := make([]float64, 0, len(points))
	for _, p := range points {
		i := strings.LastIndex(p, "=")
		if i <= 0 {
			return nil, nil, fmt.Errorf("invalid point %q: want TIME=UTILITY", p)
		}
		t, err := parseTime(p[:i])
		if err != nil {
			return nil, nil, err
		}
		u, err := strconv.ParseFloat(strings.TrimSpace(p[i+1:]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid utility in %q: %w", p, err)
		}
		times = append(times, t)
		utils = append(utils, u)
	}
	return times, utils, nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
