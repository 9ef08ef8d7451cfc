package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rflorenc/profilemig/internal/config"
	"github.com/rflorenc/profilemig/internal/history"
	"github.com/rflorenc/profilemig/internal/ui"
)

func historyCmd(g *globalFlags) *cobra.Command {
	var (
		limit int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past migration runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, config.Overrides{})
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return precondition(err)
			}
			defer store.Close()

			if runID != "" {
				return printEvents(cmd, store, runID)
			}
			return printRuns(cmd, store, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the status transitions of one run")
	return cmd
}

func printRuns(cmd *cobra.Command, store *history.Store, limit int) error {
	runs, err := store.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Muted("no runs recorded"))
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.SourceHost,
			r.TargetHost,
			ui.Status(r.Status),
			r.StartedAt.Local().Format(time.DateTime),
			duration(r.StartedAt, r.FinishedAt),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"RUN", "SOURCE", "TARGET", "STATUS", "STARTED", "DURATION"}, rows))
	return nil
}

func printEvents(cmd *cobra.Command, store *history.Store, runID string) error {
	events, err := store.Events(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return precondition(fmt.Errorf("no events recorded for run %s", runID))
	}
	rows := make([][]string, 0, len(events))
	for i, e := range events {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			e.CreatedAt.Local().Format(time.DateTime),
			e.Phase,
			ui.Status(e.Status),
			e.Detail,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"#", "TIME", "PHASE", "STATUS", "DETAIL"}, rows))
	return nil
}

func duration(start time.Time, end *time.Time) string {
	if end == nil {
		return "-"
	}
	return end.Sub(start).Round(time.Second).String()
}
