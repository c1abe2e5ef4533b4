package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"backupnow/internal/config"
	"backupnow/internal/domain"
	"backupnow/internal/history"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [job]",
		Short: "Show recent run records, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := ""
			if len(args) == 1 {
				job = args[0]
			}
			return runHistory(opts, job, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum rows to show")
	return cmd
}

func runHistory(opts *rootOptions, job string, limit int) error {
	log := opts.logger()
	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		return exitWith(ExitInvalidConfig, err)
	}
	if !cfg.HistoryEnabled {
		return exitWith(ExitInvalidConfig, errors.New("history is disabled (BACKUPNOW_HISTORY=false)"))
	}

	store, err := history.Open(cfg.HistoryPath, log)
	if err != nil {
		return exitWith(ExitRuntimeError, fmt.Errorf("opening history: %w", err))
	}
	defer store.Close()

	ctx := context.Background()
	var runs []history.Run
	if job != "" {
		runs, err = store.RecentForJob(ctx, job, limit)
	} else {
		runs, err = store.Recent(ctx, limit)
	}
	if err != nil {
		return exitWith(ExitRuntimeError, err)
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %-5s  %s",
			run.FinishedAt.UTC().Format(domain.RanFormat), run.Status, run.Job)
		if run.Error != "" {
			line += "  " + run.Error
		}
		fmt.Println(line)
	}
	return nil
}
