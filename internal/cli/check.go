package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var backupName string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one check cycle and exit",
		Long: `check loads the settings document, dispatches the jobs of every timer
that is due, marks those timers ran, and saves the document. A cycle
where nothing was due also exits 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, backupName)
		},
	}
	cmd.Flags().StringVarP(&backupName, "backup-name", "n", "", "only dispatch the ready timer with this name")
	return cmd
}

func runCheck(opts *rootOptions, backupName string) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	if err := a.openHistory(); err != nil {
		return err
	}
	defer a.close()

	if err := a.start(); err != nil {
		return err
	}

	now := time.Now().UTC()
	report, err := a.core.RunCycle(context.Background(), now, backupName, a.cfg.Threaded)
	if err != nil {
		return exitWith(ExitRuntimeError, err)
	}
	if report.Ready == 0 {
		a.log.Info().Msg("no timers were ready")
	}
	return nil
}
