// Package cli implements the backupnow command tree: the one-shot
// check (also what a bare invocation runs), the long-running daemon,
// and the inspection commands around them.
package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Exit codes shared by every command.
const (
	ExitSuccess       = 0
	ExitRuntimeError  = 1
	ExitInvalidConfig = 2
)

// exitError carries a specific process exit code up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// rootOptions holds the persistent verbosity flags every command sees.
type rootOptions struct {
	verbose bool
	debug   bool
}

// logger builds the command's logger from the verbosity flags. The
// default level is warn so routine cycles stay quiet under cron.
func (o *rootOptions) logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if o.verbose {
		level = zerolog.InfoLevel
	}
	if o.debug {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	opts := &rootOptions{}
	root := newRootCmd(opts)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "backupnow: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	var backupName string
	root := &cobra.Command{
		Use:   "backupnow",
		Short: "Scheduled backup runner",
		Long: `backupnow checks named timers against their recurrence rules and runs
the backup jobs of every timer that is due. A bare invocation runs one
check cycle, the shape cron and systemd timer units expect; the daemon
subcommand keeps checking on an interval.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, backupName)
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable info output")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "V", false, "enable info and debug output")
	root.Flags().StringVarP(&backupName, "backup-name", "n", "", "only dispatch the ready timer with this name")

	root.AddCommand(
		newCheckCmd(opts),
		newDaemonCmd(opts),
		newValidateCmd(opts),
		newTimersCmd(opts),
		newHistoryCmd(opts),
		newTargetCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}
