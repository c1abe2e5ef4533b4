package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"backupnow/internal/runner"
)

func newTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "target <dir>",
		Short: "Mark a directory tree as a backup target",
		Long: `target plants the marker file that authorizes backups into a directory
tree. The runner refuses destinations without the marker, so an
unmounted drive is never mistaken for a backup volume.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if err := runner.WriteMarker(dir); err != nil {
				return exitWith(ExitRuntimeError, fmt.Errorf("marking %s: %w", dir, err))
			}
			fmt.Printf("marked %s as a backup target (%s)\n", dir, runner.MarkerName)
			return nil
		},
	}
}
