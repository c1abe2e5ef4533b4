package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"backupnow/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as JSON (home paths masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Load().MaskedJSON()
			if err != nil {
				return exitWith(ExitRuntimeError, fmt.Errorf("marshaling config: %w", err))
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
