package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the settings document and exit",
		Long: `validate loads the settings document, heals structural damage the way
a check run would, and prints every job and timer problem it finds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts)
		},
	}
}

func runValidate(opts *rootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	errs, err := a.core.Start()
	if err != nil {
		return exitWith(ExitInvalidConfig, err)
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "- %v\n", e)
		}
		return exitWith(ExitRuntimeError,
			fmt.Errorf("%d problems in %s", len(errs), a.core.Document().Path()))
	}
	fmt.Printf("settings valid (%s)\n", a.core.Document().Path())
	return nil
}
