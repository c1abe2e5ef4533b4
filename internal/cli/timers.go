package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"backupnow/internal/domain"
)

func newTimersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "timers",
		Short: "List every timer with its readiness at now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimers(opts)
		},
	}
}

func runTimers(opts *rootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	if err := a.start(); err != nil {
		return err
	}

	timers := a.core.Timers().Timers()
	if len(timers) == 0 {
		fmt.Println("no timers configured")
		return nil
	}

	now := time.Now().UTC()
	fmt.Printf("now (UTC): %s\n", now.Format(domain.RanFormat))
	for _, t := range timers {
		fmt.Printf("%s:\n", t.Name)
		fmt.Printf("  time (UTC): %s\n", t.TimeOfDay)
		fmt.Printf("  span: %s\n", t.Span)
		fmt.Printf("  commands: %s\n", strings.Join(t.Commands, ", "))
		fmt.Printf("  enabled: %t\n", t.Enabled)
		if t.Ran != nil {
			fmt.Printf("  ran (UTC): %s\n", t.Ran.Format(domain.RanFormat))
		}
		if b := t.Boundary(now); !b.IsZero() {
			fmt.Printf("  boundary (UTC): %s\n", b.Format(domain.RanFormat))
		}
		fmt.Printf("  ready: %t\n", t.Ready(now))
	}
	return nil
}
