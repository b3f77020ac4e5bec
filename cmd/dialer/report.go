package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cart-dialer/internal/reporting"
)

func newReportCmd() *cobra.Command {
	var since, until string
	cmd := &cobra.Command{
		Use:   "report [log.csv]",
		Short: "Print a JSON summary of a call log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "call_logs.csv"
			if len(args) == 1 {
				path = args[0]
			}
			var rng reporting.TimeRange
			var err error
			if rng.From, err = parseDay(since); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if rng.To, err = parseDay(until); err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			svc := reporting.NewService(reporting.FileRepo{})
			out, err := svc.Summary(cmd.Context(), reporting.SummaryRequest{LogPath: path, Range: rng})
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only rows at or after this day (YYYY-MM-DD, UTC)")
	cmd.Flags().StringVar(&until, "until", "", "only rows before this day (YYYY-MM-DD, UTC)")
	return cmd
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
