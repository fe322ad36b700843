package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hed1ad/fieldtrust/internal/cli"
)

func (a *app) latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <dataset>",
		Short: "Show the newest stored score of every field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(s)

			records, err := s.Latest(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get latest scores: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("Latest scores: "+args[0]))
			return cli.RenderRecords(cmd.OutOrStdout(), records)
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var (
		field string
		days  int
	)

	cmd := &cobra.Command{
		Use:   "history <dataset>",
		Short: "Show stored scores within a trailing window, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !cmd.Flags().Changed("days") {
				days = a.cfg.Store.HistoryDays
			}

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(s)

			records, err := s.History(ctx, args[0], field, days)
			if err != nil {
				return fmt.Errorf("failed to get score history: %w", err)
			}

			title := fmt.Sprintf("Score history: %s (%d days)", args[0], days)
			if field != "" {
				title = fmt.Sprintf("Score history: %s.%s (%d days)", args[0], field, days)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle(title))
			return cli.RenderRecords(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&field, "field", "", "restrict to one field")
	cmd.Flags().IntVar(&days, "days", 0, "window in days (default: store.history_days)")
	return cmd
}
