package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// settleCommands runs end-of-day settlement by hand, for a day or for one
// existing batch.
func settleCommands(app *hubInstance) *cobra.Command {
	var date, batchID string

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "batch and settle a day's transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now().UTC().AddDate(0, 0, -1)
			if date != "" {
				d, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				day = d
			}

			if err := app.setup(); err != nil {
				return err
			}
			defer app.close()

			ctx := context.Background()
			if batchID != "" {
				batch, err := app.hub.ProcessSettlementBatch(ctx, batchID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d/%d settled)\n", batch.BatchNumber, batch.Status, batch.SuccessfulTransactions, batch.TransactionCount)
				return nil
			}

			batch, err := app.hub.RunDailySettlement(ctx, day)
			if err != nil {
				return err
			}
			if batch == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to settle for %s\n", day.Format("2006-01-02"))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d/%d settled)\n", batch.BatchNumber, batch.Status, batch.SuccessfulTransactions, batch.TransactionCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "settlement day as YYYY-MM-DD (defaults to yesterday)")
	cmd.Flags().StringVar(&batchID, "batch", "", "process an existing batch instead of creating one")

	return cmd
}

// sweepCommands reschedules stuck transactions and due retries once.
func sweepCommands(app *hubInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "reschedule stuck transactions and due retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			defer app.close()

			res, err := app.hub.SweepStuckTransactions(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", res)
			return nil
		},
	}
}
