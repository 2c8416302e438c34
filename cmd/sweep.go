package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run every lifecycle sweep once and exit",
	Long:  `Run the expiry and completion sweeps a single time. Meant for cron or manual maintenance.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := runWorker(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			if err := deps.Scheduler.RunOnce(ctx); err != nil {
				return err
			}
			deps.Logger.Info("sweep finished")
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Sweep error: %v\n", err)
			os.Exit(1)
		}
	},
}
