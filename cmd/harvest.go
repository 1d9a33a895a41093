package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagBudget  = "budget"
	flagDataset = "dataset"
)

// newHarvestCmd creates the 'harvest' subcommand.
func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Process pending dataset rows until done, out of budget or interrupted",
		Long: `Loads the dataset, skips rows already marked YES or NO, and classifies
the rest one at a time. All three tables are saved after every row, so the
command can be stopped at any point and run again to continue.`,
		RunE: runHarvestCommand,
	}
	cmd.Flags().Duration(flagBudget, 0, "wall-clock budget for this run (overrides harvest.budget)")
	cmd.Flags().String(flagDataset, "", "dataset file, .xlsx or .csv (overrides harvest.dataset_path)")
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	appInstance.StartMetrics(cmd.Context())

	h, err := appInstance.NewHarvester()
	if err != nil {
		return fmt.Errorf("init harvester: %w", err)
	}
	summary, err := h.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}

	appInstance.GetLogger().Info("Harvest command finished",
		zap.String("reason", string(summary.Reason)),
		zap.Int("processed", summary.Processed),
		zap.Int("remaining", summary.Pending-summary.Processed-summary.Skipped),
	)
	return nil
}
