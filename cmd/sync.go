package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/syncer"
)

// newSyncCmd groups the drive sync steps.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Move the dataset between the remote drive and the local file",
	}

	cmd.AddCommand(newSyncStepCmd("download", "Download the remote dataset over the local file",
		func(ctx context.Context, s *syncer.Syncer) (string, error) {
			return "", s.Download(ctx)
		}))
	cmd.AddCommand(newSyncStepCmd("annotate", "Stamp every row of the local dataset with the current UTC time",
		func(ctx context.Context, s *syncer.Syncer) (string, error) {
			return "", s.Annotate(ctx)
		}))
	cmd.AddCommand(newSyncStepCmd("upload", "Upload the local dataset to the remote drive",
		func(ctx context.Context, s *syncer.Syncer) (string, error) {
			return s.Upload(ctx)
		}))
	cmd.AddCommand(newSyncStepCmd("run", "Download, annotate and upload in order",
		func(ctx context.Context, s *syncer.Syncer) (string, error) {
			return s.Run(ctx)
		}))

	return cmd
}

func newSyncStepCmd(use, short string, step func(context.Context, *syncer.Syncer) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			s, err := appInstance.NewSyncer(cmd.Context())
			if err != nil {
				return fmt.Errorf("init syncer: %w", err)
			}
			id, err := step(cmd.Context(), s)
			if err != nil {
				return fmt.Errorf("sync %s: %w", use, err)
			}
			fields := []zap.Field{zap.String("step", use)}
			if id != "" {
				fields = append(fields, zap.String("file_id", id))
			}
			appInstance.GetLogger().Info("Sync command finished", fields...)
			return nil
		},
	}
}
