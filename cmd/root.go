// Package cmd defines the CLI commands for the contact-harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/app"
	"github.com/JakeFAU/contact-harvester/internal/config"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/logging"
	"github.com/JakeFAU/contact-harvester/internal/syncer"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services the commands use.
type App interface {
	Close()
	GetLogger() *zap.Logger
	StartMetrics(ctx context.Context)
	NewHarvester() (*harvest.Harvester, error)
	NewSyncer(ctx context.Context) (*syncer.Syncer, error)
}

// newApp is the application factory. It is a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "contact-harvester",
		Short: "Harvests role-based contact emails from a spreadsheet of websites.",
		Long: `contact-harvester walks the websites listed in a spreadsheet, scrapes
role-based contact addresses (info@, sales@, ...) from each site and its
same-site subpages, and records per-row progress so an interrupted or
time-boxed run resumes where it stopped. The sync commands move the
spreadsheet to and from a cloud drive.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Build the app after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, cfgFile)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newSyncCmd())

	return cmd
}

// loadConfig reads the config file and applies flag overrides of the
// running subcommand.
func loadConfig(cmd *cobra.Command, path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Lookup(flagBudget) != nil && flags.Changed(flagBudget) {
		if cfg.Harvest.Budget, err = flags.GetDuration(flagBudget); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Lookup(flagDataset) != nil && flags.Changed(flagDataset) {
		if cfg.Harvest.DatasetPath, err = flags.GetString(flagDataset); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI with SIGINT/SIGTERM cancelling the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "contact-harvester: %v\n", err)
		os.Exit(1)
	}
}
