// Package cli implements the usher command: a device agent that mirrors a
// venue, rings on emergencies, and a few administrative commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/app"
	"github.com/iliyamo/childcare-checkin/internal/config"
	"github.com/iliyamo/childcare-checkin/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DeviceID string
	EnvFile  string
	Verbose  bool

	// OpenBackend connects the remote store.  Tests replace it.
	OpenBackend func(ctx context.Context, lg *zap.Logger) (*app.Backend, error)

	logger *zap.Logger
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.OpenBackend == nil {
		opts.OpenBackend = func(ctx context.Context, lg *zap.Logger) (*app.Backend, error) {
			config.LoadDotEnv(opts.EnvFile)
			return app.OpenBackend(ctx, config.Load(), config.NewRedisClient(), lg)
		}
	}

	cmd := &cobra.Command{
		Use:   "usher",
		Short: "Childcare check-in device agent",
		Long: `usher mirrors one venue's childcare room on this device and sounds an
alert whenever any device raises an emergency for a checked-in child.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.DeviceID == "" {
				return fmt.Errorf("--device must not be empty")
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			lg, err := logger.New(logger.Config{Level: level, Format: "console", Output: "stderr"})
			if err != nil {
				return err
			}
			opts.logger = lg.With(zap.String("device_id", opts.DeviceID))
			return nil
		},
	}

	host, _ := os.Hostname()
	if host == "" {
		host = "usher"
	}
	cmd.PersistentFlags().StringVar(&opts.DeviceID, "device", host, "device identifier used for the saved venue selection")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newVenuesCommand(opts))
	cmd.AddCommand(newPurgeCommand(opts))
	cmd.AddCommand(newEmergencyCommand(opts))
	return cmd
}

func (o *RootOptions) log() *zap.Logger {
	if o.logger == nil {
		return zap.NewNop()
	}
	return o.logger
}
