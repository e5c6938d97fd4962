package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fleetwatch/fleetwatch/internal/conf"
	"github.com/fleetwatch/fleetwatch/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "fleetwatch",
		Short:         "Alert condition cache for fleet telemetry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(newServeCommand(opts), newCacheCommand(opts), newVersionCommand())
	return cmd
}

// load reads the settings and builds the console logger.
func (o *rootOptions) load() (*conf.Settings, logger.Logger, error) {
	settings, err := conf.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := settings.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	return settings, logger.NewConsoleLogger(logger.ParseLevel(level)), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) error {
	_, err := fmt.Fprintf(w, "fleetwatch %s\n", version)
	return err
}
