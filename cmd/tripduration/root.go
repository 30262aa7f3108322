package main

import (
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/tripduration/internal/logging"
)

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "tripduration",
		Short:        "Taxi trip duration prediction service",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (YAML, JSON or TOML)")
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default ./.env when present)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(newServeCmd(opts), newDeriveCmd(opts))
	return cmd
}

// logger builds a logger from the persistent flags alone, for commands that
// do not load the service configuration.
func (o *rootOptions) logger(cmd *cobra.Command) logging.Logger {
	return logging.New(logging.Config{
		Level:  o.logLevel,
		Format: o.logFormat,
		Output: cmd.ErrOrStderr(),
	})
}
