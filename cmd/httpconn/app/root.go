// Package app implements the httpconn command line.
package app

import (
	"github.com/spf13/cobra"

	"github.com/nczempin/httpconn/config"
	"github.com/nczempin/httpconn/logger"
)

const (
	cliName        = "httpconn"
	cliDescription = "httpconn - post payloads over a tick-driven HTTP/1.0 connection"
)

// GlobalOptions holds options that are common to all commands
type GlobalOptions struct {
	// ConfigFile is an explicit YAML config file
	ConfigFile string

	// EnvFile is an explicit .env file
	EnvFile string

	// Verbose enables debug logging
	Verbose bool
}

// NewHTTPConnCommand creates the root command with all subcommands.
func NewHTTPConnCommand() *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: cliDescription,
		Long: `httpconn sends HTTP/1.0 POST requests to a single destination through a
non-blocking connection that is advanced by a periodic tick.

Configuration is read from httpconn.yml, a .env file and HTTPCONN_*
environment variables; command flags override all of them.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "",
		"config file (default: ./httpconn.yml or ./config.yml)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "",
		".env file (default: ./.env)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"debug logging")

	cmd.AddCommand(
		NewPostCommand(opts),
		NewVersionCommand(opts),
	)

	return cmd
}

// loadConfig loads the configuration and sets up the global logger from it.
func loadConfig(opts *GlobalOptions) (*config.Config, error) {
	var loaderOpts []config.LoaderOption
	if opts.ConfigFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(opts.ConfigFile))
	}
	if opts.EnvFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(opts.EnvFile))
	}

	cfg, err := config.Load(loaderOpts...)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	logger.Init(cfg.Logging, cliName)
	return cfg, nil
}
