package main

import (
	"github.com/spf13/cobra"

	"datatoken/internal/config"
	"datatoken/internal/pkg/logger"
)

type rootOptions struct {
	configFile string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "datatoken",
		Short:         "Data token document integrity and agreement verification",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to a YAML configuration file (defaults to $"+config.ConfigFileEnv+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newChecksumCommand(),
		newDTCommand(),
		newDDOCommand(),
		newTemplateCommand(),
		newServeCommand(opts),
		newAuditCommand(opts),
	)
	return root
}

// load reads configuration and initializes the global logger.
func (o *rootOptions) load() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.Load(o.configFile)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return config.Config{}, err
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
