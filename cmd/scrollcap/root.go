package main

import (
	"github.com/spf13/cobra"

	"jordanella.com/scrollcap/internal/config"
	"jordanella.com/scrollcap/internal/logging"
)

// app carries state shared by subcommands for one invocation.
type app struct {
	cfgFile  string
	logLevel string
	cfg      config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "scrollcap",
		Short:         "Page through a scrollable list on an Android emulator and capture every page once",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			a.cfg = cfg
			logging.Initialize(cfg.Log.Options())
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (.ini, .yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(a),
		newProbeCmd(a),
		newConfigCmd(a),
		newHistoryCmd(a),
	)
	return root
}
