package app

import (
	"github.com/spf13/cobra"

	"github.com/prefstore/prefstore/internal/config"
	"github.com/prefstore/prefstore/internal/daemon"
	"github.com/prefstore/prefstore/internal/logger"
)

func init() { //nolint: gochecknoinits
	startCmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")
	startCmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Keep settings in memory only")

	rootCmd.AddCommand(startCmd)
}

var (
	configPath string // Path to the configuration file

	cfg       config.Config
	err       error
	ephemeral bool

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the prefstore settings service",
		PreRun: func(_ *cobra.Command, _ []string) {
			if cfg, err = config.Read(configPath); err != nil {
				panic(err)
			}

			if err = logger.Init(cfg.Log); err != nil {
				panic(err)
			}
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := daemon.New(&cfg, ephemeral)
			if err != nil {
				return err
			}

			return d.Start()
		},
	}
)
