package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/samtaplin/llmneldacoding/internal/config"
)

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "nelda-scheduler",
	Short: "Schedule NELDA analyses around election days",
	Long:  "Reads elections from a CSV and creates cron jobs that call /runNelda before and after each election.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	def := os.Getenv("CONFIG_PATH")
	if def == "" {
		def = filepath.Join(".", "config.yaml")
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", def, "path to config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
