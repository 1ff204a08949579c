package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geopipeline",
	Short: "Accommodation geocoding pipeline",
	Long:  "Routes candidate accommodations to external geocoders, consolidates the results into one coordinate per candidate and resolves it to a locality.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
