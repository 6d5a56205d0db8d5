package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gedmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gedmap",
	Short: "Geocode the places in GEDCOM family trees",
	Long:  "Parses GEDCOM files, normalizes every event place and resolves it to a coordinate through a persistent cache, fuzzy matching and a rate-limited live geocoder.",
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
