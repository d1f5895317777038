package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // metrics.timezone must resolve without a system zoneinfo

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/salestrack/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "salestrack",
	Short: "Sales metric tracking engine",
	Long:  "Resolves daily metric submissions into calculated metrics, tracks projection pacing and builds company dashboards.",
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
