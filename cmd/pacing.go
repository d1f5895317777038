package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/salestrack/internal/pacing"
)

var (
	pacingTarget      float64
	pacingProgress    float64
	pacingTotalDays   int
	pacingElapsedDays int
)

var pacingCmd = &cobra.Command{
	Use:   "pacing",
	Short: "Compute projection pacing for a target and progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writePacing(cmd.OutOrStdout(), pacingTarget, pacingProgress, pacingTotalDays, pacingElapsedDays)
	},
}

func writePacing(w io.Writer, target, progress float64, totalDays, elapsedDays int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(pacing.Compute(target, progress, totalDays, elapsedDays)), "write pacing")
}

func init() {
	pacingCmd.Flags().Float64Var(&pacingTarget, "target", 0, "projection target value (required)")
	pacingCmd.Flags().Float64Var(&pacingProgress, "progress", 0, "value accumulated so far")
	pacingCmd.Flags().IntVar(&pacingTotalDays, "total-days", 0, "days in the projection window")
	pacingCmd.Flags().IntVar(&pacingElapsedDays, "elapsed-days", 0, "days elapsed in the window")
	_ = pacingCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(pacingCmd)
}
