package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/report"
	"github.com/sells-group/salestrack/internal/resolver"
)

var (
	importFile   string
	importUserID int64
	importDate   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Submit one day of metric entries from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		var day time.Time
		if importDate != "" {
			d, err := time.Parse(model.DayLayout, importDate)
			if err != nil {
				return eris.Wrapf(err, "parse --date %q", importDate)
			}
			day = d
		}

		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.store.Close() //nolint:errcheck

		records, err := importEntries(ctx, svc.resolver, importFile, importUserID, day)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int64("user_id", importUserID),
			zap.Int("records", len(records)),
		)
		return nil
	},
}

// readEntries picks the parser from the file extension.
func readEntries(ctx context.Context, path string) ([]resolver.Entry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "open entries")
		}
		defer f.Close() //nolint:errcheck
		return report.ReadEntriesCSV(ctx, f)
	case ".xlsx":
		return report.ReadEntriesXLSX(path)
	default:
		return nil, eris.Errorf("unsupported entry file %q (want .csv or .xlsx)", path)
	}
}

// importEntries submits the entries in path as one batch for day, a calendar
// day taken as given. A zero day means today.
func importEntries(ctx context.Context, res *resolver.Service, path string, userID int64, day time.Time) ([]model.DailyMetricRecord, error) {
	entries, err := readEntries(ctx, path)
	if err != nil {
		return nil, err
	}
	return res.Submit(ctx, resolver.SubmitRequest{UserID: userID, Day: day, Entries: entries})
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to .csv or .xlsx entries (required)")
	importCmd.Flags().Int64Var(&importUserID, "user", 0, "submitting user id (required)")
	importCmd.Flags().StringVar(&importDate, "date", "", "submission day, YYYY-MM-DD (default today)")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(importCmd)
}
