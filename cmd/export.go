package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/salestrack/internal/dashboard"
	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/report"
)

var (
	exportOut         string
	exportCompanyID   int64
	exportMainID      int64
	exportSecondaryID int64
	exportFrom        string
	exportTo          string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a dashboard to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		filter, err := exportFilter()
		if err != nil {
			return err
		}

		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.store.Close() //nolint:errcheck

		n, err := exportDashboard(ctx, svc.dashboard, exportOut, filter)
		if err != nil {
			return err
		}
		zap.L().Info("export complete", zap.String("out", exportOut), zap.Int("metrics", n))
		return nil
	},
}

func exportFilter() (dashboard.Filter, error) {
	f := dashboard.Filter{
		CompanyID:         optionalID(exportCompanyID),
		MainMetricID:      optionalID(exportMainID),
		SecondaryMetricID: optionalID(exportSecondaryID),
	}
	var err error
	if f.From, err = optionalDay("--from", exportFrom); err != nil {
		return f, err
	}
	f.To, err = optionalDay("--to", exportTo)
	return f, err
}

func exportDashboard(ctx context.Context, dash *dashboard.Service, out string, f dashboard.Filter) (int, error) {
	summaries, err := dash.Get(ctx, f)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(out)
	if err != nil {
		return 0, eris.Wrap(err, "create export file")
	}
	if err := report.WriteDashboardXLSX(file, summaries); err != nil {
		file.Close() //nolint:errcheck
		return 0, err
	}
	return len(summaries), eris.Wrap(file.Close(), "close export file")
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func optionalDay(flag, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DayLayout, raw)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse %s %q", flag, raw)
	}
	return t, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "dashboard.xlsx", "output workbook path")
	exportCmd.Flags().Int64Var(&exportCompanyID, "company", 0, "company id")
	exportCmd.Flags().Int64Var(&exportMainID, "main", 0, "main metric id")
	exportCmd.Flags().Int64Var(&exportSecondaryID, "secondary", 0, "secondary metric id")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "window start, YYYY-MM-DD")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "window end, YYYY-MM-DD")
	rootCmd.AddCommand(exportCmd)
}
