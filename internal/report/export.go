package report

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/salestrack/internal/dashboard"
)

// Sheet names of an exported dashboard workbook.
const (
	SheetSummary = "Summary"
	SheetMonths  = "Months"
)

var (
	summaryHeader = []string{"Metric ID", "Metric", "Type", "Default", "Main", "Secondary", "Revenue", "Expenses", "Profit Ratio"}
	monthsHeader  = []string{"Metric ID", "Metric", "Month", "Actual", "Projected"}
)

// WriteDashboardXLSX writes one summary row per metric and one row per
// metric-month to w.
func WriteDashboardXLSX(w io.Writer, summaries []dashboard.Summary) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	months, err := f.AddSheet(SheetMonths)
	if err != nil {
		return eris.Wrap(err, "xlsx: add months sheet")
	}
	addHeader(summary, summaryHeader)
	addHeader(months, monthsHeader)

	for _, s := range summaries {
		row := summary.AddRow()
		row.AddCell().SetInt64(s.MetricID)
		row.AddCell().SetString(s.MetricName)
		row.AddCell().SetString(string(s.MetricType))
		row.AddCell().SetString(strconv.FormatBool(s.IsDefault))
		row.AddCell().SetString(strconv.FormatBool(s.IsMainMetric))
		row.AddCell().SetString(strconv.FormatBool(s.IsSecondaryMetric))
		row.AddCell().SetFloat(s.RevenueGenerated)
		row.AddCell().SetFloat(s.Expenses)
		row.AddCell().SetFloat(s.ProfitRatio)

		for _, m := range s.Months {
			row := months.AddRow()
			row.AddCell().SetInt64(s.MetricID)
			row.AddCell().SetString(s.MetricName)
			row.AddCell().SetString(m.Label)
			row.AddCell().SetFloat(m.Actual)
			row.AddCell().SetFloat(m.Projected)
		}
	}

	return eris.Wrap(f.Write(w), "xlsx: write dashboard")
}

func addHeader(sheet *xlsx.Sheet, names []string) {
	row := sheet.AddRow()
	for _, name := range names {
		row.AddCell().SetString(name)
	}
}
