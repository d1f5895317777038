package report

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/dashboard"
	"github.com/sells-group/salestrack/internal/model"
	"github.com/sells-group/salestrack/internal/resolver"
)

func ptr[T any](v T) *T { return &v }

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Entries")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "entries.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestStreamCSV_TrimAndComments(t *testing.T) {
	input := "a, b\n# skipped\n c ,d\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true, Comment: '#'})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n"), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadEntriesCSV(t *testing.T) {
	input := "Metric_ID,value,product_id\n1,10.5,\n2,3,7\n\n"
	entries, err := ReadEntriesCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []resolver.Entry{
		{MetricID: 1, Value: 10.5},
		{MetricID: 2, Value: 3, ProductID: ptr(int64(7))},
	}, entries)
}

func TestReadEntriesCSV_ColumnsInAnyOrder(t *testing.T) {
	input := "value,metric_id\n4,9\n"
	entries, err := ReadEntriesCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []resolver.Entry{{MetricID: 9, Value: 4}}, entries)
}

func TestReadEntriesCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"empty", "", "empty"},
		{"missing value column", "metric_id\n1\n", `"value"`},
		{"bad metric id", "metric_id,value\nabc,1\n", "row 2"},
		{"bad value", "metric_id,value\n1,1\n2,x\n", "row 3"},
		{"bad product", "metric_id,value,product_id\n1,1,p\n", "product_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadEntriesCSV(context.Background(), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestReadEntriesXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"metric_id", "value", "product_id"},
		{"1", "2.5", ""},
		{"3", "4", "8"},
	})

	entries, err := ReadEntriesXLSX(path)
	require.NoError(t, err)
	assert.Equal(t, []resolver.Entry{
		{MetricID: 1, Value: 2.5},
		{MetricID: 3, Value: 4, ProductID: ptr(int64(8))},
	}, entries)
}

func TestReadXLSX_SheetErrors(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"a"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)

	_, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestWriteDashboardXLSX(t *testing.T) {
	summaries := []dashboard.Summary{{
		MetricID:         4,
		MetricName:       "Revenue",
		MetricType:       model.MetricTypeNumeric,
		IsMainMetric:     true,
		RevenueGenerated: 25,
		Expenses:         20,
		ProfitRatio:      25,
		Months: []dashboard.MonthSummary{
			{Key: "2026-01", Label: "Jan 2026", Actual: 10},
			{Key: "2026-02", Label: "Feb 2026", Actual: 15, Projected: 20},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteDashboardXLSX(&buf, summaries))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)

	summary := f.Sheet[SheetSummary]
	require.NotNil(t, summary)
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, "Revenue", summary.Rows[1].Cells[1].String())
	assert.Equal(t, "true", summary.Rows[1].Cells[4].String())
	revenue, err := summary.Rows[1].Cells[6].Float()
	require.NoError(t, err)
	assert.InDelta(t, 25, revenue, 1e-9)

	months := f.Sheet[SheetMonths]
	require.NotNil(t, months)
	require.Len(t, months.Rows, 3)
	assert.Equal(t, "Feb 2026", months.Rows[2].Cells[2].String())
	projected, err := months.Rows[2].Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 20, projected, 1e-9)
}
