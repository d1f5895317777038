package report

import (
	"strconv"
	"strings"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/resolver"
)

// Entry file columns. Header names are matched case-insensitively.
const (
	ColMetricID  = "metric_id"
	ColValue     = "value"
	ColProductID = "product_id"
)

// parseEntries turns a header row plus data rows into resolver entries. Blank
// rows are skipped; row numbers in errors are 1-based and count the header.
func parseEntries(rows [][]string) ([]resolver.Entry, error) {
	if len(rows) == 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "entry file is empty")
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColMetricID, ColValue} {
		if _, ok := cols[required]; !ok {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "entry file has no %q column", required)
		}
	}

	entries := make([]resolver.Entry, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}

		metricID, err := strconv.ParseInt(field(row, cols, ColMetricID), 10, 64)
		if err != nil {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "row %d: invalid metric_id %q", line, field(row, cols, ColMetricID))
		}
		value, err := strconv.ParseFloat(field(row, cols, ColValue), 64)
		if err != nil {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "row %d: invalid value %q", line, field(row, cols, ColValue))
		}

		e := resolver.Entry{MetricID: metricID, Value: value}
		if raw := field(row, cols, ColProductID); raw != "" {
			productID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, apperr.Validation(apperr.CodeInvalidInput, "row %d: invalid product_id %q", line, raw)
			}
			e.ProductID = &productID
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
