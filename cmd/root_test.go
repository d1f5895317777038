package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/salestrack/internal/pacing"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "migrate", "seed", "import", "export", "pacing"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "salestrack", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "user", "date"} {
		assert.NotNil(t, importCmd.Flags().Lookup(name), "import command should have --%s flag", name)
	}
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "dashboard.xlsx", flag.DefValue)
	for _, name := range []string{"company", "main", "secondary", "from", "to"} {
		assert.NotNil(t, exportCmd.Flags().Lookup(name), "export command should have --%s flag", name)
	}
}

func TestWritePacing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePacing(&buf, 100, 80, 30, 15))

	var got pacing.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.InDelta(t, 80.0/15, got.PacingRate, 1e-9)
	assert.InDelta(t, 160, got.ProjectedTotal, 1e-9)
	assert.InDelta(t, -60, got.PacingPercentage, 1e-9)
}

func TestExportFilter(t *testing.T) {
	exportCompanyID, exportMainID, exportSecondaryID = 3, 0, 9
	exportFrom, exportTo = "2026-01-01", ""
	t.Cleanup(func() {
		exportCompanyID, exportMainID, exportSecondaryID = 0, 0, 0
		exportFrom, exportTo = "", ""
	})

	f, err := exportFilter()
	require.NoError(t, err)
	require.NotNil(t, f.CompanyID)
	assert.Equal(t, int64(3), *f.CompanyID)
	assert.Nil(t, f.MainMetricID)
	require.NotNil(t, f.SecondaryMetricID)
	assert.Equal(t, "2026-01-01", f.From.Format("2006-01-02"))
	assert.True(t, f.To.IsZero())

	exportTo = "tomorrow"
	_, err = exportFilter()
	assert.Error(t, err)
}
