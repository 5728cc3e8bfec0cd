package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
)

const report = "Musterfirma GmbH BWA 2024 Bezeichnung Jan Feb Gesamt " +
	"Umsatzerlöse 10.000,00 12.000,00 22.000,00 " +
	"Personalkosten 5.000,00 5.500,00 10.500,00 " +
	"Gesamtkosten 5.000,00 5.000,00 10.000,00"

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bwa.txt")
	require.NoError(t, os.WriteFile(path, []byte(report), 0o600))
	return path
}

func TestRun_Parse(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"parse", "-file", writeReport(t), "-year", "2024"}, &out))

	got := out.String()
	assert.Contains(t, got, "01/2024")
	assert.Contains(t, got, "02/2024")
	assert.Contains(t, got, "12.000,00")
	assert.Contains(t, got, "5.500,00")
	// February's expense lines sum to 5.500,00 while the report says 5.000,00
	assert.Contains(t, got, "Warnung: 02: Gesamtkosten")
}

func TestRun_ParseErrors(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"frobnicate"}, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"parse"}, &out), errUsage)

	err := run(context.Background(), []string{"parse", "-file", writeReport(t), "-locale", "klingon"}, &out)
	assert.Error(t, err)

	err = run(context.Background(), []string{"parse", "-file", filepath.Join(t.TempDir(), "missing.txt")}, &out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExportFilter(t *testing.T) {
	filter, err := exportFilter("2024-01", "2024-03", "revenue, Ausgaben")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *filter.StartDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *filter.EndDate)
	assert.Equal(t, []bwa.Classification{bwa.Revenue, bwa.Expense}, filter.Types)

	filter, err = exportFilter("", "", "")
	require.NoError(t, err)
	assert.Nil(t, filter.StartDate)
	assert.Empty(t, filter.Types)

	_, err = exportFilter("01/2024", "", "")
	assert.Error(t, err)
	_, err = exportFilter("", "", "assets")
	assert.Error(t, err)
}

func TestRun_ParseNeedsYear(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"parse", "-file", writeReport(t)}, &out)
	assert.ErrorContains(t, err, "reporting year unknown")
}
