package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{tradeHeader}, readCSV(t, tradesPath))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, equityPath))
}

func TestCSVJournalRecordTrade(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	closeT := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("T1", closeT, -12.5)))
	require.NoError(t, j.Close())

	rows := readCSV(t, tradesPath)
	require.Len(t, rows, 2)
	want := []string{
		"T1",
		"BTC",
		"SILVER",
		"0.250000",
		"40000.000000",
		"39950.000000",
		"10000.000000",
		closeT.Add(-30 * time.Minute).Format(time.RFC3339),
		closeT.Format(time.RFC3339),
		"-12.500000",
		"-0.125000",
		"trailing_stop",
	}
	assert.Equal(t, want, rows[1])
}

func TestCSVJournalAppends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")
	closeT := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)

	for i, id := range []string{"T1", "T2"} {
		j, err := NewCSV(tradesPath, equityPath)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, j.RecordTrade(sampleTrade(id, closeT, 1)))
		require.NoError(t, j.Close())
	}

	rows := readCSV(t, tradesPath)
	require.Len(t, rows, 3, "one header and two trades")
	assert.Equal(t, "T1", rows[1][0])
	assert.Equal(t, "T2", rows[2][0])
}

func TestCSVJournalRecordEquity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:         ts,
		Equity:       999.9,
		FreeCapital:  500.5,
		OpenExposure: 499.4,
		DrawdownPct:  1.25,
	}))
	require.NoError(t, j.Close())

	rows := readCSV(t, equityPath)
	require.Len(t, rows, 2)
	want := []string{
		ts.Format(time.RFC3339),
		"999.900000",
		"500.500000",
		"499.400000",
		"1.250000",
	}
	assert.Equal(t, want, rows[1])
}
