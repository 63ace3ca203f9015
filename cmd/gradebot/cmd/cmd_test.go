package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/gradebot/ledger"
	"github.com/rustyeddy/gradebot/market"
	"github.com/rustyeddy/gradebot/scanner"
	"github.com/rustyeddy/gradebot/scoring"
	"github.com/rustyeddy/gradebot/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBounds(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("KST", 9*3600)
	start, end, err := dayBounds(loc, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), end)

	_, _, err = dayBounds(loc, "10/03/2024")
	assert.Error(t, err)
}

func TestPrintLedger(t *testing.T) {
	t.Parallel()

	st := ledger.NewState(1_000_000, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	st.CurrentAsset = 950_000
	st.TotalTrades = 4
	st.WinTrades = 1
	st.GradeStats["SILVER"] = ledger.GradeStat{Trades: 3, Wins: 1, Profit: -40_000}
	st.GradeStats["GOLD"] = ledger.GradeStat{Trades: 1, Profit: -10_000}

	var buf bytes.Buffer
	printLedger(&buf, "ledger.json", st)
	out := buf.String()
	assert.Contains(t, out, "| Drawdown         | 5.00% |")
	assert.Contains(t, out, "| Win rate         | 25.00% |")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("| GOLD")), bytes.Index(buf.Bytes(), []byte("| SILVER")))
}

func TestPrintCandidates(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printCandidates(&buf, nil)
	assert.Contains(t, buf.String(), "No instrument qualifies.")

	buf.Reset()
	printCandidates(&buf, []scanner.Candidate{{
		Instrument: "KRW-BTC",
		Result: scoring.Result{
			Score:   82.5,
			Raw:     371.25,
			Grade:   scoring.GradeGold,
			Reasons: []scoring.Signal{{Reason: scoring.ReasonRSIOversold, Timeframe: market.M5}},
		},
		Snapshot: snapshot.Snapshot{Price: 50_000_000},
	}})
	assert.Contains(t, buf.String(), "| KRW-BTC | GOLD | 82.5 | 371.2 | 5e+07 | rsi_oversold@5m |")
}

func TestConfigInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradebot.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", "-o", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "✓ Created default configuration")

	out.Reset()
	rootCmd.SetArgs([]string{"config", "validate", "-f", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "✓ Configuration valid")
	assert.Contains(t, out.String(), "Mode: paper")
}

func TestLedgerResetThenShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	t.Setenv("GRADEBOT_API_KEY", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ledger", "reset", "--path", path, "--balance", "500000", "-c", filepath.Join(dir, "none.yaml")})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "✓ Ledger reset")

	st, err := ledger.NewFileStore(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, 500000.0, st.Initial)

	out.Reset()
	rootCmd.SetArgs([]string{"ledger", "show", "--path", path, "-c", filepath.Join(dir, "none.yaml"), "--env-file", ""})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "| Initial          | 500000 |")
	assert.Contains(t, out.String(), "✓ Entries allowed")
}
