package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set GRADEBOT_TEST_PG_DSN to run against a live database.
func TestPostgresJournal(t *testing.T) {
	dsn := os.Getenv("GRADEBOT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("GRADEBOT_TEST_PG_DSN not set")
	}

	j, err := NewPostgres(context.Background(), dsn, 5*time.Second)
	require.NoError(t, err)
	defer j.Close()

	closeT := time.Now().UTC().Truncate(time.Microsecond)
	rec := sampleTrade(ulid.Make().String(), closeT, 42)
	require.NoError(t, j.RecordTrade(rec))
	require.NoError(t, j.RecordTrade(rec), "duplicates are ignored")

	got, err := j.GetTrade(rec.TradeID)
	require.NoError(t, err)
	assert.Equal(t, rec.Instrument, got.Instrument)
	assert.True(t, got.CloseTime.Equal(rec.CloseTime))

	list, err := j.ListTradesClosedBetween(closeT.Add(-time.Second), closeT.Add(time.Second))
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, err = j.GetTrade("missing-" + rec.TradeID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMulti(t *testing.T) {
	t.Parallel()

	a, _ := newTestSQLite(t)
	b, _ := newTestSQLite(t)
	m := Multi{a, b, Nop{}}

	rec := sampleTrade("M1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, m.RecordTrade(rec))
	require.NoError(t, m.RecordEquity(EquitySnapshot{Time: rec.CloseTime, Equity: 1}))

	for _, j := range []*SQLite{a, b} {
		got, err := j.GetTrade("M1")
		require.NoError(t, err)
		assert.Equal(t, "M1", got.TradeID)
	}

	assert.Error(t, m.RecordTrade(rec), "duplicate reported")
	assert.NoError(t, m.Close())
}
