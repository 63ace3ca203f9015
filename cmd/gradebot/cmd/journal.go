package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/gradebot/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display trade journal records in Org format.

The SQLite journal is read from --db, or from journal.db_path in the
config. A postgres journal is read through GRADEBOT_PG_DSN.

Subcommands:
  trade   - Get details of a specific trade by ID
  today   - List trades closed today
  day     - List trades closed on a specific day
  summary - Win rate and P/L for a range of days

Examples:
  gradebot journal trade <trade-id>
  gradebot journal today
  gradebot journal day 2024-01-15
  gradebot journal summary 2024-01-01 2024-01-31`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary <from YYYY-MM-DD> [to YYYY-MM-DD]",
	Short: "Summarize trades closed between two days (inclusive)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runJournalSummary,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalSummaryCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB")
}

type journalReader interface {
	journal.Reader
	io.Closer
}

func openReader(ctx context.Context) (journalReader, error) {
	if journalDBPath != "" {
		return journal.NewSQLite(journalDBPath)
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	switch cfg.Journal.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	case "postgres":
		return journal.NewPostgres(ctx, cfg.Journal.DSN, 0)
	}
	return nil, fmt.Errorf("journal type %q cannot be queried; pass --db", cfg.Journal.Type)
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openReader(cmd.Context())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return listDay(cmd, time.Now().In(time.Local).Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return listDay(cmd, args[0])
}

func listDay(cmd *cobra.Command, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := openReader(cmd.Context())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	start, end, err := dayBounds(time.Local, args[0])
	if err != nil {
		return fmt.Errorf("from date: %w", err)
	}
	if len(args) == 2 {
		_, end, err = dayBounds(time.Local, args[1])
		if err != nil {
			return fmt.Errorf("to date: %w", err)
		}
	}
	if !end.After(start) {
		return fmt.Errorf("to date is before from date")
	}

	j, err := openReader(cmd.Context())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	title := fmt.Sprintf("Summary %s .. %s", start.Format("2006-01-02"), end.Add(-time.Nanosecond).Format("2006-01-02"))
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatSummaryOrg(title, journal.Summarize(recs)))
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
