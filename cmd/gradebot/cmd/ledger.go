package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rustyeddy/gradebot/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or reset the risk ledger",
	Long: `Show the persisted capital and risk counters and whether new
entries are currently allowed.

Subcommands:
  show  - Print the ledger and the entry gate
  reset - Start the ledger over from a balance

Examples:
  gradebot ledger show
  gradebot ledger reset --balance 1000000`,
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the ledger and the entry gate",
	Args:  cobra.NoArgs,
	RunE:  runLedgerShow,
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start the ledger over from a balance",
	Args:  cobra.NoArgs,
	RunE:  runLedgerReset,
}

var (
	ledgerPath    string
	ledgerBalance float64
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerResetCmd)

	ledgerCmd.PersistentFlags().StringVar(&ledgerPath, "path", "", "ledger file (default ledger.path from the config)")
	ledgerResetCmd.Flags().Float64Var(&ledgerBalance, "balance", 0, "initial capital (required)")
	_ = ledgerResetCmd.MarkFlagRequired("balance")
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ledgerPath == "" {
		ledgerPath = cfg.Ledger.Path
	}

	store := ledger.NewFileStore(ledgerPath, zap.NewNop())
	st, err := store.Load()
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	l := ledger.New(st, store, cfg.Risk, zap.NewNop())
	ok, reason := l.CanEnter(time.Now())

	printLedger(cmd.OutOrStdout(), ledgerPath, st)
	if ok {
		fmt.Fprintln(cmd.OutOrStdout(), "\n✓ Entries allowed")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "\n✗ Entries blocked: %s\n", reason)
	}
	return nil
}

func runLedgerReset(cmd *cobra.Command, args []string) error {
	if ledgerBalance <= 0 {
		return fmt.Errorf("balance must be positive")
	}
	if ledgerPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ledgerPath = cfg.Ledger.Path
	}

	store := ledger.NewFileStore(ledgerPath, zap.NewNop())
	if err := store.Save(ledger.NewState(ledgerBalance, time.Now())); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Ledger reset: %s (initial %.0f)\n", ledgerPath, ledgerBalance)
	return nil
}

func printLedger(w io.Writer, path string, st ledger.State) {
	fmt.Fprintf(w, "* Ledger %s\n", path)
	fmt.Fprintln(w, "| Field            | Value |")
	fmt.Fprintln(w, "|------------------+-------|")
	fmt.Fprintf(w, "| Initial          | %.0f |\n", st.Initial)
	fmt.Fprintf(w, "| Current asset    | %.0f |\n", st.CurrentAsset)
	fmt.Fprintf(w, "| Peak asset       | %.0f |\n", st.PeakAsset)
	fmt.Fprintf(w, "| Drawdown         | %.2f%% |\n", st.DrawdownPct())
	fmt.Fprintf(w, "| Daily loss       | %.0f |\n", st.DailyLoss)
	fmt.Fprintf(w, "| Daily profit     | %.0f |\n", st.DailyProfit)
	fmt.Fprintf(w, "| Consecutive loss | %d |\n", st.ConsecutiveLoss)
	fmt.Fprintf(w, "| Last trade date  | %s |\n", st.LastTradeDate)
	fmt.Fprintf(w, "| Trades           | %d |\n", st.TotalTrades)
	fmt.Fprintf(w, "| Win rate         | %.2f%% |\n", st.WinRate()*100)
	fmt.Fprintf(w, "| Total profit     | %.0f |\n", st.TotalProfit)

	if len(st.GradeStats) == 0 {
		return
	}
	grades := make([]string, 0, len(st.GradeStats))
	for g := range st.GradeStats {
		grades = append(grades, g)
	}
	sort.Strings(grades)

	fmt.Fprintln(w, "\n| Grade | Trades | Wins | Profit |")
	fmt.Fprintln(w, "|-------+--------+------+--------|")
	for _, g := range grades {
		gs := st.GradeStats[g]
		fmt.Fprintf(w, "| %s | %d | %d | %.0f |\n", g, gs.Trades, gs.Wins, gs.Profit)
	}
}
