package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/rustyeddy/gradebot/broker/rest"
	"github.com/rustyeddy/gradebot/ratelimit"
	"github.com/rustyeddy/gradebot/scanner"
	"github.com/rustyeddy/gradebot/scoring"
	"github.com/rustyeddy/gradebot/snapshot"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [instrument...]",
	Short: "Score the universe once without trading",
	Long: `Build snapshots for every instrument, grade them and print the
candidates best first. No orders are placed and the ledger is not touched.

Examples:
  gradebot scan
  gradebot scan KRW-BTC KRW-ETH`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	universe := cfg.Universe
	if len(args) > 0 {
		universe = args
	}

	client := rest.New(cfg.Exchange, ratelimit.New(cfg.RateLimit), log.Named("rest"))
	b := snapshot.NewBuilder(client, cfg.Snapshot, log.Named("snapshot"))
	sc := scanner.New(cfg.Scanner, client, b, scoring.NewScorer(cfg.Scoring), log.Named("scanner"))

	ranked, err := sc.Rank(cmd.Context(), universe, nil)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	printCandidates(cmd.OutOrStdout(), ranked)
	for instr, until := range sc.CoolingDown() {
		fmt.Fprintf(cmd.OutOrStdout(), "! %s crash guard until %s\n", instr, until.Format("15:04:05"))
	}
	return nil
}

func printCandidates(w io.Writer, cands []scanner.Candidate) {
	fmt.Fprintln(w, "* Candidates")
	if len(cands) == 0 {
		fmt.Fprintln(w, "No instrument qualifies.")
		return
	}
	fmt.Fprintln(w, "| Instrument | Grade | Score | Raw | Price | Reasons |")
	fmt.Fprintln(w, "|------------+-------+-------+-----+-------+---------|")
	for _, c := range cands {
		reasons := make([]string, len(c.Result.Reasons))
		for i, r := range c.Result.Reasons {
			reasons[i] = r.String()
		}
		fmt.Fprintf(w, "| %s | %s | %.1f | %.1f | %g | %s |\n",
			c.Instrument, c.Result.Grade, c.Result.Score, c.Result.Raw, c.Snapshot.Price, strings.Join(reasons, " "))
	}
}
