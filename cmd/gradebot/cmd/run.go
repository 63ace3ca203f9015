package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/gradebot/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading bot until interrupted",
	Long: `Start the scan loop and position watchers.

In paper mode orders fill against a simulated wallet using live prices.
On SIGINT or SIGTERM open positions are closed and the ledger is flushed.

Example:
  gradebot run -c gradebot.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting gradebot",
		zap.String("version", version),
		zap.String("mode", cfg.Mode),
		zap.Strings("universe", cfg.Universe))

	a := fx.New(
		app.Module(cfg, log),
		fx.StopTimeout(cfg.Runner.ShutdownTimeout+10*time.Second),
	)
	if err := a.Err(); err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	startCtx, cancel := context.WithTimeout(cmd.Context(), a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	sig := <-a.Wait()
	log.Info("shutting down", zap.Any("signal", sig.Signal))

	stopCtx, cancel := context.WithTimeout(context.Background(), a.StopTimeout())
	defer cancel()
	return a.Stop(stopCtx)
}
