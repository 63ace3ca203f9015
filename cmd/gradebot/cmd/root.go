package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rustyeddy/gradebot/config"
	"github.com/rustyeddy/gradebot/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "gradebot",
	Short: "A graded mean-reversion spot trading bot",
	Long: `Gradebot scans a universe of spot instruments, grades each entry
opportunity GOLD, SILVER or BRONZE from multi-timeframe indicators and
trades the best one with Kelly-based sizing and a trailing exit.

It provides tools for:
  - Running the bot live or against a paper wallet
  - Dry-run scans of the current universe
  - Inspecting the risk ledger and trade journal
  - Generating and validating configuration files`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	envFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gradebot.yaml", "config file (defaults are used when it does not exist)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with GRADEBOT_* secrets")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level from the config")
}

// loadConfig reads the config file and the secrets from the environment.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}

	var cfg *config.Config
	if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}
