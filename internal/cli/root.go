// Package cli implements the minuteone CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aliendevit/minuteone/internal/chips"
	"github.com/aliendevit/minuteone/internal/config"
	"github.com/aliendevit/minuteone/internal/logger"
	"github.com/aliendevit/minuteone/internal/score"
	"github.com/aliendevit/minuteone/internal/store"
)

var (
	configPath string
	dbFlag     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "minuteone",
	Short: "Offline clinical documentation core",
	Long:  "Fact store, delta engine, safety guards, and chip lifecycle for ambient clinical documentation. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
	RootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "Database path (overrides config)")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbFlag != "" {
		cfg.Store.DBPath = dbFlag
	}
	return cfg
}

func openStore(cfg *config.Config) *store.SQLiteStore {
	s, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		exitErr("open store", err)
	}
	return s
}

func newLogger(cfg *config.Config) *zap.Logger {
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		exitErr("init logger", err)
	}
	return log
}

func newScorer(cfg *config.Config) *score.Scorer {
	return score.New(cfg.Scoring.Weights, cfg.Scoring.Thresholds, cfg.Scoring.RiskBumps)
}

func newManager(cfg *config.Config, s *store.SQLiteStore, log *zap.Logger) *chips.Manager {
	return chips.NewManager(s, newScorer(cfg), log)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
