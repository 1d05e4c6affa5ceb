// Command duesctl runs maintenance tasks against the dues database without
// starting the HTTP server.
package main

import (
	"fmt"
	"os"

	"dues-backend/internal/config"
	"dues-backend/internal/database"
	"dues-backend/internal/reconcile"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var Version = "dev"

// env is opened lazily so --help works without a database.
type env struct {
	cfg   *config.Config
	db    *gorm.DB
	locks *reconcile.Locker
}

func openEnv() (*env, error) {
	cfg := config.FromEnv()
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &env{cfg: cfg, db: db, locks: reconcile.NewLocker()}, nil
}

func (e *env) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "duesctl",
		Short:         "Maintenance tool for the membership dues ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(remindCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
