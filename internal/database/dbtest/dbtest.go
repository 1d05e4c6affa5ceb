// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"dues-backend/internal/config"
	"dues-backend/internal/database"

	"gorm.io/gorm"
)

// New returns a migrated sqlite database in t's temp dir.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	cfg := &config.Config{
		DBDriver:    "sqlite",
		DatabaseDSN: filepath.Join(t.TempDir(), "dues.db") + "?_busy_timeout=5000",
		DBLogLevel:  "silent",
	}
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// InterleaveCreate inserts row once, right before the next create on table
// runs. It stands in for a concurrent writer that commits between a
// uniqueness check and the insert that follows it.
func InterleaveCreate(t testing.TB, db *gorm.DB, table string, row any) {
	t.Helper()

	done := false
	err := db.Callback().Create().Before("gorm:create").Register("dbtest:interleave_"+table, func(tx *gorm.DB) {
		if done || tx.Statement.Table != table {
			return
		}
		done = true
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(row).Error; err != nil {
			tx.AddError(err)
		}
	})
	if err != nil {
		t.Fatalf("register interleave: %v", err)
	}
}
