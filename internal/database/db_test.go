package database

import (
	"errors"
	"path/filepath"
	"testing"

	"dues-backend/internal/config"
	"dues-backend/internal/models"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.Config{DBDriver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenAndMigrateSqlite(t *testing.T) {
	db, err := Open(&config.Config{
		DBDriver:    "sqlite",
		DatabaseDSN: filepath.Join(t.TempDir(), "t.db"),
		DBLogLevel:  "silent",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := Migrate(db); err != nil {
		t.Fatal(err)
	}
	for _, m := range []any{&models.Member{}, &models.Transaction{}, &models.DueDateRecord{}, &models.ReminderLog{}} {
		if !db.Migrator().HasTable(m) {
			t.Errorf("missing table for %T", m)
		}
	}
}

func TestUniqueViolationIsTranslated(t *testing.T) {
	db, err := Open(&config.Config{
		DBDriver:    "sqlite",
		DatabaseDSN: filepath.Join(t.TempDir(), "t.db"),
		DBLogLevel:  "silent",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := Migrate(db); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.MembershipClass{Name: "Tav"}).Error; err != nil {
		t.Fatal(err)
	}
	err = db.Create(&models.MembershipClass{Name: "Tav"}).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	if parseLogLevel("info") != gormLogger.Info || parseLogLevel("") != gormLogger.Warn {
		t.Fatal("unexpected log level mapping")
	}
}
