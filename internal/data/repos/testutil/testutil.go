// Package testutil provides the shared in-memory database and logger
// fixtures used across the repos/session/turn/orchestrator test suites.
package testutil

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/threadline/dialoguecore/internal/data/db"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

// Logger returns a development-mode Logger for use in tests.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("failed to init logger: %v", err)
	}
	return log
}

// DB opens a fresh named in-memory SQLite database scoped to tb's name, so
// parallel tests never share tables, and runs the full AutoMigrate set
// against it.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", tb.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open in-memory sqlite: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("auto-migrate: %v", err)
	}
	if err := db.EnsureIndexes(gdb); err != nil {
		tb.Fatalf("ensure indexes: %v", err)
	}
	return gdb
}
