// Package db opens the GORM connection backing the Repository. DB_URL as
// the literal "memory" selects an in-process SQLite database; any other
// value is treated as a Postgres DSN.
package db

import (
	"fmt"
	stdlog "log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/threadline/dialoguecore/internal/config"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func Open(cfg config.Config, log *logger.Logger) (*Service, error) {
	svcLog := log.With("service", "db.Service")

	gormLog := gormLogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLog,
	}

	if cfg.DBURL == "memory" {
		gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open in-memory sqlite: %w", err)
		}
		// SQLite has no uuid_generate_v4(); IDs are assigned in application
		// code (google/uuid) before Create, so the default clause is inert.
		return &Service{db: gdb, log: svcLog}, nil
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable&search_path=%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBURL, cfg.DBDatabase, cfg.DBNamespace,
	)
	gdb, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}
	return &Service{db: gdb, log: svcLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrate() error {
	s.log.Info("auto-migrating core tables")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("auto migration failed", "error", err)
		return err
	}
	if err := EnsureIndexes(s.db); err != nil {
		s.log.Error("index migration failed", "error", err)
		return err
	}
	return nil
}
