package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/domain"
)

func AutoMigrateAll(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&domain.Dialogue{},
		&domain.Session{},
		&domain.Turn{},
		&domain.Message{},
		&domain.ToolCall{},
		&domain.EventLog{},
		&domain.IntrospectionSession{},
		&domain.IntrospectionStep{},
		&domain.CollaborationSession{},
	)
}

// EnsureIndexes adds the indexes named in the persisted-state layout
// (dialogue_id, session_id, turn_id, created_at, status) that AutoMigrate's
// struct tags don't already cover, plus the partial-unique idempotency
// index. Both Postgres and SQLite understand CREATE INDEX ... WHERE, so
// these run unconditionally: DB_URL=memory gets the same idempotency
// guarantee as a production Postgres deployment.
func EnsureIndexes(gdb *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_message_idempotency
			ON message (dialogue_id, sender_id, idempotency_key)
			WHERE deleted_at IS NULL AND idempotency_key <> '';`,
		`CREATE INDEX IF NOT EXISTS idx_turn_pending_deadline
			ON turn (status, deadline) WHERE status = 'pending';`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
