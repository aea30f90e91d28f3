package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionType distinguishes an ordinary conversational segment from a
// self-reflection segment driven by IntrospectionEngine.
type SessionType string

const (
	SessionDialogue      SessionType = "dialogue"
	SessionSelfReflection SessionType = "self_reflection"
)

// CreatedBy names who opened a Session.
type CreatedBy string

const (
	CreatedBySystem CreatedBy = "system"
	CreatedByAI     CreatedBy = "ai"
	CreatedByHuman  CreatedBy = "human"
)

// Session is a contiguous context segment inside a Dialogue.
type Session struct {
	ID         uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DialogueID uuid.UUID   `gorm:"type:uuid;column:dialogue_id;not null;index" json:"dialogue_id"`
	SessionType SessionType `gorm:"column:session_type;type:text;not null;default:'dialogue'" json:"session_type"`

	StartAt time.Time  `gorm:"column:start_at;not null;default:now();index" json:"start_at"`
	EndAt   *time.Time `gorm:"column:end_at;index" json:"end_at,omitempty"`

	Description string    `gorm:"column:description;type:text;not null;default:''" json:"description"`
	CreatedBy   CreatedBy `gorm:"column:created_by;type:text;not null;default:'system'" json:"created_by"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Session) TableName() string { return "session" }

// IsOpen reports whether the Session has not yet been closed.
func (s Session) IsOpen() bool { return s.EndAt == nil }
