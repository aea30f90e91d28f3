package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role names a participant kind for Turn/Message attribution.
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// TurnStatus is the Turn state machine's three states.
type TurnStatus string

const (
	TurnPending     TurnStatus = "pending"
	TurnResponded   TurnStatus = "responded"
	TurnUnresponded TurnStatus = "unresponded"
)

// Turn is a single initiator->responder interaction attempt, bounded by a
// response window.
type Turn struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DialogueID uuid.UUID `gorm:"type:uuid;column:dialogue_id;not null;index" json:"dialogue_id"`
	SessionID  uuid.UUID `gorm:"type:uuid;column:session_id;not null;index" json:"session_id"`

	InitiatorRole Role `gorm:"column:initiator_role;type:text;not null" json:"initiator_role"`
	ResponderRole Role `gorm:"column:responder_role;type:text;not null" json:"responder_role"`

	StartedAt time.Time  `gorm:"column:started_at;not null;default:now();index" json:"started_at"`
	ClosedAt  *time.Time `gorm:"column:closed_at;index" json:"closed_at,omitempty"`

	Status TurnStatus `gorm:"column:status;type:text;not null;default:'pending';index" json:"status"`

	// Deadline is started_at + the response window in effect when the Turn
	// was opened. Stored rather than recomputed so overrides applied after
	// the fact never retroactively change a Turn's fate.
	Deadline time.Time `gorm:"column:deadline;not null;index" json:"deadline"`

	// ToolTrace records one entry per ToolInvoker round-trip during this
	// Turn's tool loop: {tool_id, latency_ms, success}.
	ToolTrace datatypes.JSON `gorm:"type:jsonb;column:tool_trace;not null;default:'[]'" json:"tool_trace,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Turn) TableName() string { return "turn" }

// ResponseTime returns the derived duration between start and close, or
// zero if the Turn is still open.
func (t Turn) ResponseTime() time.Duration {
	if t.ClosedAt == nil {
		return 0
	}
	return t.ClosedAt.Sub(t.StartedAt)
}
