package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ToolCall is the per-invocation record written by ToolInvoker.
type ToolCall struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DialogueID uuid.UUID `gorm:"type:uuid;column:dialogue_id;not null;index" json:"dialogue_id"`
	TurnID     uuid.UUID `gorm:"type:uuid;column:turn_id;not null;index" json:"turn_id"`

	ToolID     string         `gorm:"column:tool_id;type:text;not null;index" json:"tool_id"`
	Parameters datatypes.JSON `gorm:"type:jsonb;column:parameters;not null;default:'{}'" json:"parameters"`

	Success   bool           `gorm:"column:success;not null;default:false" json:"success"`
	Result    datatypes.JSON `gorm:"type:jsonb;column:result;not null;default:'null'" json:"result,omitempty"`
	Error     string         `gorm:"column:error;type:text;not null;default:''" json:"error,omitempty"`
	LatencyMS int64          `gorm:"column:latency_ms;not null;default:0" json:"latency_ms"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ToolCall) TableName() string { return "tool_call" }

// EventLog is the append-only pipeline trace. Internal failure details that
// must not reach the client (per the error-handling propagation policy) are
// written here.
type EventLog struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DialogueID uuid.UUID `gorm:"type:uuid;column:dialogue_id;not null;index" json:"dialogue_id"`
	TurnID     *uuid.UUID `gorm:"type:uuid;column:turn_id;index" json:"turn_id,omitempty"`

	Kind    string         `gorm:"column:kind;type:text;not null;index" json:"kind"`
	Message string         `gorm:"column:message;type:text;not null;default:''" json:"message"`
	Detail  datatypes.JSON `gorm:"type:jsonb;column:detail;not null;default:'{}'" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (EventLog) TableName() string { return "event_log" }

// IntrospectionStepStatus tracks a single introspection step's outcome.
type IntrospectionStepStatus string

const (
	IntrospectionStepOK     IntrospectionStepStatus = "ok"
	IntrospectionStepFailed IntrospectionStepStatus = "failed"
)

// IntrospectionSession is the goal + ordered steps driven by
// IntrospectionEngine within a self_reflection Session.
type IntrospectionSession struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DialogueID uuid.UUID `gorm:"type:uuid;column:dialogue_id;not null;index" json:"dialogue_id"`
	SessionID  uuid.UUID `gorm:"type:uuid;column:session_id;not null;index" json:"session_id"`

	Goal string `gorm:"column:goal;type:text;not null" json:"goal"`

	SummaryTurnID *uuid.UUID `gorm:"type:uuid;column:summary_turn_id;index" json:"summary_turn_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (IntrospectionSession) TableName() string { return "introspection_session" }

// IntrospectionStep is one ordered step of an IntrospectionSession.
type IntrospectionStep struct {
	ID                     uuid.UUID               `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	IntrospectionSessionID uuid.UUID               `gorm:"type:uuid;column:introspection_session_id;not null;index" json:"introspection_session_id"`
	Ordinal                int                     `gorm:"column:ordinal;not null" json:"ordinal"`
	Purpose                string                  `gorm:"column:purpose;type:text;not null" json:"purpose"`
	ToolUsed               string                  `gorm:"column:tool_used;type:text;not null;default:''" json:"tool_used,omitempty"`
	ToolInput              datatypes.JSON          `gorm:"type:jsonb;column:tool_input;not null;default:'{}'" json:"tool_input,omitempty"`
	ToolOutput             datatypes.JSON          `gorm:"type:jsonb;column:tool_output;not null;default:'null'" json:"tool_output,omitempty"`
	MoodShift              string                  `gorm:"column:mood_shift;type:text;not null;default:''" json:"mood_shift,omitempty"`
	GeneratedEntry         string                  `gorm:"column:generated_entry;type:text;not null;default:''" json:"generated_entry,omitempty"`
	Status                 IntrospectionStepStatus `gorm:"column:status;type:text;not null;default:'ok'" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (IntrospectionStep) TableName() string { return "introspection_step" }

// CollaborationSession is a multi-agent task plus its participant list,
// used by ai_ai and ai_multi_human dialogue types.
type CollaborationSession struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DialogueID uuid.UUID      `gorm:"type:uuid;column:dialogue_id;not null;index" json:"dialogue_id"`
	Task       string         `gorm:"column:task;type:text;not null;default:''" json:"task"`
	Participants datatypes.JSON `gorm:"type:jsonb;column:participants;not null;default:'[]'" json:"participants"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (CollaborationSession) TableName() string { return "collaboration_session" }

// ParticipantIDs decodes Participants into the ordered id list it stores.
// A malformed or empty column decodes to nil rather than erroring, since
// callers treat "no participants recorded" as a normal, checkable state.
func (c CollaborationSession) ParticipantIDs() []uuid.UUID {
	var ids []uuid.UUID
	if len(c.Participants) == 0 {
		return ids
	}
	_ = json.Unmarshal(c.Participants, &ids)
	return ids
}
