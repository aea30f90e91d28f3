package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DialogueType enumerates the seven supported participant topologies.
type DialogueType string

const (
	DialogueHumanAI           DialogueType = "human_ai"
	DialogueAISelf            DialogueType = "ai_self"
	DialogueAIAI              DialogueType = "ai_ai"
	DialogueHumanHumanPrivate DialogueType = "human_human_private"
	DialogueHumanHumanGroup   DialogueType = "human_human_group"
	DialogueHumanAIGroup      DialogueType = "human_ai_group"
	DialogueAIMultiHuman      DialogueType = "ai_multi_human"
)

// Dialogue is the unique persistent container for an interaction line
// between a fixed set of participants.
type Dialogue struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	DialogueType DialogueType `gorm:"column:dialogue_type;type:text;not null;index" json:"dialogue_type"`

	HumanID    *uuid.UUID `gorm:"type:uuid;column:human_id;index" json:"human_id,omitempty"`
	AIID       *uuid.UUID `gorm:"type:uuid;column:ai_id;index" json:"ai_id,omitempty"`
	RelationID *uuid.UUID `gorm:"type:uuid;column:relation_id;index" json:"relation_id,omitempty"`

	Title       string `gorm:"column:title;not null;default:''" json:"title"`
	Description string `gorm:"column:description;type:text;not null;default:''" json:"description"`

	IsActive       bool      `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	LastActivityAt time.Time `gorm:"column:last_activity_at;not null;default:now();index" json:"last_activity_at"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Dialogue) TableName() string { return "dialogue" }

// ResponseWindowOverride reads metadata.response_window_hours when present.
func (d Dialogue) ResponseWindowOverride() (time.Duration, bool) {
	return durationOverride(d.Metadata, "response_window_hours")
}

// SessionIdleThresholdOverride reads metadata.session_idle_threshold_hours.
func (d Dialogue) SessionIdleThresholdOverride() (time.Duration, bool) {
	return durationOverride(d.Metadata, "session_idle_threshold_hours")
}
