package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContentType enumerates the modalities a Message may carry.
type ContentType string

const (
	ContentText          ContentType = "text"
	ContentImage         ContentType = "image"
	ContentAudio         ContentType = "audio"
	ContentToolInput     ContentType = "tool_input"
	ContentToolOutput    ContentType = "tool_output"
	ContentSystemContext ContentType = "system_context"
	ContentPrompt        ContentType = "prompt"
	ContentMarkdown      ContentType = "markdown"
	ContentQuoteReply    ContentType = "quote_reply"
	ContentCommand       ContentType = "command"
)

// MessageStatus tracks a Message's delivery lifecycle, added so a streaming
// assistant Message can be observed mid-flight by plain GET queries.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageStreaming MessageStatus = "streaming"
	MessageDone      MessageStatus = "done"
	MessageError     MessageStatus = "error"
)

// Message is the atomic unit of communication.
type Message struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DialogueID uuid.UUID `gorm:"type:uuid;column:dialogue_id;not null;index;index:idx_message_dialogue_seq,unique,priority:1" json:"dialogue_id"`
	SessionID  uuid.UUID `gorm:"type:uuid;column:session_id;not null;index" json:"session_id"`
	TurnID     uuid.UUID `gorm:"type:uuid;column:turn_id;not null;index" json:"turn_id"`

	// Seq is a per-Dialogue monotonic counter assigned by the Repository in
	// the same transaction as CreatedAt, giving pagination cursors a stable
	// tiebreak under concurrent writers.
	Seq int64 `gorm:"column:seq;not null;index:idx_message_dialogue_seq,unique,priority:2" json:"seq"`

	SenderRole Role      `gorm:"column:sender_role;type:text;not null;index" json:"sender_role"`
	SenderID   uuid.UUID `gorm:"type:uuid;column:sender_id;not null;index" json:"sender_id"`

	Content     string      `gorm:"column:content;type:text;not null;default:''" json:"content"`
	ContentType ContentType `gorm:"column:content_type;type:text;not null;index" json:"content_type"`
	Status      MessageStatus `gorm:"column:status;type:text;not null;default:'sent';index" json:"status"`

	// Metadata carries free-form fields: caption, transcription, reply_to,
	// tool_used, emotion, error_kind, partial, idempotency ownership, etc.
	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	// IdempotencyKey dedupes retried inbound sends; enforced by a partial
	// unique index over (dialogue_id, sender_id, idempotency_key) when set.
	IdempotencyKey string `gorm:"type:text;column:idempotency_key;not null;default:''" json:"idempotency_key,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Message) TableName() string { return "message" }
