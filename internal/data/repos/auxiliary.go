package repos

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type ToolCallRepo interface {
	Create(dbc dbctx.Context, tc *domain.ToolCall) (*domain.ToolCall, error)
	ListByTurn(dbc dbctx.Context, turnID uuid.UUID) ([]*domain.ToolCall, error)
}

type toolCallRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewToolCallRepo(db *gorm.DB, log *logger.Logger) ToolCallRepo {
	return &toolCallRepo{db: db, log: log.With("repo", "ToolCallRepo")}
}

func (r *toolCallRepo) Create(dbc dbctx.Context, tc *domain.ToolCall) (*domain.ToolCall, error) {
	if tc == nil || tc.DialogueID == uuid.Nil || tc.TurnID == uuid.Nil {
		return nil, fmt.Errorf("invalid tool call")
	}
	if tc.ID == uuid.Nil {
		tc.ID = uuid.New()
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now().UTC()
	}
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Create(tc).Error; err != nil {
		return nil, err
	}
	return tc, nil
}

func (r *toolCallRepo) ListByTurn(dbc dbctx.Context, turnID uuid.UUID) ([]*domain.ToolCall, error) {
	var out []*domain.ToolCall
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("turn_id = ?", turnID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type EventLogRepo interface {
	Append(dbc dbctx.Context, e *domain.EventLog) error
	ListByDialogue(dbc dbctx.Context, dialogueID uuid.UUID, limit int) ([]*domain.EventLog, error)
}

type eventLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventLogRepo(db *gorm.DB, log *logger.Logger) EventLogRepo {
	return &eventLogRepo{db: db, log: log.With("repo", "EventLogRepo")}
}

func (r *eventLogRepo) Append(dbc dbctx.Context, e *domain.EventLog) error {
	if e == nil || e.DialogueID == uuid.Nil {
		return fmt.Errorf("invalid event log entry")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return tx(dbc, r.db).WithContext(dbc.Ctx).Create(e).Error
}

func (r *eventLogRepo) ListByDialogue(dbc dbctx.Context, dialogueID uuid.UUID, limit int) ([]*domain.EventLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*domain.EventLog
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("dialogue_id = ?", dialogueID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type IntrospectionRepo interface {
	CreateSession(dbc dbctx.Context, s *domain.IntrospectionSession) (*domain.IntrospectionSession, error)
	AppendStep(dbc dbctx.Context, step *domain.IntrospectionStep) (*domain.IntrospectionStep, error)
	UpdateSessionFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ListSteps(dbc dbctx.Context, sessionID uuid.UUID) ([]*domain.IntrospectionStep, error)
}

type introspectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIntrospectionRepo(db *gorm.DB, log *logger.Logger) IntrospectionRepo {
	return &introspectionRepo{db: db, log: log.With("repo", "IntrospectionRepo")}
}

func (r *introspectionRepo) CreateSession(dbc dbctx.Context, s *domain.IntrospectionSession) (*domain.IntrospectionSession, error) {
	if s == nil || s.DialogueID == uuid.Nil || s.SessionID == uuid.Nil {
		return nil, fmt.Errorf("invalid introspection session")
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *introspectionRepo) AppendStep(dbc dbctx.Context, step *domain.IntrospectionStep) (*domain.IntrospectionStep, error) {
	if step == nil || step.IntrospectionSessionID == uuid.Nil {
		return nil, fmt.Errorf("invalid introspection step")
	}
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Create(step).Error; err != nil {
		return nil, err
	}
	return step, nil
}

func (r *introspectionRepo) UpdateSessionFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return tx(dbc, r.db).WithContext(dbc.Ctx).
		Model(&domain.IntrospectionSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *introspectionRepo) ListSteps(dbc dbctx.Context, sessionID uuid.UUID) ([]*domain.IntrospectionStep, error) {
	var out []*domain.IntrospectionStep
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("introspection_session_id = ?", sessionID).
		Order("ordinal ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type CollaborationRepo interface {
	Create(dbc dbctx.Context, c *domain.CollaborationSession) (*domain.CollaborationSession, error)
	GetByDialogue(dbc dbctx.Context, dialogueID uuid.UUID) (*domain.CollaborationSession, error)
}

type collaborationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCollaborationRepo(db *gorm.DB, log *logger.Logger) CollaborationRepo {
	return &collaborationRepo{db: db, log: log.With("repo", "CollaborationRepo")}
}

func (r *collaborationRepo) Create(dbc dbctx.Context, c *domain.CollaborationSession) (*domain.CollaborationSession, error) {
	if c == nil || c.DialogueID == uuid.Nil {
		return nil, fmt.Errorf("invalid collaboration session")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *collaborationRepo) GetByDialogue(dbc dbctx.Context, dialogueID uuid.UUID) (*domain.CollaborationSession, error) {
	var out domain.CollaborationSession
	err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("dialogue_id = ?", dialogueID).
		Order("created_at DESC").
		Take(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
