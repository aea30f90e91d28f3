package repos

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type MessageFilter struct {
	DialogueID  uuid.UUID
	SessionID   uuid.UUID
	TurnID      uuid.UUID
	SenderRole  domain.Role
	ContentType domain.ContentType
	Since       *time.Time
	Until       *time.Time
	Query       string
	Page        int
	PageSize    int
}

type MessageRepo interface {
	// Create persists one Message, assigning CreatedAt and a per-Dialogue
	// Seq inside the given transaction so ordering never trusts client
	// clocks (per the ordering invariant of §5).
	Create(dbc dbctx.Context, m *domain.Message) (*domain.Message, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Message, error)
	ListByTurn(dbc dbctx.Context, turnID uuid.UUID) ([]*domain.Message, error)
	// ListRecentBySession selects the limit most recent Messages of session
	// (by seq) and returns them oldest first, for ContextBuilder's
	// budget-bounded walk.
	ListRecentBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*domain.Message, error)
	FindByIdempotencyKey(dbc dbctx.Context, dialogueID, senderID uuid.UUID, key string) (*domain.Message, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	Query(dbc dbctx.Context, f MessageFilter) (Page[*domain.Message], error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, m *domain.Message) (*domain.Message, error) {
	if m == nil || m.DialogueID == uuid.Nil || m.TurnID == uuid.Nil {
		return nil, fmt.Errorf("invalid message")
	}
	txx := tx(dbc, r.db)
	now := time.Now().UTC()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	var maxSeq int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("dialogue_id = ?", m.DialogueID).
		Scan(&maxSeq).Error; err != nil {
		return nil, err
	}
	m.Seq = maxSeq + 1

	if err := txx.WithContext(dbc.Ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *messageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Message, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Message
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *messageRepo) ListByTurn(dbc dbctx.Context, turnID uuid.UUID) ([]*domain.Message, error) {
	if turnID == uuid.Nil {
		return nil, fmt.Errorf("missing turn_id")
	}
	var out []*domain.Message
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("turn_id = ?", turnID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) ListRecentBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*domain.Message, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*domain.Message
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) FindByIdempotencyKey(dbc dbctx.Context, dialogueID, senderID uuid.UUID, key string) (*domain.Message, error) {
	if key == "" {
		return nil, nil
	}
	var out domain.Message
	err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("dialogue_id = ? AND sender_id = ? AND idempotency_key = ?", dialogueID, senderID, key).
		Take(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *messageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return tx(dbc, r.db).WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *messageRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&domain.Message{}).Error
}

func (r *messageRepo) Query(dbc dbctx.Context, f MessageFilter) (Page[*domain.Message], error) {
	page, pageSize := NormalizePage(f.Page, f.PageSize)
	q := tx(dbc, r.db).WithContext(dbc.Ctx).Model(&domain.Message{})
	if f.DialogueID != uuid.Nil {
		q = q.Where("dialogue_id = ?", f.DialogueID)
	}
	if f.SessionID != uuid.Nil {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.TurnID != uuid.Nil {
		q = q.Where("turn_id = ?", f.TurnID)
	}
	if f.SenderRole != "" {
		q = q.Where("sender_role = ?", f.SenderRole)
	}
	if f.ContentType != "" {
		q = q.Where("content_type = ?", f.ContentType)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("created_at <= ?", *f.Until)
	}
	if f.Query != "" {
		q = q.Where("content LIKE ?", "%"+f.Query+"%")
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[*domain.Message]{}, err
	}
	var out []*domain.Message
	if err := q.Order("dialogue_id, seq DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error; err != nil {
		return Page[*domain.Message]{}, err
	}
	return Page[*domain.Message]{
		Items: out, Total: total, PageNum: page, PageSize: pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
