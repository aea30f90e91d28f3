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

// DialogueFilter is the filter set accepted by the unified query endpoint
// for /api/query/dialogues.
type DialogueFilter struct {
	DialogueType domain.DialogueType
	HumanID      *uuid.UUID
	AIID         *uuid.UUID
	IsActive     *bool
	Since        *time.Time
	Until        *time.Time
	Query        string
	Page         int
	PageSize     int
}

type DialogueRepo interface {
	Create(dbc dbctx.Context, d *domain.Dialogue) (*domain.Dialogue, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Dialogue, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Dialogue, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Query(dbc dbctx.Context, f DialogueFilter) (Page[*domain.Dialogue], error)
}

type dialogueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDialogueRepo(db *gorm.DB, log *logger.Logger) DialogueRepo {
	return &dialogueRepo{db: db, log: log.With("repo", "DialogueRepo")}
}

func tx(dbc dbctx.Context, fallback *gorm.DB) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return fallback
}

func (r *dialogueRepo) Create(dbc dbctx.Context, d *domain.Dialogue) (*domain.Dialogue, error) {
	if d == nil {
		return nil, fmt.Errorf("nil dialogue")
	}
	now := time.Now().UTC()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.LastActivityAt.IsZero() {
		d.LastActivityAt = now
	}
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

func (r *dialogueRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Dialogue, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Dialogue
	err := tx(dbc, r.db).WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dialogueRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Dialogue, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out domain.Dialogue
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dialogueRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return tx(dbc, r.db).WithContext(dbc.Ctx).
		Model(&domain.Dialogue{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *dialogueRepo) Query(dbc dbctx.Context, f DialogueFilter) (Page[*domain.Dialogue], error) {
	page, pageSize := NormalizePage(f.Page, f.PageSize)
	q := tx(dbc, r.db).WithContext(dbc.Ctx).Model(&domain.Dialogue{})
	if f.DialogueType != "" {
		q = q.Where("dialogue_type = ?", f.DialogueType)
	}
	if f.HumanID != nil {
		q = q.Where("human_id = ?", *f.HumanID)
	}
	if f.AIID != nil {
		q = q.Where("ai_id = ?", *f.AIID)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("created_at <= ?", *f.Until)
	}
	if f.Query != "" {
		q = q.Where("title LIKE ? OR description LIKE ?", "%"+f.Query+"%", "%"+f.Query+"%")
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[*domain.Dialogue]{}, err
	}
	var out []*domain.Dialogue
	if err := q.Order("last_activity_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error; err != nil {
		return Page[*domain.Dialogue]{}, err
	}
	return Page[*domain.Dialogue]{
		Items: out, Total: total, PageNum: page, PageSize: pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
