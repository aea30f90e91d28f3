package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/pkg/dbctx"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

type TurnFilter struct {
	DialogueID uuid.UUID
	SessionID  uuid.UUID
	Status     domain.TurnStatus
	Since      *time.Time
	Until      *time.Time
	Page       int
	PageSize   int
}

type TurnRepo interface {
	Create(dbc dbctx.Context, t *domain.Turn) (*domain.Turn, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Turn, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Turn, error)
	GetLatestBySession(dbc dbctx.Context, sessionID uuid.UUID) (*domain.Turn, error)
	ListPendingBefore(dbc dbctx.Context, deadline time.Time, limit int) ([]*domain.Turn, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Query(dbc dbctx.Context, f TurnFilter) (Page[*domain.Turn], error)
}

type turnRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTurnRepo(db *gorm.DB, log *logger.Logger) TurnRepo {
	return &turnRepo{db: db, log: log.With("repo", "TurnRepo")}
}

func (r *turnRepo) Create(dbc dbctx.Context, t *domain.Turn) (*domain.Turn, error) {
	if t == nil || t.DialogueID == uuid.Nil || t.SessionID == uuid.Nil {
		return nil, fmt.Errorf("invalid turn")
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

func (r *turnRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Turn, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Turn
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *turnRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Turn, error) {
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out domain.Turn
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *turnRepo) GetLatestBySession(dbc dbctx.Context, sessionID uuid.UUID) (*domain.Turn, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	var out domain.Turn
	err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("started_at DESC").
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPendingBefore returns pending Turns whose deadline has already
// elapsed as of `deadline` (normally time.Now()), for the Turn-sweeper.
func (r *turnRepo) ListPendingBefore(dbc dbctx.Context, deadline time.Time, limit int) ([]*domain.Turn, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var out []*domain.Turn
	err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("status = ? AND deadline <= ?", domain.TurnPending, deadline).
		Order("deadline ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *turnRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return tx(dbc, r.db).WithContext(dbc.Ctx).
		Model(&domain.Turn{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *turnRepo) Query(dbc dbctx.Context, f TurnFilter) (Page[*domain.Turn], error) {
	page, pageSize := NormalizePage(f.Page, f.PageSize)
	q := tx(dbc, r.db).WithContext(dbc.Ctx).Model(&domain.Turn{})
	if f.DialogueID != uuid.Nil {
		q = q.Where("dialogue_id = ?", f.DialogueID)
	}
	if f.SessionID != uuid.Nil {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Since != nil {
		q = q.Where("started_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("started_at <= ?", *f.Until)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[*domain.Turn]{}, err
	}
	var out []*domain.Turn
	if err := q.Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error; err != nil {
		return Page[*domain.Turn]{}, err
	}
	return Page[*domain.Turn]{
		Items: out, Total: total, PageNum: page, PageSize: pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
