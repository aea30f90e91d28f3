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

type SessionFilter struct {
	DialogueID uuid.UUID
	Since      *time.Time
	Until      *time.Time
	Page       int
	PageSize   int
}

type SessionRepo interface {
	Create(dbc dbctx.Context, s *domain.Session) (*domain.Session, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Session, error)
	GetOpen(dbc dbctx.Context, dialogueID uuid.UUID) (*domain.Session, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Session, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Query(dbc dbctx.Context, f SessionFilter) (Page[*domain.Session], error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *domain.Session) (*domain.Session, error) {
	if s == nil || s.DialogueID == uuid.Nil {
		return nil, fmt.Errorf("invalid session")
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.StartAt.IsZero() {
		s.StartAt = time.Now().UTC()
	}
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Session, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Session
	if err := tx(dbc, r.db).WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOpen returns the single Session of dialogueID whose end_at is null, if
// any. At most one such row may exist by invariant.
func (r *sessionRepo) GetOpen(dbc dbctx.Context, dialogueID uuid.UUID) (*domain.Session, error) {
	if dialogueID == uuid.Nil {
		return nil, fmt.Errorf("missing dialogue_id")
	}
	var out domain.Session
	err := tx(dbc, r.db).WithContext(dbc.Ctx).
		Where("dialogue_id = ? AND end_at IS NULL", dialogueID).
		Order("start_at DESC").
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Session, error) {
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out domain.Session
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return tx(dbc, r.db).WithContext(dbc.Ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *sessionRepo) Query(dbc dbctx.Context, f SessionFilter) (Page[*domain.Session], error) {
	page, pageSize := NormalizePage(f.Page, f.PageSize)
	q := tx(dbc, r.db).WithContext(dbc.Ctx).Model(&domain.Session{})
	if f.DialogueID != uuid.Nil {
		q = q.Where("dialogue_id = ?", f.DialogueID)
	}
	if f.Since != nil {
		q = q.Where("start_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("start_at <= ?", *f.Until)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page[*domain.Session]{}, err
	}
	var out []*domain.Session
	if err := q.Order("start_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error; err != nil {
		return Page[*domain.Session]{}, err
	}
	return Page[*domain.Session]{
		Items: out, Total: total, PageNum: page, PageSize: pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
