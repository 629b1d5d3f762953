package generations

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/domain/generation"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type GenerationRepo interface {
	Create(dbc dbctx.Context, g *types.Generation) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Generation, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Generation, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.Generation, error)
	CountActiveByOwner(dbc dbctx.Context, ownerID uuid.UUID) (int64, error)
	UpdateIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.GenerationStatus, updates map[string]interface{}) (bool, error)
	UpdateIfActive(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
	RaiseProgress(dbc dbctx.Context, id uuid.UUID, progress int) (bool, error)
	MarkRefunded(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
	ListStale(dbc dbctx.Context, processingBefore, queuedBefore time.Time, limit int) ([]*types.Generation, error)
	ListPollable(dbc dbctx.Context, updatedBefore time.Time, limit int) ([]*types.Generation, error)
}

type generationRepo struct {
	db    *gorm.DB
	guard aggregates.CASGuard
	log   *logger.Logger
}

func NewGenerationRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRepo {
	return &generationRepo{
		db:    db,
		guard: aggregates.NewCASGuard(db),
		log:   baseLog.With("repo", "GenerationRepo"),
	}
}

func (r *generationRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *generationRepo) Create(dbc dbctx.Context, g *types.Generation) error {
	if g == nil {
		return nil
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return r.tx(dbc).Create(g).Error
}

func (r *generationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Generation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var g types.Generation
	err := r.tx(dbc).Where("id = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// LockByID reads the row FOR UPDATE. Call it inside a transaction.
func (r *generationRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Generation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var g types.Generation
	err := r.tx(dbc).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *generationRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.Generation, error) {
	var out []*types.Generation
	if ownerID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if err := r.tx(dbc).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationRepo) CountActiveByOwner(dbc dbctx.Context, ownerID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx(dbc).
		Model(&types.Generation{}).
		Where("owner_id = ? AND status IN ?", ownerID, generation.Strings(generation.ActiveStatuses)).
		Count(&n).Error
	return n, err
}

func (r *generationRepo) UpdateIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.GenerationStatus, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.guard.UpdateByStatus(dbc, types.Generation{}.TableName(), id, generation.Strings(allowed), updates)
}

// UpdateIfActive is the terminal-state guard: terminal rows never match.
func (r *generationRepo) UpdateIfActive(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	return r.UpdateIfStatus(dbc, id, generation.ActiveStatuses, updates)
}

func (r *generationRepo) RaiseProgress(dbc dbctx.Context, id uuid.UUID, progress int) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	res := r.tx(dbc).
		Model(&types.Generation{}).
		Where("id = ? AND status IN ? AND progress < ?", id, generation.Strings(generation.ActiveStatuses), progress).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkRefunded stamps refunded_at once; the only write a terminal row accepts.
func (r *generationRepo) MarkRefunded(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.tx(dbc).
		Model(&types.Generation{}).
		Where("id = ? AND refunded_at IS NULL", id).
		UpdateColumn("refunded_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *generationRepo) ListStale(dbc dbctx.Context, processingBefore, queuedBefore time.Time, limit int) ([]*types.Generation, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Generation
	err := r.tx(dbc).
		Where("(status = ? AND updated_at < ?) OR (status = ? AND created_at < ?)",
			string(types.GenerationProcessing), processingBefore,
			string(types.GenerationQueued), queuedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationRepo) ListPollable(dbc dbctx.Context, updatedBefore time.Time, limit int) ([]*types.Generation, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.Generation
	err := r.tx(dbc).
		Where("status = ? AND updated_at < ? AND external_execution_handle <> ''",
			string(types.GenerationProcessing), updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
