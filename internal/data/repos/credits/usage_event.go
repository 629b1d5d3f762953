package credits

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type UsageEventRepo interface {
	Create(dbc dbctx.Context, ev *types.UsageEvent) error
	ExistsForGeneration(dbc dbctx.Context, generationID uuid.UUID, eventType types.UsageEventType) (bool, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.UsageEvent, error)
}

type usageEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUsageEventRepo(db *gorm.DB, baseLog *logger.Logger) UsageEventRepo {
	return &usageEventRepo{
		db:  db,
		log: baseLog.With("repo", "UsageEventRepo"),
	}
}

func (r *usageEventRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *usageEventRepo) Create(dbc dbctx.Context, ev *types.UsageEvent) error {
	if ev == nil {
		return nil
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	return r.tx(dbc).Create(ev).Error
}

func (r *usageEventRepo) ExistsForGeneration(dbc dbctx.Context, generationID uuid.UUID, eventType types.UsageEventType) (bool, error) {
	var n int64
	err := r.tx(dbc).
		Model(&types.UsageEvent{}).
		Where("generation_id = ? AND event_type = ?", generationID, string(eventType)).
		Count(&n).Error
	return n > 0, err
}

func (r *usageEventRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.UsageEvent, error) {
	var out []*types.UsageEvent
	if ownerID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
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
