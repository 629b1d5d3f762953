package credits

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type CreditAccountRepo interface {
	Create(dbc dbctx.Context, a *types.CreditAccount) error
	Get(dbc dbctx.Context, ownerID uuid.UUID) (*types.CreditAccount, error)
	LockByOwner(dbc dbctx.Context, ownerID uuid.UUID) (*types.CreditAccount, error)
	// DebitIfSufficient subtracts amount only while the balance covers it.
	DebitIfSufficient(dbc dbctx.Context, ownerID uuid.UUID, amount int64) (bool, error)
	Credit(dbc dbctx.Context, ownerID uuid.UUID, amount int64) error
}

type creditAccountRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCreditAccountRepo(db *gorm.DB, baseLog *logger.Logger) CreditAccountRepo {
	return &creditAccountRepo{
		db:  db,
		log: baseLog.With("repo", "CreditAccountRepo"),
	}
}

func (r *creditAccountRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *creditAccountRepo) Create(dbc dbctx.Context, a *types.CreditAccount) error {
	if a == nil {
		return nil
	}
	return r.tx(dbc).Create(a).Error
}

func (r *creditAccountRepo) Get(dbc dbctx.Context, ownerID uuid.UUID) (*types.CreditAccount, error) {
	return r.load(r.tx(dbc), ownerID)
}

func (r *creditAccountRepo) LockByOwner(dbc dbctx.Context, ownerID uuid.UUID) (*types.CreditAccount, error) {
	return r.load(r.tx(dbc).Clauses(clause.Locking{Strength: "UPDATE"}), ownerID)
}

func (r *creditAccountRepo) load(q *gorm.DB, ownerID uuid.UUID) (*types.CreditAccount, error) {
	if ownerID == uuid.Nil {
		return nil, nil
	}
	var a types.CreditAccount
	err := q.Where("owner_id = ?", ownerID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *creditAccountRepo) DebitIfSufficient(dbc dbctx.Context, ownerID uuid.UUID, amount int64) (bool, error) {
	res := r.tx(dbc).
		Model(&types.CreditAccount{}).
		Where("owner_id = ? AND credits_balance >= ?", ownerID, amount).
		Updates(map[string]interface{}{
			"credits_balance": gorm.Expr("credits_balance - ?", amount),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *creditAccountRepo) Credit(dbc dbctx.Context, ownerID uuid.UUID, amount int64) error {
	res := r.tx(dbc).
		Model(&types.CreditAccount{}).
		Where("owner_id = ?", ownerID).
		Updates(map[string]interface{}{
			"credits_balance": gorm.Expr("credits_balance + ?", amount),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
