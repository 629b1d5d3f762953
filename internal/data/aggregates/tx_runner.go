package aggregates

import (
	"context"
	"errors"

	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

// TxRunner provides the shared transaction boundary for multi-row writes.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
	// InTxWith joins dbc.Tx when present, otherwise opens a new transaction.
	InTxWith(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner returns a transaction runner backed by GORM transactions.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return errors.New("transaction runner has nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

func (r *gormTxRunner) InTxWith(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx != nil {
		if dbc.Ctx == nil {
			dbc.Ctx = context.Background()
		}
		return fn(dbc)
	}
	return r.InTx(dbc.Ctx, fn)
}
