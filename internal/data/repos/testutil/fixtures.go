package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedAccount(tb testing.TB, ctx context.Context, db *gorm.DB, plan string, balance int64) *types.CreditAccount {
	tb.Helper()
	now := time.Now().UTC()
	a := &types.CreditAccount{
		OwnerID:        uuid.New(),
		Plan:           plan,
		CreditsBalance: balance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed account: %v", err)
	}
	return a
}

// SeedGeneration inserts a generation whose timestamps are age in the past.
func SeedGeneration(tb testing.TB, ctx context.Context, db *gorm.DB, ownerID uuid.UUID, status types.GenerationStatus, credits int64, age time.Duration) *types.Generation {
	tb.Helper()
	at := time.Now().UTC().Add(-age)
	g := &types.Generation{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		FlowID:      "blog-post",
		Status:      status,
		CreditsUsed: credits,
		Input:       datatypes.JSON([]byte("{}")),
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if status == types.GenerationProcessing {
		g.ExternalExecutionHandle = "exec-" + g.ID.String()[:8]
	}
	if err := db.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed generation: %v", err)
	}
	return g
}

func Balance(tb testing.TB, ctx context.Context, db *gorm.DB, ownerID uuid.UUID) int64 {
	tb.Helper()
	var a types.CreditAccount
	if err := db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&a).Error; err != nil {
		tb.Fatalf("load account: %v", err)
	}
	return a.CreditsBalance
}

func CountEvents(tb testing.TB, ctx context.Context, db *gorm.DB, generationID uuid.UUID, eventType types.UsageEventType) int64 {
	tb.Helper()
	var n int64
	if err := db.WithContext(ctx).Model(&types.UsageEvent{}).
		Where("generation_id = ? AND event_type = ?", generationID, eventType).
		Count(&n).Error; err != nil {
		tb.Fatalf("count events: %v", err)
	}
	return n
}

func Reload(tb testing.TB, ctx context.Context, db *gorm.DB, id uuid.UUID) *types.Generation {
	tb.Helper()
	var g types.Generation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		tb.Fatalf("reload generation: %v", err)
	}
	return &g
}

func PtrInt(v int) *int { return &v }
