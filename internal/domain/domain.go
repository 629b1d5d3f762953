package domain

import (
	"github.com/yungbote/genflow-backend/internal/domain/credits"
	"github.com/yungbote/genflow-backend/internal/domain/generation"
)

type Generation = generation.Generation
type GenerationStatus = generation.Status

const (
	GenerationQueued     = generation.StatusQueued
	GenerationProcessing = generation.StatusProcessing
	GenerationCompleted  = generation.StatusCompleted
	GenerationFailed     = generation.StatusFailed
	GenerationCancelled  = generation.StatusCancelled
)

type CreditAccount = credits.Account
type UsageEvent = credits.UsageEvent
type UsageEventType = credits.EventType

const (
	UsageEventDebit  = credits.EventDebit
	UsageEventRefund = credits.EventRefund
)

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&CreditAccount{},
		&Generation{},
		&UsageEvent{},
	}
}
