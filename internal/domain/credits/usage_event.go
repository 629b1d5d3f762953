package credits

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventDebit  EventType = "debit"
	EventRefund EventType = "refund"
)

// UsageEvent is one append-only ledger entry. At most one event of each type
// exists per generation.
type UsageEvent struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID      uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	EventType    EventType `gorm:"column:event_type;not null;uniqueIndex:idx_usage_event_generation_type,priority:2" json:"event_type"`
	Amount       int64     `gorm:"column:amount;not null" json:"amount"`
	GenerationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_usage_event_generation_type,priority:1" json:"generation_id"`
	BalanceAfter int64     `gorm:"column:balance_after;not null" json:"balance_after"`
	Reason       string    `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

func (UsageEvent) TableName() string { return "usage_event" }
