package credits

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	OwnerID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner_id"`
	Plan           string    `gorm:"column:plan;not null;default:'free'" json:"plan"`
	CreditsBalance int64     `gorm:"column:credits_balance;not null;default:0" json:"credits_balance"`
	// MaxConcurrentGenerations overrides the plan limit when set.
	MaxConcurrentGenerations *int      `gorm:"column:max_concurrent_generations" json:"max_concurrent_generations,omitempty"`
	CreatedAt                time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt                time.Time `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "credit_account" }
