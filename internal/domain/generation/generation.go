package generation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const MaxErrorMessageLen = 200

type Generation struct {
	ID                      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID                 uuid.UUID      `gorm:"type:uuid;not null;index:idx_generation_owner_status,priority:1" json:"owner_id"`
	FlowID                  string         `gorm:"column:flow_id;not null;index" json:"flow_id"`
	Status                  Status         `gorm:"column:status;not null;index:idx_generation_owner_status,priority:2;index:idx_generation_status_updated,priority:1" json:"status"`
	Progress                int            `gorm:"column:progress;not null;default:0" json:"progress"`
	CreditsUsed             int64          `gorm:"column:credits_used;not null;default:0" json:"credits_used"`
	ExternalExecutionHandle string         `gorm:"column:external_execution_handle;index" json:"external_execution_handle,omitempty"`
	ErrorMessage            string         `gorm:"column:error_message" json:"error_message,omitempty"`
	Input                   datatypes.JSON `gorm:"column:input" json:"input,omitempty"`
	Output                  datatypes.JSON `gorm:"column:output" json:"output,omitempty"`
	RefundedAt              *time.Time     `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	DispatchedAt            *time.Time     `gorm:"column:dispatched_at" json:"dispatched_at,omitempty"`
	FinishedAt              *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt               time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt               time.Time      `gorm:"not null;index:idx_generation_status_updated,priority:2" json:"updated_at"`
}

func (Generation) TableName() string { return "generation" }

func (g *Generation) HasHandle() bool {
	return g != nil && g.ExternalExecutionHandle != ""
}

// Staleness is how long the row has gone without an update as of now.
func (g *Generation) Staleness(now time.Time) time.Duration {
	if g == nil || g.UpdatedAt.IsZero() {
		return 0
	}
	return now.Sub(g.UpdatedAt)
}
