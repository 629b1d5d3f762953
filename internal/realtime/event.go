package realtime

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventGenerationCreated   EventType = "generation.created"
	EventGenerationProgress  EventType = "generation.progress"
	EventGenerationCompleted EventType = "generation.completed"
	EventGenerationFailed    EventType = "generation.failed"
	EventGenerationCancelled EventType = "generation.cancelled"
)

// Event is one generation lifecycle update fanned out to subscribers.
// Channel is the owner id so each user only sees their own generations.
type Event struct {
	Channel      string    `json:"channel"`
	Event        EventType `json:"event"`
	GenerationID uuid.UUID `json:"generation_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	At           time.Time `json:"at"`
}
