package generation

import "strings"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ActiveStatuses count against an owner's concurrency limit.
var ActiveStatuses = []Status{StatusQueued, StatusProcessing}

var TerminalStatuses = []Status{StatusCompleted, StatusFailed, StatusCancelled}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusProcessing
}

// Refundable reports whether reaching s returns the debited credits.
func (s Status) Refundable() bool {
	return s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
// Terminal states have no outgoing edges. Completion requires processing:
// a queued row has no execution to have completed.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		switch to {
		case StatusProcessing, StatusFailed, StatusCancelled:
			return true
		}
	case StatusProcessing:
		switch to {
		case StatusCompleted, StatusFailed, StatusCancelled:
			return true
		}
	}
	return false
}

// ParseStatus accepts the canonical names plus the aliases reported by
// workflow callbacks ("success", "error", "running", ...).
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "new", "waiting":
		return StatusQueued, true
	case "processing", "running", "in_progress":
		return StatusProcessing, true
	case "completed", "complete", "success", "succeeded", "done":
		return StatusCompleted, true
	case "failed", "failure", "error", "crashed":
		return StatusFailed, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	default:
		return "", false
	}
}

func Strings(in []Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
