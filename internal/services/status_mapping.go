package services

import (
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/domain/generation"
	"github.com/yungbote/genflow-backend/internal/platform/flowengine"
)

const (
	GenericFailureMessage  = "Generation failed. Your credits have been refunded."
	DispatchFailureMessage = "Generation could not be started. Your credits have been refunded."
	TimeoutFailureMessage  = "Generation timed out. Your credits have been refunded."
)

// MappedExecution is an engine execution translated into internal terms.
type MappedExecution struct {
	Status types.GenerationStatus
	// EngineError is the raw engine message; log it, never show it.
	EngineError string
	Progress    *int
}

// MapExecution applies the engine status policy: finished without error is
// completed; finished or stopped with an error is failed; anything else is
// still processing.
func MapExecution(ex *flowengine.Execution) MappedExecution {
	if ex == nil {
		return MappedExecution{Status: types.GenerationProcessing}
	}
	status := strings.ToLower(strings.TrimSpace(ex.Status))
	errorStatus := status == "error" || status == "crashed" || status == "failed"
	hasError := strings.TrimSpace(ex.ErrorMessage) != "" || errorStatus
	finished := ex.Finished || status == "success"

	out := MappedExecution{Status: types.GenerationProcessing, Progress: ex.Progress}
	switch {
	case finished && !hasError:
		out.Status = types.GenerationCompleted
	case finished && hasError, ex.StoppedAt != nil && hasError:
		out.Status = types.GenerationFailed
		out.EngineError = strings.TrimSpace(ex.ErrorMessage)
		if out.EngineError == "" {
			out.EngineError = "execution ended with status " + status
		}
	}
	return out
}

// UserFacingError turns an engine diagnostic into a bounded message safe to
// store on the generation.
func UserFacingError(raw string) string {
	line := strings.TrimSpace(raw)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return GenericFailureMessage
	}
	msg := "Generation failed: " + line
	if utf8.RuneCountInString(msg) > generation.MaxErrorMessageLen {
		r := []rune(msg)
		msg = string(r[:generation.MaxErrorMessageLen-3]) + "..."
	}
	return msg
}
