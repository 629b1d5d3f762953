package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	"github.com/yungbote/genflow-backend/internal/data/repos"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/domain/generation"
	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type TransitionSource string

const (
	SourceDispatch TransitionSource = "dispatch"
	SourceCallback TransitionSource = "callback"
	SourcePoll     TransitionSource = "poll"
	SourceReaper   TransitionSource = "reaper"
	SourceCancel   TransitionSource = "cancel"
)

type TerminalTransition struct {
	GenerationID uuid.UUID
	To           types.GenerationStatus
	ErrorMessage string
	Output       json.RawMessage
	Source       TransitionSource
	// Precondition is evaluated against the locked row; false skips the transition.
	Precondition func(g *types.Generation) bool
}

type TransitionResult struct {
	Applied  bool
	Refunded bool
	// Generation is the row as it stands after the call.
	Generation *types.Generation
}

// GenerationLifecycle owns every move into a terminal state. The status
// change and any refund commit together, and a terminal row is never
// written again except for the refund marker.
type GenerationLifecycle interface {
	Finish(dbc dbctx.Context, t TerminalTransition) (TransitionResult, error)
}

type generationLifecycle struct {
	log         *logger.Logger
	txr         aggregates.TxRunner
	generations repos.GenerationRepo
	ledger      CreditLedger
	notify      GenerationNotifier
}

func NewGenerationLifecycle(baseLog *logger.Logger, txr aggregates.TxRunner, generations repos.GenerationRepo, ledger CreditLedger, notify GenerationNotifier) GenerationLifecycle {
	return &generationLifecycle{
		log:         baseLog.With("service", "GenerationLifecycle"),
		txr:         txr,
		generations: generations,
		ledger:      ledger,
		notify:      notify,
	}
}

func (l *generationLifecycle) Finish(dbc dbctx.Context, t TerminalTransition) (TransitionResult, error) {
	if !t.To.IsTerminal() {
		return TransitionResult{}, fmt.Errorf("%w: %q is not a terminal status", types.ErrInvalidArgument, t.To)
	}
	var res TransitionResult
	err := l.txr.InTxWith(dbc, func(dbc dbctx.Context) error {
		res = TransitionResult{}
		g, err := l.generations.LockByID(dbc, t.GenerationID)
		if err != nil {
			return fmt.Errorf("lock generation: %w", err)
		}
		if g == nil {
			return fmt.Errorf("%w: generation %s", types.ErrNotFound, t.GenerationID)
		}
		res.Generation = g
		if g.Status.IsTerminal() || !generation.CanTransition(g.Status, t.To) {
			return nil
		}
		if t.Precondition != nil && !t.Precondition(g) {
			return nil
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":      string(t.To),
			"finished_at": now,
			"updated_at":  now,
		}
		switch t.To {
		case types.GenerationCompleted:
			updates["progress"] = 100
			updates["error_message"] = ""
			if len(t.Output) > 0 {
				updates["output"] = datatypes.JSON(t.Output)
			}
		case types.GenerationFailed:
			msg := strings.TrimSpace(t.ErrorMessage)
			if msg == "" {
				msg = GenericFailureMessage
			}
			updates["error_message"] = msg
		case types.GenerationCancelled:
			updates["error_message"] = ""
		}
		ok, err := l.generations.UpdateIfActive(dbc, g.ID, updates)
		if err != nil {
			return fmt.Errorf("update generation: %w", err)
		}
		if !ok {
			return nil
		}
		res.Applied = true

		after := *g
		after.Status = t.To
		after.UpdatedAt = now
		after.FinishedAt = &now
		after.ErrorMessage, _ = updates["error_message"].(string)
		if t.To == types.GenerationCompleted {
			after.Progress = 100
			if len(t.Output) > 0 {
				after.Output = datatypes.JSON(t.Output)
			}
		}
		res.Generation = &after

		if !t.To.Refundable() {
			return nil
		}
		outcome, err := l.ledger.Refund(dbc, g.OwnerID, g.CreditsUsed, g.ID, fmt.Sprintf("generation %s (%s)", t.To, t.Source))
		if err != nil {
			return fmt.Errorf("refund: %w", err)
		}
		res.Refunded = outcome == RefundOK
		if _, err := l.generations.MarkRefunded(dbc, g.ID, now); err != nil {
			return fmt.Errorf("mark refunded: %w", err)
		}
		after.RefundedAt = &now
		return nil
	})
	if errors.Is(err, types.ErrAlreadyRefunded) && dbc.Tx == nil {
		l.log.Warn("terminal transition rolled back by refund backstop", "generation_id", t.GenerationID, "to", string(t.To), "source", string(t.Source))
		cur, gerr := l.generations.GetByID(dbctx.Context{Ctx: dbc.Ctx}, t.GenerationID)
		if gerr != nil {
			return TransitionResult{}, gerr
		}
		return TransitionResult{Generation: cur}, nil
	}
	if err != nil {
		return TransitionResult{}, err
	}
	if !res.Applied {
		if res.Generation != nil {
			l.log.Debug("terminal transition skipped",
				"generation_id", t.GenerationID,
				"current", string(res.Generation.Status),
				"to", string(t.To),
				"source", string(t.Source),
			)
		}
		return res, nil
	}
	l.log.Info("Generation finished",
		"generation_id", t.GenerationID,
		"owner_id", res.Generation.OwnerID,
		"status", string(t.To),
		"source", string(t.Source),
		"refunded", res.Refunded,
	)
	var refunded int64
	if res.Refunded {
		refunded = res.Generation.CreditsUsed
	}
	observability.Current().ObserveTransition(string(t.To), string(t.Source), refunded)
	if l.notify != nil {
		l.notify.GenerationFinished(dbc.Ctx, res.Generation)
	}
	return res, nil
}
