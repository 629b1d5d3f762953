package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/genflow-backend/internal/data/repos"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/domain/generation"
	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/flowengine"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

const pollConcurrency = 4

type ReconcileOutcome string

const (
	OutcomeApplied         ReconcileOutcome = "applied"
	OutcomeProgress        ReconcileOutcome = "progress"
	OutcomeNoChange        ReconcileOutcome = "no_change"
	OutcomeIgnoredTerminal ReconcileOutcome = "ignored_terminal"
)

// PushUpdate is a status notification from the engine callback.
type PushUpdate struct {
	GenerationID uuid.UUID
	ExecutionID  string
	Status       string
	Progress     *int
	Error        string
	Output       json.RawMessage
}

type PushResult struct {
	Outcome ReconcileOutcome       `json:"outcome"`
	Status  types.GenerationStatus `json:"status"`
}

type PullResult struct {
	Status types.GenerationStatus `json:"status"`
	Reason string                 `json:"reason,omitempty"`
	// Degraded means the engine gave no answer and the row is still inside
	// its liveness window, so nothing was changed.
	Degraded bool `json:"degraded,omitempty"`
}

type PollSummary struct {
	Polled   int `json:"polled"`
	Finished int `json:"finished"`
}

// StatusReconciler merges engine status into generation rows through two
// producers, push callbacks and pull polls, that share one guarded state machine.
type StatusReconciler interface {
	ApplyPush(ctx context.Context, u PushUpdate) (PushResult, error)
	Pull(ctx context.Context, generationID uuid.UUID) (PullResult, error)
	PollStale(ctx context.Context, staleAfter time.Duration, limit int) (PollSummary, error)
}

type statusReconciler struct {
	log         *logger.Logger
	cfg         OrchestrationConfig
	engine      flowengine.Client
	generations repos.GenerationRepo
	lifecycle   GenerationLifecycle
	notify      GenerationNotifier
	now         func() time.Time
}

func NewStatusReconciler(
	baseLog *logger.Logger,
	cfg OrchestrationConfig,
	engine flowengine.Client,
	generations repos.GenerationRepo,
	lifecycle GenerationLifecycle,
	notify GenerationNotifier,
) StatusReconciler {
	return &statusReconciler{
		log:         baseLog.With("service", "StatusReconciler"),
		cfg:         cfg.withDefaults(),
		engine:      engine,
		generations: generations,
		lifecycle:   lifecycle,
		notify:      notify,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *statusReconciler) ApplyPush(ctx context.Context, u PushUpdate) (PushResult, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	g, err := r.generations.GetByID(dbc, u.GenerationID)
	if err != nil {
		return PushResult{}, err
	}
	if g == nil {
		return PushResult{}, fmt.Errorf("%w: generation %s", types.ErrNotFound, u.GenerationID)
	}
	if g.Status.IsTerminal() {
		r.log.Debug("push ignored; generation terminal", "generation_id", g.ID, "status", string(g.Status), "reported", u.Status)
		return PushResult{Outcome: OutcomeIgnoredTerminal, Status: g.Status}, nil
	}

	status, ok := generation.ParseStatus(u.Status)
	if !ok {
		if strings.TrimSpace(u.Status) != "" || u.Progress == nil {
			r.log.Warn("push with unknown status", "generation_id", g.ID, "reported", u.Status)
			return PushResult{Outcome: OutcomeNoChange, Status: g.Status}, nil
		}
		status = types.GenerationProcessing
	}

	switch status {
	case types.GenerationCompleted:
		return r.pushTerminal(dbc, g, TerminalTransition{
			GenerationID: g.ID,
			To:           types.GenerationCompleted,
			Output:       u.Output,
			Source:       SourceCallback,
		})
	case types.GenerationFailed:
		if u.Error != "" {
			r.log.Info("engine reported failure", "generation_id", g.ID, "engine_error", u.Error)
		}
		return r.pushTerminal(dbc, g, TerminalTransition{
			GenerationID: g.ID,
			To:           types.GenerationFailed,
			ErrorMessage: UserFacingError(u.Error),
			Source:       SourceCallback,
		})
	case types.GenerationCancelled:
		return r.pushTerminal(dbc, g, TerminalTransition{
			GenerationID: g.ID,
			To:           types.GenerationCancelled,
			Source:       SourceCallback,
		})
	default:
		// Non-terminal pushes only ever move progress forward.
		if u.Progress == nil {
			return PushResult{Outcome: OutcomeNoChange, Status: g.Status}, nil
		}
		raised, err := r.raiseProgress(dbc, g, *u.Progress)
		if err != nil {
			return PushResult{}, err
		}
		if !raised {
			return PushResult{Outcome: OutcomeNoChange, Status: g.Status}, nil
		}
		return PushResult{Outcome: OutcomeProgress, Status: g.Status}, nil
	}
}

func (r *statusReconciler) pushTerminal(dbc dbctx.Context, g *types.Generation, t TerminalTransition) (PushResult, error) {
	res, err := r.lifecycle.Finish(dbc, t)
	if err != nil {
		return PushResult{}, err
	}
	if !res.Applied {
		cur := g.Status
		if res.Generation != nil {
			cur = res.Generation.Status
		}
		if !cur.IsTerminal() {
			r.log.Info("push not applicable yet", "generation_id", g.ID, "status", string(cur), "reported", string(t.To))
			return PushResult{Outcome: OutcomeNoChange, Status: cur}, nil
		}
		return PushResult{Outcome: OutcomeIgnoredTerminal, Status: cur}, nil
	}
	return PushResult{Outcome: OutcomeApplied, Status: res.Generation.Status}, nil
}

func (r *statusReconciler) raiseProgress(dbc dbctx.Context, g *types.Generation, progress int) (bool, error) {
	if progress <= g.Progress {
		r.log.Debug("progress regression ignored", "generation_id", g.ID, "current", g.Progress, "reported", progress)
		return false, nil
	}
	raised, err := r.generations.RaiseProgress(dbc, g.ID, progress)
	if err != nil {
		return false, fmt.Errorf("raise progress: %w", err)
	}
	if raised && r.notify != nil {
		cp := *g
		cp.Progress = min(progress, 100)
		r.notify.GenerationProgress(dbc.Ctx, &cp)
	}
	return raised, nil
}

func (r *statusReconciler) Pull(ctx context.Context, generationID uuid.UUID) (PullResult, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	g, err := r.generations.GetByID(dbc, generationID)
	if err != nil {
		return PullResult{}, err
	}
	if g == nil {
		return PullResult{}, fmt.Errorf("%w: generation %s", types.ErrNotFound, generationID)
	}
	return r.pull(dbc, g)
}

func (r *statusReconciler) pull(dbc dbctx.Context, g *types.Generation) (PullResult, error) {
	if g.Status.IsTerminal() {
		return PullResult{Status: g.Status, Reason: g.ErrorMessage}, nil
	}
	if !g.HasHandle() {
		return r.staleCheck(dbc, g, "awaiting_dispatch")
	}

	callCtx, cancel := context.WithTimeout(dbc.Ctx, r.cfg.EngineCallTimeout)
	ex, err := r.engine.GetExecution(callCtx, g.ExternalExecutionHandle)
	cancel()
	if err != nil {
		if flowengine.IsUnreachable(err) {
			r.log.Warn("engine unreachable; using staleness check",
				"generation_id", g.ID,
				"execution_id", g.ExternalExecutionHandle,
				"error", err,
			)
			return r.staleCheck(dbc, g, "engine_unreachable")
		}
		// The engine answered but the answer is unusable; the stored status stands.
		r.log.Error("engine status rejected",
			"generation_id", g.ID,
			"execution_id", g.ExternalExecutionHandle,
			"error", err,
		)
		return PullResult{Status: g.Status, Reason: "engine_error", Degraded: true}, nil
	}

	m := MapExecution(ex)
	switch m.Status {
	case types.GenerationCompleted:
		res, err := r.lifecycle.Finish(dbc, TerminalTransition{
			GenerationID: g.ID,
			To:           types.GenerationCompleted,
			Output:       ex.Output,
			Source:       SourcePoll,
		})
		if err != nil {
			return PullResult{}, err
		}
		return pullResultOf(res, g), nil
	case types.GenerationFailed:
		r.log.Info("engine reported failure", "generation_id", g.ID, "engine_error", m.EngineError)
		res, err := r.lifecycle.Finish(dbc, TerminalTransition{
			GenerationID: g.ID,
			To:           types.GenerationFailed,
			ErrorMessage: UserFacingError(m.EngineError),
			Source:       SourcePoll,
		})
		if err != nil {
			return PullResult{}, err
		}
		return pullResultOf(res, g), nil
	default:
		if m.Progress != nil {
			if _, err := r.raiseProgress(dbc, g, *m.Progress); err != nil {
				return PullResult{}, err
			}
		}
		return PullResult{Status: g.Status}, nil
	}
}

// staleCheck fails the generation once it has gone TIMEOUT without an
// update; inside the window it is a soft success flagged as degraded.
func (r *statusReconciler) staleCheck(dbc dbctx.Context, g *types.Generation, reason string) (PullResult, error) {
	now := r.now()
	if g.Staleness(now) <= r.cfg.GenerationTimeout {
		return PullResult{Status: g.Status, Reason: reason, Degraded: true}, nil
	}
	cutoff := now.Add(-r.cfg.GenerationTimeout)
	res, err := r.lifecycle.Finish(dbc, TerminalTransition{
		GenerationID: g.ID,
		To:           types.GenerationFailed,
		ErrorMessage: TimeoutFailureMessage,
		Source:       SourcePoll,
		Precondition: func(cur *types.Generation) bool { return cur.UpdatedAt.Before(cutoff) },
	})
	if err != nil {
		return PullResult{}, err
	}
	if res.Applied {
		return PullResult{Status: types.GenerationFailed, Reason: "timeout"}, nil
	}
	return pullResultOf(res, g), nil
}

func pullResultOf(res TransitionResult, fallback *types.Generation) PullResult {
	cur := res.Generation
	if cur == nil {
		cur = fallback
	}
	return PullResult{Status: cur.Status, Reason: cur.ErrorMessage}
}

// PollStale pulls processing generations that have been quiet for staleAfter,
// a fallback for callbacks that never arrive. Per-row failures are logged and
// left for the next cycle.
func (r *statusReconciler) PollStale(ctx context.Context, staleAfter time.Duration, limit int) (PollSummary, error) {
	ctx = ctxutil.Default(ctx)
	rows, err := r.generations.ListPollable(dbctx.Context{Ctx: ctx}, r.now().Add(-staleAfter), limit)
	if err != nil {
		return PollSummary{}, fmt.Errorf("list pollable: %w", err)
	}
	var finished atomic.Int64
	var eg errgroup.Group
	eg.SetLimit(pollConcurrency)
	for _, g := range rows {
		g := g
		eg.Go(func() error {
			res, err := r.pull(dbctx.Context{Ctx: ctx}, g)
			if err != nil {
				r.log.Warn("poll failed", "generation_id", g.ID, "error", err)
				return nil
			}
			if res.Status.IsTerminal() {
				finished.Add(1)
			}
			return nil
		})
	}
	_ = eg.Wait()
	out := PollSummary{Polled: len(rows), Finished: int(finished.Load())}
	observability.Current().ObserveSweep("poll", out.Finished)
	if out.Polled > 0 {
		r.log.Info("Poll sweep finished", "polled", out.Polled, "finished", out.Finished)
	}
	return out, nil
}
