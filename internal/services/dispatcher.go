package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/genflow-backend/internal/data/repos"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/flowengine"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type OrchestrationConfig struct {
	// GenerationTimeout is the liveness window for queued and processing rows.
	GenerationTimeout time.Duration
	// EngineCallTimeout bounds every trigger, poll and stop call.
	EngineCallTimeout time.Duration
	// CallbackURL is handed to the engine so it can push status back.
	CallbackURL string
}

func (c OrchestrationConfig) withDefaults() OrchestrationConfig {
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 15 * time.Minute
	}
	if c.EngineCallTimeout <= 0 {
		c.EngineCallTimeout = 10 * time.Second
	}
	return c
}

// WorkflowDispatcher submits a queued generation to the engine exactly once.
type WorkflowDispatcher interface {
	Dispatch(ctx context.Context, g *types.Generation) (*types.Generation, error)
}

type workflowDispatcher struct {
	log         *logger.Logger
	cfg         OrchestrationConfig
	engine      flowengine.Client
	generations repos.GenerationRepo
	lifecycle   GenerationLifecycle
	plans       *PlanCatalog
}

func NewWorkflowDispatcher(
	baseLog *logger.Logger,
	cfg OrchestrationConfig,
	engine flowengine.Client,
	generations repos.GenerationRepo,
	lifecycle GenerationLifecycle,
	plans *PlanCatalog,
) WorkflowDispatcher {
	return &workflowDispatcher{
		log:         baseLog.With("service", "WorkflowDispatcher"),
		cfg:         cfg.withDefaults(),
		engine:      engine,
		generations: generations,
		lifecycle:   lifecycle,
		plans:       plans,
	}
}

func (d *workflowDispatcher) Dispatch(ctx context.Context, g *types.Generation) (*types.Generation, error) {
	ctx = ctxutil.Default(ctx)
	if g == nil {
		return nil, fmt.Errorf("%w: nil generation", types.ErrInvalidArgument)
	}
	flow, _ := d.plans.Flow(g.FlowID)

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.EngineCallTimeout)
	res, err := d.engine.Trigger(callCtx, flowengine.TriggerRequest{
		FlowID:       g.FlowID,
		WebhookPath:  flow.WebhookPath,
		GenerationID: g.ID,
		CallbackURL:  d.cfg.CallbackURL,
		Input:        json.RawMessage(g.Input),
	})
	cancel()
	if err != nil {
		d.log.Warn("dispatch failed; failing generation", "generation_id", g.ID, "flow_id", g.FlowID, "error", err)
		// The request may already be gone; the rollback must still commit.
		fr, ferr := d.lifecycle.Finish(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, TerminalTransition{
			GenerationID: g.ID,
			To:           types.GenerationFailed,
			ErrorMessage: DispatchFailureMessage,
			Source:       SourceDispatch,
		})
		if ferr != nil {
			d.log.Error("failed to roll back undispatched generation", "generation_id", g.ID, "error", ferr)
			return g, fmt.Errorf("%w: %w (rollback: %v)", types.ErrDispatchFailure, err, ferr)
		}
		return fr.Generation, fmt.Errorf("%w: %w", types.ErrDispatchFailure, err)
	}

	now := time.Now().UTC()
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	ok, err := d.generations.UpdateIfStatus(dbc, g.ID, []types.GenerationStatus{types.GenerationQueued}, map[string]interface{}{
		"status":                    string(types.GenerationProcessing),
		"external_execution_handle": res.ExecutionID,
		"dispatched_at":             now,
		"updated_at":                now,
	})
	if err != nil {
		d.log.Error("record execution handle failed", "generation_id", g.ID, "execution_id", res.ExecutionID, "error", err)
		d.stopOrphan(ctx, g, res.ExecutionID)
		return g, fmt.Errorf("record execution handle: %w", err)
	}

	cur, err := d.generations.GetByID(dbc, g.ID)
	if err != nil || cur == nil {
		if err == nil {
			err = fmt.Errorf("%w: generation %s", types.ErrNotFound, g.ID)
		}
		return g, err
	}
	if !ok {
		// Lost the race to a cancel or reap: the terminal row stays as it is.
		d.log.Info("generation left queued before dispatch returned",
			"generation_id", g.ID,
			"status", string(cur.Status),
			"execution_id", res.ExecutionID,
		)
		if cur.Status == types.GenerationCancelled || cur.Status == types.GenerationFailed {
			d.stopOrphan(ctx, cur, res.ExecutionID)
		}
		return cur, nil
	}
	d.log.Info("Generation dispatched", "generation_id", g.ID, "flow_id", g.FlowID, "execution_id", res.ExecutionID)
	return cur, nil
}

func (d *workflowDispatcher) stopOrphan(ctx context.Context, g *types.Generation, executionID string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.EngineCallTimeout)
	defer cancel()
	if err := d.engine.StopExecution(stopCtx, executionID); err != nil {
		d.log.Warn("stop orphaned execution failed", "generation_id", g.ID, "execution_id", executionID, "error", err)
	}
}
