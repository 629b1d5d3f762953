package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/genflow-backend/internal/data/repos"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/flowengine"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type CancelOutcome string

const (
	CancelOK              CancelOutcome = "ok"
	CancelAlreadyTerminal CancelOutcome = "already_terminal"
)

type CancelResult struct {
	Outcome    CancelOutcome     `json:"result"`
	Generation *types.Generation `json:"generation,omitempty"`
}

// CancellationHandler cancels on behalf of the owner. The local transition
// never waits on the engine: stopping the remote execution is best effort.
type CancellationHandler interface {
	Cancel(ctx context.Context, generationID, ownerID uuid.UUID) (CancelResult, error)
}

type cancellationHandler struct {
	log         *logger.Logger
	cfg         OrchestrationConfig
	engine      flowengine.Client
	generations repos.GenerationRepo
	lifecycle   GenerationLifecycle
}

func NewCancellationHandler(
	baseLog *logger.Logger,
	cfg OrchestrationConfig,
	engine flowengine.Client,
	generations repos.GenerationRepo,
	lifecycle GenerationLifecycle,
) CancellationHandler {
	return &cancellationHandler{
		log:         baseLog.With("service", "CancellationHandler"),
		cfg:         cfg.withDefaults(),
		engine:      engine,
		generations: generations,
		lifecycle:   lifecycle,
	}
}

func (h *cancellationHandler) Cancel(ctx context.Context, generationID, ownerID uuid.UUID) (CancelResult, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	g, err := h.generations.GetByID(dbc, generationID)
	if err != nil {
		return CancelResult{}, err
	}
	if g == nil {
		return CancelResult{}, fmt.Errorf("%w: generation %s", types.ErrNotFound, generationID)
	}
	if g.OwnerID != ownerID {
		return CancelResult{}, fmt.Errorf("%w: generation %s", types.ErrForbidden, generationID)
	}
	if g.Status.IsTerminal() {
		return CancelResult{Outcome: CancelAlreadyTerminal, Generation: g}, nil
	}

	res, err := h.lifecycle.Finish(dbc, TerminalTransition{
		GenerationID: g.ID,
		To:           types.GenerationCancelled,
		Source:       SourceCancel,
	})
	if err != nil {
		return CancelResult{}, err
	}
	if !res.Applied {
		return CancelResult{Outcome: CancelAlreadyTerminal, Generation: res.Generation}, nil
	}
	if res.Generation.HasHandle() {
		h.stopRemote(ctx, res.Generation)
	}
	return CancelResult{Outcome: CancelOK, Generation: res.Generation}, nil
}

func (h *cancellationHandler) stopRemote(ctx context.Context, g *types.Generation) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.EngineCallTimeout)
	defer cancel()
	if err := h.engine.StopExecution(stopCtx, g.ExternalExecutionHandle); err != nil {
		h.log.Warn("remote stop failed; cancellation stands",
			"generation_id", g.ID,
			"execution_id", g.ExternalExecutionHandle,
			"error", err,
		)
		return
	}
	h.log.Debug("remote execution stopped", "generation_id", g.ID, "execution_id", g.ExternalExecutionHandle)
}
