package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	"github.com/yungbote/genflow-backend/internal/data/repos"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

const (
	reapBatchSize  = 100
	reapMaxBatches = 20
)

type ReapResult struct {
	ReapedCount   int         `json:"reapedCount"`
	GenerationIDs []uuid.UUID `json:"generationIds"`
}

// StuckJobReaper fails generations that outlived the liveness timeout:
// processing rows by updated_at, queued rows by created_at.
type StuckJobReaper interface {
	Reap(ctx context.Context) (ReapResult, error)
}

type stuckJobReaper struct {
	log         *logger.Logger
	cfg         OrchestrationConfig
	generations repos.GenerationRepo
	lifecycle   GenerationLifecycle
	now         func() time.Time
}

func NewStuckJobReaper(baseLog *logger.Logger, cfg OrchestrationConfig, generations repos.GenerationRepo, lifecycle GenerationLifecycle) StuckJobReaper {
	return &stuckJobReaper{
		log:         baseLog.With("service", "StuckJobReaper"),
		cfg:         cfg.withDefaults(),
		generations: generations,
		lifecycle:   lifecycle,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *stuckJobReaper) Reap(ctx context.Context) (ReapResult, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	cutoff := r.now().Add(-r.cfg.GenerationTimeout)
	out := ReapResult{GenerationIDs: make([]uuid.UUID, 0)}
	var errs []error

	for batch := 0; batch < reapMaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rows, err := r.generations.ListStale(dbc, cutoff, cutoff, reapBatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list stale: %w", err))
			break
		}
		progressed := false
		for _, g := range rows {
			res, err := r.lifecycle.Finish(dbc, TerminalTransition{
				GenerationID: g.ID,
				To:           types.GenerationFailed,
				ErrorMessage: TimeoutFailureMessage,
				Source:       SourceReaper,
				Precondition: func(cur *types.Generation) bool { return isStuck(cur, cutoff) },
			})
			if err != nil {
				if aggregates.IsRetryable(err) {
					r.log.Info("reap deferred to next sweep", "generation_id", g.ID, "error", err)
					continue
				}
				r.log.Warn("reap failed", "generation_id", g.ID, "error", err)
				errs = append(errs, fmt.Errorf("reap %s: %w", g.ID, err))
				continue
			}
			if !res.Applied {
				continue
			}
			progressed = true
			out.GenerationIDs = append(out.GenerationIDs, g.ID)
		}
		if len(rows) < reapBatchSize || !progressed {
			break
		}
	}
	out.ReapedCount = len(out.GenerationIDs)
	observability.Current().ObserveSweep("reap", out.ReapedCount)
	if out.ReapedCount > 0 {
		r.log.Info("Reaped stuck generations", "count", out.ReapedCount, "timeout", r.cfg.GenerationTimeout.String())
	}
	return out, errors.Join(errs...)
}

func isStuck(g *types.Generation, cutoff time.Time) bool {
	switch g.Status {
	case types.GenerationProcessing:
		return g.UpdatedAt.Before(cutoff)
	case types.GenerationQueued:
		return g.CreatedAt.Before(cutoff)
	default:
		return false
	}
}
