package services

import (
	"context"
	"time"

	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
	"github.com/yungbote/genflow-backend/internal/realtime"
	"github.com/yungbote/genflow-backend/internal/realtime/bus"
)

// =========================
// Generation notifier
// =========================

type GenerationNotifier interface {
	GenerationCreated(ctx context.Context, g *types.Generation)
	GenerationProgress(ctx context.Context, g *types.Generation)
	GenerationFinished(ctx context.Context, g *types.Generation)
}

type generationNotifier struct {
	log *logger.Logger
	bus bus.Bus
}

// NewGenerationNotifier publishes lifecycle events on b. A nil bus only logs.
func NewGenerationNotifier(baseLog *logger.Logger, b bus.Bus) GenerationNotifier {
	return &generationNotifier{
		log: baseLog.With("service", "GenerationNotifier"),
		bus: b,
	}
}

func (n *generationNotifier) GenerationCreated(ctx context.Context, g *types.Generation) {
	n.emit(ctx, realtime.EventGenerationCreated, g)
}

func (n *generationNotifier) GenerationProgress(ctx context.Context, g *types.Generation) {
	n.emit(ctx, realtime.EventGenerationProgress, g)
}

func (n *generationNotifier) GenerationFinished(ctx context.Context, g *types.Generation) {
	if g == nil {
		return
	}
	switch g.Status {
	case types.GenerationCompleted:
		n.emit(ctx, realtime.EventGenerationCompleted, g)
	case types.GenerationFailed:
		n.emit(ctx, realtime.EventGenerationFailed, g)
	case types.GenerationCancelled:
		n.emit(ctx, realtime.EventGenerationCancelled, g)
	}
}

func (n *generationNotifier) emit(ctx context.Context, event realtime.EventType, g *types.Generation) {
	if n == nil || g == nil {
		return
	}
	if n.bus == nil {
		n.log.Debug("generation event", "event", string(event), "generation_id", g.ID, "status", string(g.Status))
		return
	}
	ev := realtime.Event{
		Channel:      g.OwnerID.String(),
		Event:        event,
		GenerationID: g.ID,
		Status:       string(g.Status),
		Progress:     g.Progress,
		ErrorMessage: g.ErrorMessage,
		At:           time.Now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctxutil.Default(ctx)), 2*time.Second)
	defer cancel()
	if err := n.bus.Publish(pubCtx, ev); err != nil {
		n.log.Warn("publish generation event failed", "event", string(event), "generation_id", g.ID, "error", err)
	}
}
