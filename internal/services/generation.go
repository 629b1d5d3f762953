package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	"github.com/yungbote/genflow-backend/internal/data/repos"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/observability"
	"github.com/yungbote/genflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type StartRequest struct {
	OwnerID uuid.UUID
	FlowID  string
	Input   json.RawMessage
}

// GenerationService is the request-facing entry point: start runs
// admit+debit+create as one transaction, then dispatches.
type GenerationService interface {
	Start(ctx context.Context, req StartRequest) (*types.Generation, error)
	Get(ctx context.Context, ownerID, generationID uuid.UUID) (*types.Generation, error)
	List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*types.Generation, error)
}

type generationService struct {
	log         *logger.Logger
	txr         aggregates.TxRunner
	generations repos.GenerationRepo
	admission   AdmissionController
	ledger      CreditLedger
	dispatcher  WorkflowDispatcher
	notify      GenerationNotifier
	plans       *PlanCatalog
}

func NewGenerationService(
	baseLog *logger.Logger,
	txr aggregates.TxRunner,
	generations repos.GenerationRepo,
	admission AdmissionController,
	ledger CreditLedger,
	dispatcher WorkflowDispatcher,
	notify GenerationNotifier,
	plans *PlanCatalog,
) GenerationService {
	return &generationService{
		log:         baseLog.With("service", "GenerationService"),
		txr:         txr,
		generations: generations,
		admission:   admission,
		ledger:      ledger,
		dispatcher:  dispatcher,
		notify:      notify,
		plans:       plans,
	}
}

func (s *generationService) Start(ctx context.Context, req StartRequest) (*types.Generation, error) {
	ctx = ctxutil.Default(ctx)
	ctx, span := otel.Tracer("genflow/services").Start(ctx, "generation.start")
	defer span.End()

	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing owner id", types.ErrInvalidArgument)
	}
	flowID := strings.TrimSpace(req.FlowID)
	flow, ok := s.plans.Flow(flowID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownFlow, flowID)
	}
	input := datatypes.JSON([]byte("{}"))
	if len(req.Input) > 0 && string(req.Input) != "null" {
		var obj map[string]any
		if err := json.Unmarshal(req.Input, &obj); err != nil {
			return nil, fmt.Errorf("%w: input must be a JSON object", types.ErrInvalidArgument)
		}
		input = datatypes.JSON(req.Input)
	}
	span.SetAttributes(attribute.String("flow.id", flowID), attribute.Int64("flow.cost", flow.Cost))

	now := time.Now().UTC()
	g := &types.Generation{
		ID:          uuid.New(),
		OwnerID:     req.OwnerID,
		FlowID:      flowID,
		Status:      types.GenerationQueued,
		Progress:    0,
		CreditsUsed: flow.Cost,
		Input:       input,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.txr.InTx(ctx, func(dbc dbctx.Context) error {
		decision, err := s.admission.TryAdmit(dbc, req.OwnerID)
		if err != nil {
			return err
		}
		if !decision.Admitted {
			return &types.AdmissionError{Current: decision.Current, Maximum: decision.Maximum}
		}
		if _, err := s.ledger.Debit(dbc, req.OwnerID, flow.Cost, g.ID); err != nil {
			return err
		}
		if err := s.generations.Create(dbc, g); err != nil {
			return fmt.Errorf("create generation: %w", err)
		}
		return nil
	})
	if err != nil {
		observability.Current().ObserveAdmission(admissionOutcome(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	observability.Current().ObserveAdmission("admitted")
	span.SetAttributes(attribute.String("generation.id", g.ID.String()))
	s.log.Info("Generation admitted", "generation_id", g.ID, "owner_id", g.OwnerID, "flow_id", flowID, "credits", flow.Cost)
	if s.notify != nil {
		s.notify.GenerationCreated(ctx, g)
	}

	out, err := s.dispatcher.Dispatch(ctx, g)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (s *generationService) Get(ctx context.Context, ownerID, generationID uuid.UUID) (*types.Generation, error) {
	g, err := s.generations.GetByID(dbctx.Context{Ctx: ctxutil.Default(ctx)}, generationID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: generation %s", types.ErrNotFound, generationID)
	}
	if g.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: generation %s", types.ErrForbidden, generationID)
	}
	return g, nil
}

func (s *generationService) List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*types.Generation, error) {
	return s.generations.ListByOwner(dbctx.Context{Ctx: ctxutil.Default(ctx)}, ownerID, limit)
}

func admissionOutcome(err error) string {
	switch {
	case errors.Is(err, types.ErrAdmissionLimitReached):
		return "limit_reached"
	case errors.Is(err, types.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "error"
	}
}
