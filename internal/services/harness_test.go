package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	"github.com/yungbote/genflow-backend/internal/data/repos"
	"github.com/yungbote/genflow-backend/internal/data/repos/testutil"
	"github.com/yungbote/genflow-backend/internal/platform/flowengine"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

var errEngineDown = errors.New("connection refused")

type fakeEngine struct {
	mu         sync.Mutex
	seq        int
	triggerErr error
	getErr     error
	stopErr    error
	executions map[string]*flowengine.Execution
	triggered  []flowengine.TriggerRequest
	stopped    []string
	// onTrigger runs before Trigger returns, for race tests.
	onTrigger func(req flowengine.TriggerRequest)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{executions: map[string]*flowengine.Execution{}}
}

func (f *fakeEngine) Trigger(ctx context.Context, req flowengine.TriggerRequest) (*flowengine.TriggerResult, error) {
	f.mu.Lock()
	err := f.triggerErr
	hook := f.onTrigger
	f.triggered = append(f.triggered, req)
	f.seq++
	id := fmt.Sprintf("exec-%d", f.seq)
	if err == nil {
		f.executions[id] = &flowengine.Execution{ID: id, Status: "running"}
	}
	f.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if err != nil {
		return nil, err
	}
	return &flowengine.TriggerResult{ExecutionID: id}, nil
}

func (f *fakeEngine) GetExecution(ctx context.Context, executionID string) (*flowengine.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	ex, ok := f.executions[executionID]
	if !ok {
		return nil, &flowengine.OperationError{Code: flowengine.OperationErrorNotFound, Operation: "get_execution", StatusCode: 404}
	}
	cp := *ex
	return &cp, nil
}

func (f *fakeEngine) StopExecution(ctx context.Context, executionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, executionID)
	return f.stopErr
}

func (f *fakeEngine) setExecution(ex *flowengine.Execution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[ex.ID] = ex
}

func (f *fakeEngine) stoppedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

type harness struct {
	db          *gorm.DB
	log         *logger.Logger
	engine      *fakeEngine
	plans       *PlanCatalog
	cfg         OrchestrationConfig
	generations repos.GenerationRepo
	accounts    repos.CreditAccountRepo
	events      repos.UsageEventRepo
	ledger      CreditLedger
	admission   AdmissionController
	lifecycle   GenerationLifecycle
	dispatcher  WorkflowDispatcher
	reconciler  StatusReconciler
	reaper      StuckJobReaper
	canceller   CancellationHandler
	svc         GenerationService
}

func testPlans(t *testing.T) *PlanCatalog {
	t.Helper()
	c, err := ParsePlanCatalog([]byte(`
default_plan: free
plans:
  free: {max_concurrent_generations: 1}
  pro:  {max_concurrent_generations: 3}
  none: {max_concurrent_generations: 0}
flows:
  blog-post:    {cost: 20, webhook_path: /webhook/blog-post}
  video-script: {cost: 30, webhook_path: /webhook/video-script}
`))
	if err != nil {
		t.Fatalf("ParsePlanCatalog: %v", err)
	}
	return c
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := logger.Nop()
	h := &harness{
		db:     db,
		log:    log,
		engine: newFakeEngine(),
		plans:  testPlans(t),
		cfg: OrchestrationConfig{
			GenerationTimeout: 15 * time.Minute,
			EngineCallTimeout: 2 * time.Second,
			CallbackURL:       "http://api.local/api/webhooks/flow-engine",
		},
	}
	txr := aggregates.NewGormTxRunner(db)
	notify := NewGenerationNotifier(log, nil)
	h.generations = repos.NewGenerationRepo(db, log)
	h.accounts = repos.NewCreditAccountRepo(db, log)
	h.events = repos.NewUsageEventRepo(db, log)
	h.ledger = NewCreditLedger(log, txr, h.accounts, h.events)
	h.admission = NewAdmissionController(log, txr, h.accounts, h.generations, h.plans)
	h.lifecycle = NewGenerationLifecycle(log, txr, h.generations, h.ledger, notify)
	h.dispatcher = NewWorkflowDispatcher(log, h.cfg, h.engine, h.generations, h.lifecycle, h.plans)
	h.reconciler = NewStatusReconciler(log, h.cfg, h.engine, h.generations, h.lifecycle, notify)
	h.reaper = NewStuckJobReaper(log, h.cfg, h.generations, h.lifecycle)
	h.canceller = NewCancellationHandler(log, h.cfg, h.engine, h.generations, h.lifecycle)
	h.svc = NewGenerationService(log, txr, h.generations, h.admission, h.ledger, h.dispatcher, notify, h.plans)
	return h
}
