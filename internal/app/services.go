package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/genflow-backend/internal/platform/logger"
	"github.com/yungbote/genflow-backend/internal/services"
)

type Services struct {
	Plans        *services.PlanCatalog
	Ledger       services.CreditLedger
	Admission    services.AdmissionController
	Notifier     services.GenerationNotifier
	Lifecycle    services.GenerationLifecycle
	Dispatcher   services.WorkflowDispatcher
	Reconciler   services.StatusReconciler
	Reaper       services.StuckJobReaper
	Cancellation services.CancellationHandler
	Generation   services.GenerationService
}

func loadPlans(log *logger.Logger, path string) (*services.PlanCatalog, error) {
	if strings.TrimSpace(path) == "" {
		log.Info("PLANS_CONFIG not set; using built-in plan catalog")
		return services.DefaultPlanCatalog(), nil
	}
	plans, err := services.LoadPlanCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("load plan catalog: %w", err)
	}
	log.Info("Plan catalog loaded", "path", path, "flows", strings.Join(plans.FlowIDs(), ","))
	return plans, nil
}

func wireServices(log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")
	plans, err := loadPlans(log, cfg.PlansPath)
	if err != nil {
		return Services{}, err
	}
	s := Services{Plans: plans}
	s.Ledger = services.NewCreditLedger(log, r.TxRunner, r.CreditAccount, r.UsageEvent)
	s.Admission = services.NewAdmissionController(log, r.TxRunner, r.CreditAccount, r.Generation, plans)
	s.Notifier = services.NewGenerationNotifier(log, c.Bus)
	s.Lifecycle = services.NewGenerationLifecycle(log, r.TxRunner, r.Generation, s.Ledger, s.Notifier)
	s.Dispatcher = services.NewWorkflowDispatcher(log, cfg.Orchestration, c.Engine, r.Generation, s.Lifecycle, plans)
	s.Reconciler = services.NewStatusReconciler(log, cfg.Orchestration, c.Engine, r.Generation, s.Lifecycle, s.Notifier)
	s.Reaper = services.NewStuckJobReaper(log, cfg.Orchestration, r.Generation, s.Lifecycle)
	s.Cancellation = services.NewCancellationHandler(log, cfg.Orchestration, c.Engine, r.Generation, s.Lifecycle)
	s.Generation = services.NewGenerationService(log, r.TxRunner, r.Generation, s.Admission, s.Ledger, s.Dispatcher, s.Notifier, plans)
	return s, nil
}

// wireReaper builds only what a reap pass needs: no engine, no bus.
func wireReaper(log *logger.Logger, cfg Config, r Repos) services.StuckJobReaper {
	ledger := services.NewCreditLedger(log, r.TxRunner, r.CreditAccount, r.UsageEvent)
	lifecycle := services.NewGenerationLifecycle(log, r.TxRunner, r.Generation, ledger, services.NewGenerationNotifier(log, nil))
	return services.NewStuckJobReaper(log, cfg.Orchestration, r.Generation, lifecycle)
}
