package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	"github.com/yungbote/genflow-backend/internal/data/repos"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type AdmissionDecision struct {
	Admitted bool   `json:"admitted"`
	Current  int64  `json:"current"`
	Maximum  int    `json:"maximum"`
	Plan     string `json:"plan"`
	Balance  int64  `json:"creditsBalance"`
}

// AdmissionController counts in-flight generations against the owner's plan
// ceiling. TryAdmit locks the owner's credit account row, so callers that
// insert the new generation in the same transaction cannot overshoot.
type AdmissionController interface {
	TryAdmit(dbc dbctx.Context, ownerID uuid.UUID) (AdmissionDecision, error)
	Snapshot(dbc dbctx.Context, ownerID uuid.UUID) (AdmissionDecision, error)
}

type admissionController struct {
	log         *logger.Logger
	txr         aggregates.TxRunner
	accounts    repos.CreditAccountRepo
	generations repos.GenerationRepo
	plans       *PlanCatalog
}

func NewAdmissionController(baseLog *logger.Logger, txr aggregates.TxRunner, accounts repos.CreditAccountRepo, generations repos.GenerationRepo, plans *PlanCatalog) AdmissionController {
	if plans == nil {
		plans = DefaultPlanCatalog()
	}
	return &admissionController{
		log:         baseLog.With("service", "AdmissionController"),
		txr:         txr,
		accounts:    accounts,
		generations: generations,
		plans:       plans,
	}
}

func (a *admissionController) TryAdmit(dbc dbctx.Context, ownerID uuid.UUID) (AdmissionDecision, error) {
	var out AdmissionDecision
	err := a.txr.InTxWith(dbc, func(dbc dbctx.Context) error {
		acct, err := a.accounts.LockByOwner(dbc, ownerID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		out, err = a.decide(dbc, ownerID, acct)
		return err
	})
	if err != nil {
		return AdmissionDecision{}, err
	}
	if !out.Admitted {
		a.log.Info("Admission denied", "owner_id", ownerID, "current", out.Current, "maximum", out.Maximum, "plan", out.Plan)
	}
	return out, nil
}

// Snapshot reports the same numbers without taking the lock; display only.
func (a *admissionController) Snapshot(dbc dbctx.Context, ownerID uuid.UUID) (AdmissionDecision, error) {
	acct, err := a.accounts.Get(dbc, ownerID)
	if err != nil {
		return AdmissionDecision{}, err
	}
	return a.decide(dbc, ownerID, acct)
}

func (a *admissionController) decide(dbc dbctx.Context, ownerID uuid.UUID, acct *types.CreditAccount) (AdmissionDecision, error) {
	current, err := a.generations.CountActiveByOwner(dbc, ownerID)
	if err != nil {
		return AdmissionDecision{}, fmt.Errorf("count active: %w", err)
	}
	out := AdmissionDecision{Current: current}
	if acct == nil {
		return out, nil
	}
	out.Plan = acct.Plan
	out.Balance = acct.CreditsBalance
	out.Maximum = a.plans.MaxConcurrent(acct.Plan)
	if acct.MaxConcurrentGenerations != nil && *acct.MaxConcurrentGenerations >= 0 {
		out.Maximum = *acct.MaxConcurrentGenerations
	}
	out.Admitted = out.Maximum > 0 && current < int64(out.Maximum)
	return out, nil
}
