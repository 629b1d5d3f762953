package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	"github.com/yungbote/genflow-backend/internal/data/repos"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type Repos struct {
	TxRunner      aggregates.TxRunner
	Generation    repos.GenerationRepo
	CreditAccount repos.CreditAccountRepo
	UsageEvent    repos.UsageEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		TxRunner:      aggregates.NewGormTxRunner(db),
		Generation:    repos.NewGenerationRepo(db, log),
		CreditAccount: repos.NewCreditAccountRepo(db, log),
		UsageEvent:    repos.NewUsageEventRepo(db, log),
	}
}
