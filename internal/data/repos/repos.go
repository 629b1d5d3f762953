package repos

import (
	"github.com/yungbote/genflow-backend/internal/data/repos/credits"
	"github.com/yungbote/genflow-backend/internal/data/repos/generations"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type GenerationRepo = generations.GenerationRepo
type CreditAccountRepo = credits.CreditAccountRepo
type UsageEventRepo = credits.UsageEventRepo

func NewGenerationRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRepo {
	return generations.NewGenerationRepo(db, baseLog)
}

func NewCreditAccountRepo(db *gorm.DB, baseLog *logger.Logger) CreditAccountRepo {
	return credits.NewCreditAccountRepo(db, baseLog)
}

func NewUsageEventRepo(db *gorm.DB, baseLog *logger.Logger) UsageEventRepo {
	return credits.NewUsageEventRepo(db, baseLog)
}
