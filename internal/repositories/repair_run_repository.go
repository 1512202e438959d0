package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

// RepairRunRepository keeps the audit trail of reconciliation passes.
type RepairRunRepository interface {
	CreateRun(ctx context.Context, run *models.RepairRun) error
	RecentRuns(ctx context.Context, limit int) ([]models.RepairRun, error)
}

type gormRepairRunRepository struct {
	db *gorm.DB
}

// NewGormRepairRunRepository migrates the table and returns the repository.
func NewGormRepairRunRepository(db *gorm.DB) (RepairRunRepository, error) {
	if err := db.AutoMigrate(&models.RepairRun{}); err != nil {
		return nil, err
	}
	return &gormRepairRunRepository{db: db}, nil
}

func (r *gormRepairRunRepository) CreateRun(ctx context.Context, run *models.RepairRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *gormRepairRunRepository) RecentRuns(ctx context.Context, limit int) ([]models.RepairRun, error) {
	var runs []models.RepairRun
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
