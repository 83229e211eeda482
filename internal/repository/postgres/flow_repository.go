package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyCafeCRM/business/flow"
	"studyCafeCRM/domain"

	"gorm.io/gorm"
)

type FlowRepository struct {
	DB *gorm.DB
}

var _ flow.FlowRepository = (*FlowRepository)(nil)

func NewFlowRepository(db *gorm.DB) *FlowRepository {
	return &FlowRepository{DB: db}
}

func (r *FlowRepository) Create(ctx context.Context, f *domain.AutomationFlow) error {
	if err := r.DB.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("failed to create automation flow: %w", err)
	}
	return nil
}

func (r *FlowRepository) FindByID(ctx context.Context, id uint) (domain.AutomationFlow, bool, error) {
	var f domain.AutomationFlow

	err := r.DB.WithContext(ctx).First(&f, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.AutomationFlow{}, false, nil
	}
	if err != nil {
		return domain.AutomationFlow{}, false, err
	}

	return f, true, nil
}

func (r *FlowRepository) FindActive(ctx context.Context) ([]domain.AutomationFlow, error) {
	var flows []domain.AutomationFlow

	err := r.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&flows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active flows: %w", err)
	}

	return flows, nil
}

func (r *FlowRepository) UpdateIfVersion(ctx context.Context, f *domain.AutomationFlow, expected int) (bool, error) {
	return updateFlowIfVersion(r.DB.WithContext(ctx), f, expected)
}

// updateFlowIfVersion is the optimistic write shared with the execution
// repository's transactions. Columns are listed so false and nil values are
// written too.
func updateFlowIfVersion(db *gorm.DB, f *domain.AutomationFlow, expected int) (bool, error) {
	now := time.Now()

	res := db.Model(&domain.AutomationFlow{}).
		Where("id = ? AND version = ?", f.ID, expected).
		Updates(map[string]any{
			"name":                f.Name,
			"flow_type":           f.FlowType,
			"is_active":           f.IsActive,
			"status":              f.Status,
			"trigger_config":      f.TriggerConfig,
			"filter_config":       f.FilterConfig,
			"point_config":        f.PointConfig,
			"message_config":      f.MessageConfig,
			"current_dispatch_id": f.CurrentDispatchID,
			"last_dispatched_at":  f.LastDispatchedAt,
			"version":             expected + 1,
			"updated_at":          now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update automation flow %d: %w", f.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	f.Version = expected + 1
	f.UpdatedAt = now
	return true, nil
}
