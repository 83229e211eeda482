package postgres

import (
	"context"
	"fmt"
	"time"

	"studyCafeCRM/business/segment"
	"studyCafeCRM/domain"

	"gorm.io/gorm"
)

// ActivityRepository reads the visit and purchase history the aggregator
// works on. Both tables are written by the check-in kiosk, never here.
type ActivityRepository struct {
	DB *gorm.DB
}

var _ segment.ActivityRepository = (*ActivityRepository)(nil)

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: db}
}

func (r *ActivityRepository) VisitsByCustomer(ctx context.Context, customerID uint) ([]domain.Visit, error) {
	var visits []domain.Visit

	err := r.DB.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("visited_at ASC").
		Find(&visits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}

	return visits, nil
}

func (r *ActivityRepository) PurchasesByCustomer(ctx context.Context, customerID uint) ([]domain.Purchase, error) {
	var purchases []domain.Purchase

	err := r.DB.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("purchased_at ASC").
		Find(&purchases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}

	return purchases, nil
}

type visitCountRow struct {
	CustomerID uint `gorm:"column:customer_id"`
	Visits     int  `gorm:"column:visits"`
}

// RecentVisitCounts counts visits in [since, until] per customer in one
// grouped query. Customers without visits are absent from the map.
func (r *ActivityRepository) RecentVisitCounts(ctx context.Context, customerIDs []uint, since, until time.Time) (map[uint]int, error) {
	out := make(map[uint]int, len(customerIDs))
	if len(customerIDs) == 0 {
		return out, nil
	}

	var rows []visitCountRow
	err := r.DB.WithContext(ctx).
		Model(&domain.Visit{}).
		Select("customer_id, COUNT(*) AS visits").
		Where("customer_id IN ? AND visited_at >= ? AND visited_at <= ?", customerIDs, since, until).
		Group("customer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count recent visits: %w", err)
	}

	for _, row := range rows {
		out[row.CustomerID] = row.Visits
	}
	return out, nil
}
