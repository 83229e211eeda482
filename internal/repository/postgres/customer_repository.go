package postgres

import (
	"context"
	"errors"
	"fmt"

	"studyCafeCRM/business/segment"
	"studyCafeCRM/business/targeting"
	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/utils"

	"gorm.io/gorm"
)

type CustomerRepository struct {
	DB *gorm.DB
}

var (
	_ segment.CustomerRepository = (*CustomerRepository)(nil)
	_ targeting.CustomerLookup   = (*CustomerRepository)(nil)
)

// PhoneDigitsExpr is the stored phone reduced to digits. The kiosk writes
// phones in whatever form it was given, so lookups compare on this.
const PhoneDigitsExpr = `regexp_replace(phone, '[^0-9]', '', 'g')`

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{DB: db}
}

func (r *CustomerRepository) FindByBranch(ctx context.Context, branchID uint) ([]domain.Customer, error) {
	var customers []domain.Customer

	err := r.DB.WithContext(ctx).
		Where("main_branch_id = ?", branchID).
		Order("phone ASC").
		Find(&customers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query customers of branch %d: %w", branchID, err)
	}

	return customers, nil
}

func (r *CustomerRepository) FindByPhone(ctx context.Context, phone string) (domain.Customer, bool, error) {
	var customer domain.Customer

	err := r.DB.WithContext(ctx).
		Where(PhoneDigitsExpr+" = ?", utils.NormalizePhone(phone)).
		Order("id ASC").
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Customer{}, false, nil
	}
	if err != nil {
		return domain.Customer{}, false, err
	}

	return customer, true, nil
}

func (r *CustomerRepository) FindByPhones(ctx context.Context, phones []string) ([]domain.Customer, error) {
	digits := make([]string, 0, len(phones))
	for _, p := range phones {
		if n := utils.NormalizePhone(p); n != "" {
			digits = append(digits, n)
		}
	}
	if len(digits) == 0 {
		return []domain.Customer{}, nil
	}

	var customers []domain.Customer
	if err := r.DB.WithContext(ctx).Where(PhoneDigitsExpr+" IN ?", digits).Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to query customers by phone: %w", err)
	}

	return customers, nil
}
