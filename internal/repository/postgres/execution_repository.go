package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyCafeCRM/business/flow"
	"studyCafeCRM/business/targeting"
	"studyCafeCRM/domain"

	"gorm.io/gorm"
)

const actionLogBatchSize = 500

// errLostRace rolls a transaction back when the flow version moved.
var errLostRace = errors.New("flow version moved")

// ExecutionRepository stores dispatch records and the per-customer action
// log, and applies both phases of an execution in one transaction each.
type ExecutionRepository struct {
	DB *gorm.DB
}

var (
	_ flow.ExecutionRepository  = (*ExecutionRepository)(nil)
	_ targeting.ActionLogReader = (*ExecutionRepository)(nil)
)

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{DB: db}
}

func (r *ExecutionRepository) FindDispatch(ctx context.Context, id string) (domain.Dispatch, bool, error) {
	var d domain.Dispatch

	err := r.DB.WithContext(ctx).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Dispatch{}, false, nil
	}
	if err != nil {
		return domain.Dispatch{}, false, err
	}

	return d, true, nil
}

func (r *ExecutionRepository) Launch(ctx context.Context, l flow.Launch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := updateFlowIfVersion(tx, l.Flow, l.ExpectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}

		if err := tx.Create(&l.Dispatch).Error; err != nil {
			return fmt.Errorf("failed to save dispatch: %w", err)
		}
		if len(l.Entries) > 0 {
			if err := tx.CreateInBatches(&l.Entries, actionLogBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save action log: %w", err)
			}
		}
		return nil
	})
	return settleTxResult(l.Flow, l.ExpectedVersion, err)
}

func (r *ExecutionRepository) Settle(ctx context.Context, s flow.Settlement) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.Flow != nil {
			ok, err := updateFlowIfVersion(tx, s.Flow, s.ExpectedVersion)
			if err != nil {
				return err
			}
			if !ok {
				return errLostRace
			}
		}

		if s.Dispatch == nil {
			return nil
		}
		if err := tx.Save(s.Dispatch).Error; err != nil {
			return fmt.Errorf("failed to save dispatch %s: %w", s.Dispatch.ID, err)
		}
		if !s.MarkOutcomes {
			return nil
		}
		return markOutcomes(tx, s.Dispatch.ID, s.AllFailed, s.FailedPhones)
	})
	return settleTxResult(s.Flow, s.ExpectedVersion, err)
}

// ActedPhonesSince backs the dedup guard. Failed attempts are excluded so
// those customers can be retried.
func (r *ExecutionRepository) ActedPhonesSince(ctx context.Context, flowID uint, since time.Time) ([]string, error) {
	var phones []string

	err := r.DB.WithContext(ctx).
		Model(&domain.ActionLogEntry{}).
		Distinct("phone").
		Where("flow_id = ? AND acted_at >= ? AND outcome <> ?", flowID, since, domain.ActionOutcomeFailed).
		Pluck("phone", &phones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query action log of flow %d: %w", flowID, err)
	}

	return phones, nil
}

func markOutcomes(tx *gorm.DB, dispatchID string, allFailed bool, failedPhones []string) error {
	if allFailed {
		if err := tx.Model(&domain.ActionLogEntry{}).Where("dispatch_id = ?", dispatchID).
			Update("outcome", domain.ActionOutcomeFailed).Error; err != nil {
			return fmt.Errorf("failed to mark action log failed: %w", err)
		}
		return nil
	}

	if len(failedPhones) > 0 {
		if err := tx.Model(&domain.ActionLogEntry{}).
			Where("dispatch_id = ? AND phone IN ?", dispatchID, failedPhones).
			Update("outcome", domain.ActionOutcomeFailed).Error; err != nil {
			return fmt.Errorf("failed to mark action log failed: %w", err)
		}
	}

	if err := tx.Model(&domain.ActionLogEntry{}).
		Where("dispatch_id = ? AND outcome = ?", dispatchID, domain.ActionOutcomeDispatched).
		Update("outcome", domain.ActionOutcomeSucceeded).Error; err != nil {
		return fmt.Errorf("failed to mark action log succeeded: %w", err)
	}
	return nil
}

// settleTxResult turns a lost race into (false, nil). On any other failure
// the flow write was rolled back, so the in-memory version is restored.
func settleTxResult(f *domain.AutomationFlow, expected int, err error) (bool, error) {
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	if err != nil {
		if f != nil {
			f.Version = expected
		}
		return false, err
	}
	return true, nil
}
