package postgres

import (
	"context"
	"fmt"

	"studyCafeCRM/business/segment"
	"studyCafeCRM/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const snapshotBatchSize = 500

type SegmentSnapshotRepository struct {
	DB *gorm.DB
}

var _ segment.SnapshotRepository = (*SegmentSnapshotRepository)(nil)

func NewSegmentSnapshotRepository(db *gorm.DB) *SegmentSnapshotRepository {
	return &SegmentSnapshotRepository{DB: db}
}

// UpsertSnapshots keeps one row per customer and business day; re-running a
// snapshot on the same day overwrites the labels.
func (r *SegmentSnapshotRepository) UpsertSnapshots(ctx context.Context, rows []domain.SegmentSnapshot) error {
	if len(rows) == 0 {
		return nil
	}

	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}, {Name: "snapshot_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"branch_id", "visit_segment", "ticket_segment", "updated_at"}),
		}).
		CreateInBatches(&rows, snapshotBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert segment snapshots: %w", err)
	}

	return nil
}
