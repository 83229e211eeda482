package segment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"
	"studyCafeCRM/pkg/timeutil"
)

var ErrCustomerNotFound = errors.New("customer not found")

// ---- Repository interfaces ----

type CustomerRepository interface {
	FindByBranch(ctx context.Context, branchID uint) ([]domain.Customer, error)
	// FindByPhone ignores formatting: "010-1111-1111" finds "01011111111".
	FindByPhone(ctx context.Context, phone string) (domain.Customer, bool, error)
}

type ActivityRepository interface {
	VisitsByCustomer(ctx context.Context, customerID uint) ([]domain.Visit, error)
	PurchasesByCustomer(ctx context.Context, customerID uint) ([]domain.Purchase, error)
	RecentVisitCounts(ctx context.Context, customerIDs []uint, since, until time.Time) (map[uint]int, error)
}

type SnapshotRepository interface {
	UpsertSnapshots(ctx context.Context, rows []domain.SegmentSnapshot) error
}

// ---- Service ----

type Service struct {
	customerRepo CustomerRepository
	activityRepo ActivityRepository
	snapshotRepo SnapshotRepository
	thresholds   Thresholds
	loc          *time.Location
}

func NewService(
	customerRepo CustomerRepository,
	activityRepo ActivityRepository,
	snapshotRepo SnapshotRepository,
	thresholds Thresholds,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = timeutil.LoadLocation("")
	}
	return &Service{
		customerRepo: customerRepo,
		activityRepo: activityRepo,
		snapshotRepo: snapshotRepo,
		thresholds:   thresholds,
		loc:          loc,
	}
}

func (s *Service) Thresholds() Thresholds {
	return s.thresholds
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Profile returns the stats and labels of one customer of branchID. A phone
// owned by another branch is reported as not found.
func (s *Service) Profile(
	ctx context.Context,
	scope domain.Scope,
	branchID uint,
	phone string,
	ref time.Time,
	rangeStart *time.Time,
) (domain.CustomerProfile, error) {
	if !scope.CanAccessBranch(branchID) {
		return domain.CustomerProfile{}, domain.ErrForbidden
	}

	customer, ok, err := s.customerRepo.FindByPhone(ctx, phone)
	if err != nil {
		return domain.CustomerProfile{}, fmt.Errorf("load customer: %w", err)
	}
	if !ok || customer.MainBranchID != branchID {
		return domain.CustomerProfile{}, ErrCustomerNotFound
	}

	visits, err := s.activityRepo.VisitsByCustomer(ctx, customer.ID)
	if err != nil {
		return domain.CustomerProfile{}, fmt.Errorf("load visits: %w", err)
	}
	purchases, err := s.activityRepo.PurchasesByCustomer(ctx, customer.ID)
	if err != nil {
		return domain.CustomerProfile{}, fmt.Errorf("load purchases: %w", err)
	}

	stats := Aggregate(visits, purchases, s.loc)

	if customer.FirstVisitAt == nil {
		customer.FirstVisitAt = stats.FirstVisitAt
	}
	if customer.LastVisitAt == nil {
		customer.LastVisitAt = stats.LastVisitAt
	}
	customer.RecentVisitCount = CountVisitsSince(visits, s.recentWindowStart(ref), ref)

	labeled := ClassifyCustomer(customer, ref, rangeStart, s.thresholds)

	return domain.CustomerProfile{
		Customer:      labeled.Customer,
		Stats:         stats,
		VisitSegment:  labeled.VisitSegment,
		TicketSegment: labeled.TicketSegment,
	}, nil
}

// ClassifyBranch labels every customer of branchID, ordered by phone.
func (s *Service) ClassifyBranch(
	ctx context.Context,
	scope domain.Scope,
	branchID uint,
	ref time.Time,
	rangeStart *time.Time,
) ([]domain.SegmentedCustomer, error) {
	if !scope.CanAccessBranch(branchID) {
		return nil, domain.ErrForbidden
	}

	start := time.Now()
	defer func() {
		ClassificationDuration.WithLabelValues(strconv.FormatUint(uint64(branchID), 10)).
			Observe(time.Since(start).Seconds())
	}()

	customers, err := s.customerRepo.FindByBranch(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("load branch customers: %w", err)
	}
	if len(customers) == 0 {
		return []domain.SegmentedCustomer{}, nil
	}

	ids := make([]uint, 0, len(customers))
	for _, c := range customers {
		ids = append(ids, c.ID)
	}

	counts, err := s.activityRepo.RecentVisitCounts(ctx, ids, s.recentWindowStart(ref), ref)
	if err != nil {
		return nil, fmt.Errorf("count recent visits: %w", err)
	}

	out := make([]domain.SegmentedCustomer, 0, len(customers))
	for _, c := range customers {
		c.RecentVisitCount = counts[c.ID]
		out = append(out, ClassifyCustomer(c, ref, rangeStart, s.thresholds))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Customer.Phone < out[j].Customer.Phone
	})

	logger.Debug("segment_classify_branch",
		"trace_id", logger.TraceIDFromContext(ctx),
		"branch_id", branchID,
		"customers", len(out),
	)

	return out, nil
}

func (s *Service) Summary(
	ctx context.Context,
	scope domain.Scope,
	branchID uint,
	ref time.Time,
	rangeStart *time.Time,
) (domain.SegmentSummary, []domain.SegmentedCustomer, error) {
	labeled, err := s.ClassifyBranch(ctx, scope, branchID, ref, rangeStart)
	if err != nil {
		return domain.SegmentSummary{}, nil, err
	}

	return Summarize(branchID, ref, labeled), labeled, nil
}

// Summarize counts labels; every segment is present in the maps, zero or not.
func Summarize(branchID uint, ref time.Time, labeled []domain.SegmentedCustomer) domain.SegmentSummary {
	summary := domain.SegmentSummary{
		BranchID:      branchID,
		ReferenceDate: ref,
		Total:         len(labeled),
		Visit:         make(map[domain.VisitSegment]int, len(domain.VisitSegments)),
		Ticket:        make(map[domain.TicketSegment]int, len(domain.TicketSegments)),
	}
	for _, v := range domain.VisitSegments {
		summary.Visit[v] = 0
	}
	for _, t := range domain.TicketSegments {
		summary.Ticket[t] = 0
	}
	for _, l := range labeled {
		summary.Visit[l.VisitSegment]++
		summary.Ticket[l.TicketSegment]++
	}
	return summary
}

// Snapshot persists today's labels of the branch, keyed by business date.
func (s *Service) Snapshot(ctx context.Context, scope domain.Scope, branchID uint, ref time.Time) (int, error) {
	labeled, err := s.ClassifyBranch(ctx, scope, branchID, ref, nil)
	if err != nil {
		return 0, err
	}
	if len(labeled) == 0 {
		return 0, nil
	}

	day := timeutil.BeginningOfDay(ref, s.loc)
	rows := make([]domain.SegmentSnapshot, 0, len(labeled))
	for _, l := range labeled {
		rows = append(rows, domain.SegmentSnapshot{
			CustomerID:    l.Customer.ID,
			SnapshotDate:  day,
			BranchID:      branchID,
			VisitSegment:  l.VisitSegment,
			TicketSegment: l.TicketSegment,
		})
	}

	if err := s.snapshotRepo.UpsertSnapshots(ctx, rows); err != nil {
		return 0, fmt.Errorf("save segment snapshots: %w", err)
	}

	logger.InfoCtx(ctx, "segment_snapshot_saved", "branch_id", branchID, "rows", len(rows))
	return len(rows), nil
}

func (s *Service) recentWindowStart(ref time.Time) time.Time {
	return ref.AddDate(0, 0, -s.thresholds.RecentWindowDays)
}
