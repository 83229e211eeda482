package targeting

import (
	"context"
	"fmt"
	"time"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"
	"studyCafeCRM/pkg/utils"
)

const (
	modeManual    = "manual"
	modeCondition = "condition"
)

// Classifier labels every customer of a branch; business/segment.Service
// satisfies it.
type Classifier interface {
	ClassifyBranch(ctx context.Context, scope domain.Scope, branchID uint, ref time.Time, rangeStart *time.Time) ([]domain.SegmentedCustomer, error)
}

// CustomerLookup matches on the digit form of both the given and the stored
// phone.
type CustomerLookup interface {
	FindByPhones(ctx context.Context, phones []string) ([]domain.Customer, error)
}

// Target is one customer selected by a flow.
type Target struct {
	CustomerID uint
	Phone      string
}

type Engine struct {
	classifier Classifier
	customers  CustomerLookup
}

func NewEngine(classifier Classifier, customers CustomerLookup) *Engine {
	return &Engine{classifier: classifier, customers: customers}
}

// Targets returns the phones a flow would act on at ref.
func (e *Engine) Targets(ctx context.Context, scope domain.Scope, flow domain.AutomationFlow, ref time.Time) ([]string, error) {
	targets, err := e.Resolve(ctx, scope, flow, ref)
	if err != nil {
		return nil, err
	}
	return Phones(targets), nil
}

// Resolve is Targets with customer ids kept, for callers that log per
// customer. Manual phone lists take precedence over segment conditions.
func (e *Engine) Resolve(ctx context.Context, scope domain.Scope, flow domain.AutomationFlow, ref time.Time) ([]Target, error) {
	if !scope.CanAccessBranch(flow.BranchID) {
		return nil, domain.ErrForbidden
	}

	filter := flow.Filter()

	var (
		targets []Target
		err     error
		mode    string
	)
	if len(filter.ManualPhones) > 0 {
		mode = modeManual
		targets, err = e.manualTargets(ctx, flow.BranchID, filter.ManualPhones)
	} else {
		mode = modeCondition
		targets, err = e.conditionTargets(ctx, scope, flow.BranchID, filter, ref)
	}
	if err != nil {
		return nil, err
	}

	TargetsResolved.WithLabelValues(mode).Observe(float64(len(targets)))
	logger.Debug("targeting_resolved",
		"trace_id", logger.TraceIDFromContext(ctx),
		"flow_id", flow.ID,
		"branch_id", flow.BranchID,
		"mode", mode,
		"targets", len(targets),
	)

	return targets, nil
}

func (e *Engine) manualTargets(ctx context.Context, branchID uint, manual []string) ([]Target, error) {
	wanted := make([]string, 0, len(manual))
	seen := make(map[string]struct{}, len(manual))
	for _, p := range manual {
		n := utils.NormalizePhone(p)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		wanted = append(wanted, n)
	}
	if len(wanted) == 0 {
		return []Target{}, nil
	}

	customers, err := e.customers.FindByPhones(ctx, wanted)
	if err != nil {
		return nil, fmt.Errorf("lookup manual phones: %w", err)
	}

	owned := make(map[string]uint, len(customers))
	for _, c := range customers {
		if c.MainBranchID == branchID {
			owned[utils.NormalizePhone(c.Phone)] = c.ID
		}
	}

	out := make([]Target, 0, len(wanted))
	for _, p := range wanted {
		if id, ok := owned[p]; ok {
			out = append(out, Target{CustomerID: id, Phone: p})
		}
	}
	return out, nil
}

func (e *Engine) conditionTargets(
	ctx context.Context,
	scope domain.Scope,
	branchID uint,
	filter domain.FilterConfig,
	ref time.Time,
) ([]Target, error) {
	labeled, err := e.classifier.ClassifyBranch(ctx, scope, branchID, ref, filter.RangeStart)
	if err != nil {
		return nil, fmt.Errorf("classify branch %d: %w", branchID, err)
	}

	visit := setOf(filter.VisitSegments)
	ticket := setOf(filter.TicketSegments)

	out := make([]Target, 0, len(labeled))
	seen := make(map[string]struct{}, len(labeled))
	for _, l := range labeled {
		if !matches(l, filter, visit, ticket) {
			continue
		}
		phone := utils.NormalizePhone(l.Customer.Phone)
		if phone == "" {
			continue
		}
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}
		out = append(out, Target{CustomerID: l.Customer.ID, Phone: phone})
	}
	return out, nil
}

// matches applies the condition half of a filter to one labelled customer.
// Empty segment sets match everything.
func matches(
	l domain.SegmentedCustomer,
	filter domain.FilterConfig,
	visit map[domain.VisitSegment]struct{},
	ticket map[domain.TicketSegment]struct{},
) bool {
	if len(visit) > 0 {
		if _, ok := visit[l.VisitSegment]; !ok {
			return false
		}
	}
	if len(ticket) > 0 {
		if _, ok := ticket[l.TicketSegment]; !ok {
			return false
		}
	}

	first := l.Customer.FirstVisitAt
	if filter.FirstVisitFrom != nil && (first == nil || first.Before(*filter.FirstVisitFrom)) {
		return false
	}
	if filter.FirstVisitTo != nil && (first == nil || first.After(*filter.FirstVisitTo)) {
		return false
	}
	if filter.MinTotalSpent != nil && l.Customer.TotalSpent < *filter.MinTotalSpent {
		return false
	}
	return true
}

func Phones(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Phone)
	}
	return out
}

func setOf[T comparable](values []T) map[T]struct{} {
	out := make(map[T]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
