package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"studyCafeCRM/business/targeting"
	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"
)

var (
	ErrFlowNotFound       = errors.New("flow not found")
	ErrDispatchNotFound   = errors.New("dispatch not found for flow")
	ErrVersionConflict    = errors.New("flow was modified concurrently")
	ErrFlowInactive       = errors.New("flow is not active")
	ErrDispatchInProgress = errors.New("flow has a dispatch in progress")
	ErrJobPublish         = errors.New("job publish failed")
)

// ---- Repository interfaces ----

type FlowRepository interface {
	Create(ctx context.Context, flow *domain.AutomationFlow) error
	FindByID(ctx context.Context, id uint) (domain.AutomationFlow, bool, error)
	FindActive(ctx context.Context) ([]domain.AutomationFlow, error)
	// UpdateIfVersion writes flow only when the stored version still equals
	// expected, then bumps flow.Version. false means another writer won.
	UpdateIfVersion(ctx context.Context, flow *domain.AutomationFlow, expected int) (bool, error)
}

// Launch is the first phase of an execution: the flow claim, the dispatch
// record and one action-log row per accepted target, written together.
type Launch struct {
	Flow            *domain.AutomationFlow
	ExpectedVersion int
	Dispatch        domain.Dispatch
	Entries         []domain.ActionLogEntry
}

// Settlement is the second phase. A nil Flow leaves the flow row untouched,
// a nil Dispatch means the report had no dispatch record.
type Settlement struct {
	Flow            *domain.AutomationFlow
	ExpectedVersion int
	Dispatch        *domain.Dispatch
	MarkOutcomes    bool
	FailedPhones    []string
	AllFailed       bool
}

type ExecutionRepository interface {
	FindDispatch(ctx context.Context, id string) (domain.Dispatch, bool, error)
	Launch(ctx context.Context, l Launch) (bool, error)
	Settle(ctx context.Context, s Settlement) (bool, error)
}

type Targeter interface {
	Targets(ctx context.Context, scope domain.Scope, flow domain.AutomationFlow, ref time.Time) ([]string, error)
	Resolve(ctx context.Context, scope domain.Scope, flow domain.AutomationFlow, ref time.Time) ([]targeting.Target, error)
}

type DedupGuard interface {
	Apply(ctx context.Context, flowID uint, candidates []string, dedupDays *int, now time.Time) ([]string, []string, error)
}

// ---- Service ----

// Service owns the operator-facing lifecycle of a flow: definition edits and
// activation. Execution lives in Dispatcher and Ingestor.
type Service struct {
	flows    FlowRepository
	targeter Targeter
}

func NewService(flows FlowRepository, targeter Targeter) *Service {
	return &Service{flows: flows, targeter: targeter}
}

func (s *Service) Create(ctx context.Context, scope domain.Scope, def Definition) (domain.AutomationFlow, error) {
	if !scope.CanAccessBranch(def.BranchID) {
		return domain.AutomationFlow{}, domain.ErrForbidden
	}

	flow := domain.AutomationFlow{
		BranchID: def.BranchID,
		Status:   domain.FlowStatusDraft,
		IsActive: false,
	}
	applyDefinition(&flow, def)

	if err := s.flows.Create(ctx, &flow); err != nil {
		return domain.AutomationFlow{}, fmt.Errorf("create flow: %w", err)
	}

	logger.InfoCtx(ctx, "flow_created", "flow_id", flow.ID, "branch_id", flow.BranchID, "flow_type", string(flow.FlowType))
	return flow, nil
}

func (s *Service) Get(ctx context.Context, scope domain.Scope, id uint) (domain.AutomationFlow, error) {
	return loadScoped(ctx, s.flows, scope, id)
}

// Update replaces the definition. Execution bookkeeping in the trigger
// config survives the edit; a flow cannot move between branches.
func (s *Service) Update(ctx context.Context, scope domain.Scope, id uint, def Definition) (domain.AutomationFlow, error) {
	flow, err := loadScoped(ctx, s.flows, scope, id)
	if err != nil {
		return domain.AutomationFlow{}, err
	}
	if def.BranchID != flow.BranchID {
		return domain.AutomationFlow{}, invalid("branchId cannot change")
	}
	if flow.Status == domain.FlowStatusDispatched {
		return domain.AutomationFlow{}, ErrDispatchInProgress
	}

	expected := flow.Version
	prev := flow.Trigger()
	applyDefinition(&flow, def)
	trig := flow.Trigger()
	trig.LastExecutedAt = prev.LastExecutedAt
	trig.LastExecuteResult = prev.LastExecuteResult
	flow.TriggerConfig = datatypes.NewJSONType(trig)

	ok, err := s.flows.UpdateIfVersion(ctx, &flow, expected)
	if err != nil {
		return domain.AutomationFlow{}, fmt.Errorf("update flow %d: %w", id, err)
	}
	if !ok {
		return domain.AutomationFlow{}, ErrVersionConflict
	}
	return flow, nil
}

func (s *Service) Activate(ctx context.Context, scope domain.Scope, id uint) (domain.AutomationFlow, error) {
	return s.transition(ctx, scope, id, EventActivate)
}

func (s *Service) Deactivate(ctx context.Context, scope domain.Scope, id uint) (domain.AutomationFlow, error) {
	return s.transition(ctx, scope, id, EventDeactivate)
}

// PreviewTargets runs the filter without dedup or side effects.
func (s *Service) PreviewTargets(ctx context.Context, scope domain.Scope, id uint, ref time.Time) ([]string, error) {
	flow, err := loadScoped(ctx, s.flows, scope, id)
	if err != nil {
		return nil, err
	}
	return s.targeter.Targets(ctx, scope, flow, ref)
}

func (s *Service) transition(ctx context.Context, scope domain.Scope, id uint, ev Event) (domain.AutomationFlow, error) {
	flow, err := loadScoped(ctx, s.flows, scope, id)
	if err != nil {
		return domain.AutomationFlow{}, err
	}

	next, err := Next(flow.Status, ev, flow.HasRun())
	if err != nil {
		return domain.AutomationFlow{}, err
	}
	active := IsActiveStatus(next)
	if next == flow.Status && active == flow.IsActive {
		return flow, nil
	}

	expected := flow.Version
	prev := flow.Status
	flow.Status = next
	flow.IsActive = active

	ok, err := s.flows.UpdateIfVersion(ctx, &flow, expected)
	if err != nil {
		return domain.AutomationFlow{}, fmt.Errorf("%s flow %d: %w", ev, id, err)
	}
	if !ok {
		return domain.AutomationFlow{}, ErrVersionConflict
	}

	logger.InfoCtx(ctx, "flow_transition",
		"flow_id", flow.ID,
		"event", string(ev),
		"from", string(prev),
		"to", string(next),
	)
	return flow, nil
}

func applyDefinition(flow *domain.AutomationFlow, def Definition) {
	flow.Name = def.Name
	flow.FlowType = def.FlowType
	flow.TriggerConfig = datatypes.NewJSONType(def.Trigger)
	flow.FilterConfig = datatypes.NewJSONType(def.Filter)
	flow.PointConfig = datatypes.NewJSONType(def.Point)
	flow.MessageConfig = datatypes.NewJSONType(def.Message)
}

func loadScoped(ctx context.Context, flows FlowRepository, scope domain.Scope, id uint) (domain.AutomationFlow, error) {
	flow, ok, err := flows.FindByID(ctx, id)
	if err != nil {
		return domain.AutomationFlow{}, fmt.Errorf("load flow %d: %w", id, err)
	}
	if !ok {
		return domain.AutomationFlow{}, ErrFlowNotFound
	}
	if !scope.CanAccessBranch(flow.BranchID) {
		return domain.AutomationFlow{}, domain.ErrForbidden
	}
	return flow, nil
}
