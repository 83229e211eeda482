package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"studyCafeCRM/business/targeting"
	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"
	"studyCafeCRM/pkg/timeutil"
)

const (
	defaultDispatchTimeout = 6 * time.Hour
	defaultParallelism     = 4
)

// JobSink hands a job to the external execution worker.
type JobSink interface {
	Publish(ctx context.Context, job domain.Job) error
}

type DispatcherOptions struct {
	Timeout     time.Duration
	Location    *time.Location
	Parallelism int
}

type Dispatcher struct {
	flows       FlowRepository
	executions  ExecutionRepository
	targeter    Targeter
	guard       DedupGuard
	sink        JobSink
	timeout     time.Duration
	loc         *time.Location
	parallelism int
	newID       func() string
}

func NewDispatcher(
	flows FlowRepository,
	executions ExecutionRepository,
	targeter Targeter,
	guard DedupGuard,
	sink JobSink,
	opts DispatcherOptions,
) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultDispatchTimeout
	}
	if opts.Location == nil {
		opts.Location = timeutil.LoadLocation("")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	return &Dispatcher{
		flows:       flows,
		executions:  executions,
		targeter:    targeter,
		guard:       guard,
		sink:        sink,
		timeout:     opts.Timeout,
		loc:         opts.Location,
		parallelism: opts.Parallelism,
		newID:       uuid.NewString,
	}
}

// DispatchResult is what the dispatch endpoint returns. Job is nil when
// nobody was targeted.
type DispatchResult struct {
	Dispatch domain.Dispatch `json:"dispatch"`
	Job      *domain.Job     `json:"job,omitempty"`
}

// Dispatch starts one execution of a flow: resolve targets, drop recent
// repeats, record the hand-off and publish the job.
func (d *Dispatcher) Dispatch(ctx context.Context, scope domain.Scope, flowID uint, now time.Time) (DispatchResult, error) {
	flow, err := loadScoped(ctx, d.flows, scope, flowID)
	if err != nil {
		return DispatchResult{}, err
	}
	if !flow.IsActive {
		return DispatchResult{}, ErrFlowInactive
	}

	if flow.Status == domain.FlowStatusDispatched {
		if !d.timedOut(flow, now) {
			return DispatchResult{}, ErrDispatchInProgress
		}
		if flow, err = d.expire(ctx, flow, now); err != nil {
			return DispatchResult{}, err
		}
	}

	next, err := Next(flow.Status, EventDispatch, flow.HasRun())
	if err != nil {
		return DispatchResult{}, err
	}

	targets, err := d.targeter.Resolve(ctx, scope, flow, now)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("resolve targets of flow %d: %w", flow.ID, err)
	}
	accepted, skipped, err := d.guard.Apply(ctx, flow.ID, targeting.Phones(targets), flow.DeduplicateDays(), now)
	if err != nil {
		return DispatchResult{}, err
	}

	customerIDs := make(map[string]uint, len(targets))
	for _, t := range targets {
		customerIDs[t.Phone] = t.CustomerID
	}

	dispatchID := d.newID()
	rec := domain.Dispatch{
		ID:            dispatchID,
		FlowID:        flow.ID,
		BranchID:      flow.BranchID,
		Action:        jobAction(flow.FlowType),
		TargetPhones:  accepted,
		SkippedPhones: skipped,
		Status:        domain.DispatchStatusPending,
		DispatchedAt:  now,
	}

	entries := make([]domain.ActionLogEntry, 0, len(accepted))
	for _, phone := range accepted {
		entries = append(entries, domain.ActionLogEntry{
			FlowID:     flow.ID,
			DispatchID: dispatchID,
			FlowType:   flow.FlowType,
			CustomerID: customerIDs[phone],
			Phone:      phone,
			ActedAt:    now,
			Outcome:    domain.ActionOutcomeDispatched,
		})
	}

	expected := flow.Version
	updated := flow
	updated.Status = next
	updated.CurrentDispatchID = &dispatchID
	updated.LastDispatchedAt = &now

	// nothing to hand off: close the execution in the same write
	if len(accepted) == 0 {
		result := domain.ExecuteResult{DispatchID: dispatchID, Success: true, ExecutedAt: now}
		closeDispatch(&rec, result, now)
		if updated.Status, err = Next(updated.Status, EventComplete, true); err != nil {
			return DispatchResult{}, err
		}
		updated.CurrentDispatchID = nil
		recordSummary(&updated, result)
	}

	ok, err := d.executions.Launch(ctx, Launch{
		Flow:            &updated,
		ExpectedVersion: expected,
		Dispatch:        rec,
		Entries:         entries,
	})
	if err != nil {
		return DispatchResult{}, fmt.Errorf("record dispatch of flow %d: %w", flow.ID, err)
	}
	if !ok {
		return DispatchResult{}, ErrVersionConflict
	}

	flowType := string(flow.FlowType)
	FlowDispatchTargets.WithLabelValues(flowType).Observe(float64(len(accepted)))

	if len(accepted) == 0 {
		FlowDispatchesTotal.WithLabelValues(flowType, "empty").Inc()
		logger.InfoCtx(ctx, "flow_dispatch_empty",
			"flow_id", flow.ID,
			"dispatch_id", dispatchID,
			"skipped", len(skipped),
		)
		return DispatchResult{Dispatch: rec}, nil
	}

	job := domain.Job{
		FlowID:       flow.ID,
		DispatchID:   dispatchID,
		BranchID:     flow.BranchID,
		TargetPhones: accepted,
		Action:       rec.Action,
		Payload: domain.JobPayload{
			Message: flow.Message(),
			Point:   flow.Point(),
		},
	}

	if err := d.sink.Publish(ctx, job); err != nil {
		FlowDispatchesTotal.WithLabelValues(flowType, "publish_failed").Inc()
		d.abandon(ctx, &updated, rec, err, now)
		return DispatchResult{}, fmt.Errorf("%w: %v", ErrJobPublish, err)
	}

	FlowDispatchesTotal.WithLabelValues(flowType, "published").Inc()
	logger.InfoCtx(ctx, "flow_dispatched",
		"flow_id", flow.ID,
		"dispatch_id", dispatchID,
		"targets", len(accepted),
		"skipped", len(skipped),
	)

	return DispatchResult{Dispatch: rec, Job: &job}, nil
}

// Due lists active flows whose schedule fired since their last dispatch.
func (d *Dispatcher) Due(ctx context.Context, now time.Time) ([]domain.AutomationFlow, error) {
	flows, err := d.flows.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active flows: %w", err)
	}

	due := make([]domain.AutomationFlow, 0, len(flows))
	for _, f := range flows {
		if d.IsDue(f, now) {
			due = append(due, f)
		}
	}
	return due, nil
}

func (d *Dispatcher) IsDue(flow domain.AutomationFlow, now time.Time) bool {
	if !flow.IsActive || !IsActiveStatus(flow.Status) {
		return false
	}
	if flow.Status == domain.FlowStatusDispatched && !d.timedOut(flow, now) {
		return false
	}

	anchor := flow.CreatedAt
	if flow.LastDispatchedAt != nil {
		anchor = *flow.LastDispatchedAt
	}
	next, err := NextRun(flow.Trigger().Schedule, anchor, d.loc)
	if err != nil {
		logger.Warn("flow_schedule_invalid", "flow_id", flow.ID, err)
		return false
	}
	return !next.After(now)
}

type DueReport struct {
	Due        int `json:"due"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}

// DispatchDue dispatches every due flow concurrently. One flow failing does
// not stop the others; failures are counted and logged.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (DueReport, error) {
	due, err := d.Due(ctx, now)
	if err != nil {
		return DueReport{}, err
	}

	report := DueReport{Due: len(due)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(d.parallelism)
	for _, f := range due {
		g.Go(func() error {
			_, err := d.Dispatch(ctx, domain.AdminScope(), f.ID, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				logger.ErrorCtx(ctx, "flow_dispatch_due_failed", "flow_id", f.ID, err)
				return nil
			}
			report.Dispatched++
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

func (d *Dispatcher) timedOut(flow domain.AutomationFlow, now time.Time) bool {
	return flow.LastDispatchedAt == nil || now.Sub(*flow.LastDispatchedAt) >= d.timeout
}

// expire gives up on a dispatch the worker never reported. Its action-log
// rows stay as they are, since the worker may still have acted.
func (d *Dispatcher) expire(ctx context.Context, flow domain.AutomationFlow, now time.Time) (domain.AutomationFlow, error) {
	next, err := Next(flow.Status, EventExpire, true)
	if err != nil {
		return flow, err
	}

	var rec *domain.Dispatch
	if flow.CurrentDispatchID != nil {
		r, ok, err := d.executions.FindDispatch(ctx, *flow.CurrentDispatchID)
		if err != nil {
			return flow, fmt.Errorf("load dispatch %s: %w", *flow.CurrentDispatchID, err)
		}
		if ok && !r.Finalized() {
			r.Status = domain.DispatchStatusExpired
			r.CompletedAt = &now
			rec = &r
		}
	}

	expected := flow.Version
	stale := flow.CurrentDispatchID
	updated := flow
	updated.Status = next
	updated.CurrentDispatchID = nil

	ok, err := d.executions.Settle(ctx, Settlement{
		Flow:            &updated,
		ExpectedVersion: expected,
		Dispatch:        rec,
	})
	if err != nil {
		return flow, fmt.Errorf("expire dispatch of flow %d: %w", flow.ID, err)
	}
	if !ok {
		return flow, ErrVersionConflict
	}

	FlowDispatchesExpired.Inc()
	logger.WarnCtx(ctx, "flow_dispatch_expired", "flow_id", flow.ID, "dispatch_id", derefString(stale))
	return updated, nil
}

// abandon closes a launched dispatch whose job never reached the worker, so
// the flow is not left waiting for a callback that cannot come.
func (d *Dispatcher) abandon(ctx context.Context, flow *domain.AutomationFlow, rec domain.Dispatch, cause error, now time.Time) {
	msg := cause.Error()
	result := domain.ExecuteResult{
		DispatchID:   rec.ID,
		Success:      false,
		FailCount:    len(rec.TargetPhones),
		TotalCount:   len(rec.TargetPhones),
		ErrorMessage: &msg,
		ExecutedAt:   now,
	}
	closeDispatch(&rec, result, now)

	expected := flow.Version
	updated := *flow
	next, err := Next(updated.Status, EventFail, true)
	if err != nil {
		logger.ErrorCtx(ctx, "flow_abandon_transition", "flow_id", flow.ID, err)
		return
	}
	updated.Status = next
	updated.CurrentDispatchID = nil
	recordSummary(&updated, result)

	ok, err := d.executions.Settle(ctx, Settlement{
		Flow:            &updated,
		ExpectedVersion: expected,
		Dispatch:        &rec,
		MarkOutcomes:    true,
		AllFailed:       true,
	})
	// on either failure the dispatch timeout releases the flow later
	if err != nil {
		logger.ErrorCtx(ctx, "flow_abandon_failed", "flow_id", flow.ID, "dispatch_id", rec.ID, err)
		return
	}
	if !ok {
		logger.WarnCtx(ctx, "flow_abandon_conflict", "flow_id", flow.ID, "dispatch_id", rec.ID)
		return
	}
	logger.ErrorCtx(ctx, "flow_job_publish_failed", "flow_id", flow.ID, "dispatch_id", rec.ID, cause)
}

func jobAction(t domain.FlowType) domain.JobAction {
	if t == domain.FlowTypePoint {
		return domain.JobActionPointGrant
	}
	return domain.JobActionMessage
}

// closeDispatch finalizes rec with result. The status follows result.Success.
func closeDispatch(rec *domain.Dispatch, result domain.ExecuteResult, now time.Time) {
	rec.Status = domain.DispatchStatusCompleted
	if !result.Success {
		rec.Status = domain.DispatchStatusFailed
	}
	rec.CompletedAt = &now
	rec.Result = datatypes.NewJSONType(&result)
}

// recordSummary overwrites the flow's last execution summary.
func recordSummary(flow *domain.AutomationFlow, result domain.ExecuteResult) {
	trig := flow.Trigger()
	executedAt := result.ExecutedAt
	trig.LastExecutedAt = &executedAt
	trig.LastExecuteResult = &result
	flow.TriggerConfig = datatypes.NewJSONType(trig)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
