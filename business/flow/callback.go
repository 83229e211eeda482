package flow

import (
	"context"
	"fmt"
	"time"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"
)

const maxIngestAttempts = 3

type IngestOutcome string

const (
	// IngestApplied means the report moved the flow summary and/or state.
	IngestApplied IngestOutcome = "applied"
	// IngestStale means the report was older than the stored summary; only
	// its dispatch record took it.
	IngestStale IngestOutcome = "stale"
	// IngestDuplicate means the exact report was already stored.
	IngestDuplicate IngestOutcome = "duplicate"
)

// Ingestor applies worker callbacks. Every write is a conditional update on
// the flow version and is retried when another writer got in between.
type Ingestor struct {
	flows      FlowRepository
	executions ExecutionRepository
	now        func() time.Time
}

func NewIngestor(flows FlowRepository, executions ExecutionRepository) *Ingestor {
	return &Ingestor{flows: flows, executions: executions, now: time.Now}
}

func (in *Ingestor) Ingest(ctx context.Context, flowID uint, cb domain.Callback) (IngestOutcome, error) {
	for attempt := 1; attempt <= maxIngestAttempts; attempt++ {
		outcome, retry, err := in.ingestOnce(ctx, flowID, cb)
		if err != nil {
			return "", err
		}
		if !retry {
			FlowCallbacksTotal.WithLabelValues(string(outcome)).Inc()
			logger.InfoCtx(ctx, "flow_callback",
				"flow_id", flowID,
				"dispatch_id", cb.DispatchID,
				"success", cb.Success,
				"outcome", string(outcome),
				"attempt", attempt,
			)
			return outcome, nil
		}
	}

	FlowCallbacksTotal.WithLabelValues("conflict").Inc()
	return "", ErrVersionConflict
}

func (in *Ingestor) ingestOnce(ctx context.Context, flowID uint, cb domain.Callback) (IngestOutcome, bool, error) {
	flow, ok, err := in.flows.FindByID(ctx, flowID)
	if err != nil {
		return "", false, fmt.Errorf("load flow %d: %w", flowID, err)
	}
	if !ok {
		return "", false, ErrFlowNotFound
	}

	stored := flow.Trigger().LastExecuteResult

	// older workers only echo the flow id; a redelivery of such a report
	// must not be pinned to whichever dispatch is current by now
	dispatchID := cb.DispatchID
	if dispatchID == "" {
		if sameResult(stored, cb) {
			return IngestDuplicate, false, nil
		}
		if flow.CurrentDispatchID != nil {
			dispatchID = *flow.CurrentDispatchID
		}
	}

	var rec *domain.Dispatch
	if dispatchID != "" {
		r, found, err := in.executions.FindDispatch(ctx, dispatchID)
		if err != nil {
			return "", false, fmt.Errorf("load dispatch %s: %w", dispatchID, err)
		}
		if !found || r.FlowID != flow.ID {
			return "", false, ErrDispatchNotFound
		}
		if r.Finalized() && sameResult(r.Result.Data(), cb) {
			return IngestDuplicate, false, nil
		}
		rec = &r
	}

	result := cb.Result()
	result.DispatchID = dispatchID
	if dispatchID == "" && stored != nil {
		result.DispatchID = stored.DispatchID
	}

	now := in.now()
	if rec != nil {
		closeDispatch(rec, result, now)
	}

	expected := flow.Version
	updated := flow
	touched := false

	last := flow.Trigger().LastExecutedAt
	if last == nil || !cb.ExecutedAt.Before(*last) {
		recordSummary(&updated, result)
		touched = true
	}

	isCurrent := rec != nil &&
		flow.Status == domain.FlowStatusDispatched &&
		flow.CurrentDispatchID != nil &&
		*flow.CurrentDispatchID == rec.ID
	if isCurrent {
		ev := EventComplete
		if !cb.Success {
			ev = EventFail
		}
		next, err := Next(flow.Status, ev, true)
		if err != nil {
			return "", false, err
		}
		updated.Status = next
		updated.CurrentDispatchID = nil
		touched = true
	}

	if !touched && rec == nil {
		return IngestStale, false, nil
	}

	s := Settlement{
		ExpectedVersion: expected,
		Dispatch:        rec,
		MarkOutcomes:    rec != nil,
		FailedPhones:    cb.FailedPhones,
		AllFailed:       !cb.Success && cb.SuccessCount == 0,
	}
	if touched {
		s.Flow = &updated
	}

	ok, err = in.executions.Settle(ctx, s)
	if err != nil {
		return "", false, fmt.Errorf("settle callback of flow %d: %w", flowID, err)
	}
	if !ok {
		return "", true, nil
	}

	if !touched {
		return IngestStale, false, nil
	}
	return IngestApplied, false, nil
}

// sameResult compares the parts of a report the worker controls.
func sameResult(stored *domain.ExecuteResult, cb domain.Callback) bool {
	if stored == nil {
		return false
	}
	return stored.Success == cb.Success &&
		stored.SuccessCount == cb.SuccessCount &&
		stored.FailCount == cb.FailCount &&
		stored.TotalCount == cb.TotalCount &&
		stored.ExecutedAt.Equal(cb.ExecutedAt) &&
		derefString(stored.ErrorMessage) == derefString(cb.ErrorMessage)
}
