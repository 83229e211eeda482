package flow

import (
	"context"
	"testing"
	"time"

	"studyCafeCRM/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	phone1 = "01000000001"
	phone2 = "01000000002"
	phone3 = "01000000003"
)

func TestDispatch_PublishesJobAndClaimsFlow(t *testing.T) {
	h := newHarness(phone1, phone2)
	f := seed(h.store, activeMessageFlow(1, nil))

	res, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)
	require.NotNil(t, res.Job)

	assert.Equal(t, "dsp-1", res.Job.DispatchID)
	assert.Equal(t, []string{phone1, phone2}, res.Job.TargetPhones)
	assert.Equal(t, domain.JobActionMessage, res.Job.Action)
	require.NotNil(t, res.Job.Payload.Message)
	assert.Equal(t, "we miss you", res.Job.Payload.Message.Template)
	assert.Nil(t, res.Job.Payload.Point)
	assert.Equal(t, 1, h.sink.count())

	stored := h.store.flow(f.ID)
	assert.Equal(t, domain.FlowStatusDispatched, stored.Status)
	require.NotNil(t, stored.CurrentDispatchID)
	assert.Equal(t, "dsp-1", *stored.CurrentDispatchID)
	assert.Equal(t, t0, *stored.LastDispatchedAt)
	assert.Equal(t, f.Version+1, stored.Version)

	rec, ok, _ := h.store.FindDispatch(context.Background(), "dsp-1")
	require.True(t, ok)
	assert.Equal(t, domain.DispatchStatusPending, rec.Status)
	assert.Equal(t, map[string]domain.ActionOutcome{
		phone1: domain.ActionOutcomeDispatched,
		phone2: domain.ActionOutcomeDispatched,
	}, h.store.outcomes("dsp-1"))
}

func TestDispatch_PointFlowUsesPointGrantAction(t *testing.T) {
	h := newHarness(phone1)
	f := activeMessageFlow(1, nil)
	f.FlowType = domain.FlowTypePoint
	f = seed(h.store, withPoint(f, &domain.PointConfig{Action: domain.PointActionGrant, Amount: 500, Reason: "welcome back"}))

	res, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)
	require.NotNil(t, res.Job)
	assert.Equal(t, domain.JobActionPointGrant, res.Job.Action)
	require.NotNil(t, res.Job.Payload.Point)
	assert.Equal(t, 500, res.Job.Payload.Point.Amount)
}

func TestDispatch_SecondDispatchWhileInFlightIsRejected(t *testing.T) {
	h := newHarness(phone1)
	f := seed(h.store, activeMessageFlow(1, nil))

	_, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)

	_, err = h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0.Add(10*time.Minute))
	assert.ErrorIs(t, err, ErrDispatchInProgress)
	assert.Equal(t, 1, h.sink.count())
}

func TestDispatch_ExpiresStaleDispatch(t *testing.T) {
	h := newHarness(phone1)
	f := seed(h.store, activeMessageFlow(1, nil))

	_, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)

	res, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "dsp-2", res.Dispatch.ID)

	old, _, _ := h.store.FindDispatch(context.Background(), "dsp-1")
	assert.Equal(t, domain.DispatchStatusExpired, old.Status)

	stored := h.store.flow(f.ID)
	assert.Equal(t, domain.FlowStatusDispatched, stored.Status)
	assert.Equal(t, "dsp-2", *stored.CurrentDispatchID)
}

func TestDispatch_DedupWindowSkipsRecentTargets(t *testing.T) {
	h := newHarness(phone1, phone2)
	f := seed(h.store, activeMessageFlow(1, intPtr(7)))

	_, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)

	_, err = h.ingestor.Ingest(context.Background(), f.ID, domain.Callback{
		DispatchID:   "dsp-1",
		Success:      true,
		SuccessCount: 1,
		FailCount:    1,
		TotalCount:   2,
		ExecutedAt:   t0.Add(20 * time.Minute),
		FailedPhones: []string{phone2},
	})
	require.NoError(t, err)

	h.targeter.targets = targetsOf(phone1, phone2, phone3)
	res, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, res.Job)

	assert.Equal(t, []string{phone2, phone3}, res.Job.TargetPhones)
	assert.Equal(t, []string{phone1}, []string(res.Dispatch.SkippedPhones))
}

func TestDispatch_ZeroTargetsCompletesWithoutJob(t *testing.T) {
	h := newHarness()
	f := seed(h.store, activeMessageFlow(1, nil))

	res, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)

	assert.Nil(t, res.Job)
	assert.Equal(t, domain.DispatchStatusCompleted, res.Dispatch.Status)
	assert.Equal(t, 0, h.sink.count())

	stored := h.store.flow(f.ID)
	assert.Equal(t, domain.FlowStatusCompleted, stored.Status)
	assert.Nil(t, stored.CurrentDispatchID)
	trig := stored.Trigger()
	require.NotNil(t, trig.LastExecuteResult)
	assert.True(t, trig.LastExecuteResult.Success)
	assert.Equal(t, 0, trig.LastExecuteResult.TotalCount)
	assert.Equal(t, t0, *trig.LastExecutedAt)
}

func TestDispatch_InactiveFlowIsRejected(t *testing.T) {
	h := newHarness(phone1)
	f := activeMessageFlow(1, nil)
	f.IsActive = false
	f.Status = domain.FlowStatusDraft
	f = seed(h.store, f)

	_, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	assert.ErrorIs(t, err, ErrFlowInactive)
}

func TestDispatch_ForeignBranchScope(t *testing.T) {
	h := newHarness(phone1)
	f := seed(h.store, activeMessageFlow(1, nil))
	scope := domain.Scope{UserID: "u-9", Role: domain.RoleBranch, BranchID: 9}

	_, err := h.dispatcher.Dispatch(context.Background(), scope, f.ID, t0)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.FlowStatusActive, h.store.flow(f.ID).Status)
}

func TestDispatch_UnknownFlow(t *testing.T) {
	h := newHarness(phone1)

	_, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), 404, t0)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestDispatch_PublishFailureFailsTheExecution(t *testing.T) {
	h := newHarness(phone1, phone2)
	h.sink.err = errSinkDown
	f := seed(h.store, activeMessageFlow(1, intPtr(7)))

	_, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	assert.ErrorIs(t, err, ErrJobPublish)

	stored := h.store.flow(f.ID)
	assert.Equal(t, domain.FlowStatusFailed, stored.Status)
	assert.True(t, stored.IsActive)
	assert.Nil(t, stored.CurrentDispatchID)

	rec, _, _ := h.store.FindDispatch(context.Background(), "dsp-1")
	assert.Equal(t, domain.DispatchStatusFailed, rec.Status)

	// nothing was sent, so nobody is held back by the dedup window
	acted, _ := h.store.ActedPhonesSince(context.Background(), f.ID, t0.Add(-time.Hour))
	assert.Empty(t, acted)
}

func TestDispatch_LostRaceReturnsConflict(t *testing.T) {
	h := newHarness(phone1)
	f := seed(h.store, activeMessageFlow(1, nil))
	h.store.conflictsLeft = 1

	_, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 0, h.sink.count())
}

func TestIsDue(t *testing.T) {
	h := newHarness()
	yesterday := time.Date(2024, 6, 29, 10, 0, 0, 0, time.UTC)

	f := activeMessageFlow(1, nil)
	f.LastDispatchedAt = &yesterday
	f.Status = domain.FlowStatusCompleted

	assert.False(t, h.dispatcher.IsDue(f, t0), "09:00 is before today's 10:00 run")
	assert.True(t, h.dispatcher.IsDue(f, t0.Add(time.Hour)))

	inactive := f
	inactive.IsActive = false
	assert.False(t, h.dispatcher.IsDue(inactive, t0.Add(time.Hour)))

	inFlight := f
	inFlight.Status = domain.FlowStatusDispatched
	recent := t0.Add(30 * time.Minute)
	inFlight.LastDispatchedAt = &recent
	assert.False(t, h.dispatcher.IsDue(inFlight, t0.Add(time.Hour)))
}

func TestDispatchDue_FlowsAreIsolated(t *testing.T) {
	h := newHarness(phone1)
	h.targeter.failBranch = 3
	yesterday := time.Date(2024, 6, 29, 10, 0, 0, 0, time.UTC)

	var ids []uint
	for branch := uint(1); branch <= 3; branch++ {
		f := activeMessageFlow(branch, nil)
		f.LastDispatchedAt = &yesterday
		ids = append(ids, seed(h.store, f).ID)
	}
	justRan := t0.Add(time.Hour)
	notDue := activeMessageFlow(4, nil)
	notDue.LastDispatchedAt = &justRan
	seed(h.store, notDue)

	report, err := h.dispatcher.DispatchDue(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, DueReport{Due: 3, Dispatched: 2, Failed: 1}, report)
	assert.Equal(t, 2, h.sink.count())
	assert.Equal(t, domain.FlowStatusDispatched, h.store.flow(ids[0]).Status)
	assert.Equal(t, domain.FlowStatusDispatched, h.store.flow(ids[1]).Status)
	assert.Equal(t, domain.FlowStatusActive, h.store.flow(ids[2]).Status)
}
