package flow

import (
	"context"
	"testing"
	"time"

	"studyCafeCRM/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(phones ...string) (*Service, *harness) {
	h := newHarness(phones...)
	return NewService(h.store, h.targeter), h
}

func messageDefinition(branchID uint) Definition {
	return Definition{
		BranchID: branchID,
		Name:     "welcome",
		FlowType: domain.FlowTypeMessage,
		Trigger:  domain.TriggerConfig{Schedule: "@daily"},
		Message:  &domain.MessageConfig{Template: "hi"},
	}
}

func TestService_CreateStartsAsDraft(t *testing.T) {
	svc, _ := newTestService()

	f, err := svc.Create(context.Background(), domain.AdminScope(), messageDefinition(1))
	require.NoError(t, err)

	assert.NotZero(t, f.ID)
	assert.Equal(t, domain.FlowStatusDraft, f.Status)
	assert.False(t, f.IsActive)
	assert.Equal(t, "hi", f.Message().Template)
	assert.Nil(t, f.Point())
}

func TestService_BranchScopeIsEnforced(t *testing.T) {
	svc, _ := newTestService()
	branch2 := domain.Scope{UserID: "u-2", Role: domain.RoleBranch, BranchID: 2}

	_, err := svc.Create(context.Background(), branch2, messageDefinition(1))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	f, err := svc.Create(context.Background(), domain.AdminScope(), messageDefinition(1))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), branch2, f.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Activate(context.Background(), branch2, f.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestService_ActivateAndDeactivate(t *testing.T) {
	svc, h := newTestService(phone1)

	f, err := svc.Create(context.Background(), domain.AdminScope(), messageDefinition(1))
	require.NoError(t, err)

	f, err = svc.Activate(context.Background(), domain.AdminScope(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowStatusActive, f.Status)
	assert.True(t, f.IsActive)

	// never ran: back to draft
	f, err = svc.Deactivate(context.Background(), domain.AdminScope(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowStatusDraft, f.Status)
	assert.False(t, f.IsActive)

	_, err = svc.Activate(context.Background(), domain.AdminScope(), f.ID)
	require.NoError(t, err)
	_, err = h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)

	_, err = svc.Deactivate(context.Background(), domain.AdminScope(), f.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.ingestor.Ingest(context.Background(), f.ID, successReport("dsp-1", 1, t0.Add(time.Minute)))
	require.NoError(t, err)

	f, err = svc.Deactivate(context.Background(), domain.AdminScope(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowStatusPaused, f.Status)
	assert.False(t, f.IsActive)
}

func TestService_ActivateIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	f, _ := svc.Create(context.Background(), domain.AdminScope(), messageDefinition(1))

	first, err := svc.Activate(context.Background(), domain.AdminScope(), f.ID)
	require.NoError(t, err)
	second, err := svc.Activate(context.Background(), domain.AdminScope(), f.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
}

func TestService_UpdateKeepsExecutionBookkeeping(t *testing.T) {
	svc, h := newTestService(phone1)
	f, _ := svc.Create(context.Background(), domain.AdminScope(), messageDefinition(1))
	_, _ = svc.Activate(context.Background(), domain.AdminScope(), f.ID)
	_, err := h.dispatcher.Dispatch(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)

	def := messageDefinition(1)
	def.Message = &domain.MessageConfig{Template: "updated"}

	_, err = svc.Update(context.Background(), domain.AdminScope(), f.ID, def)
	assert.ErrorIs(t, err, ErrDispatchInProgress)

	_, err = h.ingestor.Ingest(context.Background(), f.ID, successReport("dsp-1", 1, t0.Add(time.Minute)))
	require.NoError(t, err)

	def.Trigger = domain.TriggerConfig{Schedule: "0 9 * * *"}
	updated, err := svc.Update(context.Background(), domain.AdminScope(), f.ID, def)
	require.NoError(t, err)

	assert.Equal(t, "updated", updated.Message().Template)
	assert.Equal(t, "0 9 * * *", updated.Trigger().Schedule)
	require.NotNil(t, updated.Trigger().LastExecutedAt)
	assert.Equal(t, t0.Add(time.Minute), *updated.Trigger().LastExecutedAt)

	def.BranchID = 2
	_, err = svc.Update(context.Background(), domain.AdminScope(), f.ID, def)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestService_PreviewTargets(t *testing.T) {
	svc, _ := newTestService(phone1, phone2)
	f, _ := svc.Create(context.Background(), domain.AdminScope(), messageDefinition(1))

	got, err := svc.PreviewTargets(context.Background(), domain.AdminScope(), f.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, []string{phone1, phone2}, got)

	_, err = svc.PreviewTargets(context.Background(), domain.AdminScope(), 404, t0)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}
