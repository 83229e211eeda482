package flow

import (
	"testing"

	"studyCafeCRM/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from   domain.FlowStatus
		event  Event
		hasRun bool
		want   domain.FlowStatus
	}{
		{domain.FlowStatusDraft, EventActivate, false, domain.FlowStatusActive},
		{domain.FlowStatusPaused, EventActivate, true, domain.FlowStatusActive},
		{domain.FlowStatusCompleted, EventActivate, true, domain.FlowStatusCompleted},
		{domain.FlowStatusActive, EventDispatch, false, domain.FlowStatusDispatched},
		{domain.FlowStatusCompleted, EventDispatch, true, domain.FlowStatusDispatched},
		{domain.FlowStatusFailed, EventDispatch, true, domain.FlowStatusDispatched},
		{domain.FlowStatusDispatched, EventComplete, true, domain.FlowStatusCompleted},
		{domain.FlowStatusDispatched, EventFail, true, domain.FlowStatusFailed},
		{domain.FlowStatusDispatched, EventExpire, true, domain.FlowStatusActive},
		{domain.FlowStatusActive, EventDeactivate, false, domain.FlowStatusDraft},
		{domain.FlowStatusCompleted, EventDeactivate, true, domain.FlowStatusPaused},
		{domain.FlowStatusFailed, EventDeactivate, true, domain.FlowStatusPaused},
		{domain.FlowStatusDraft, EventDeactivate, false, domain.FlowStatusDraft},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := Next(tt.from, tt.event, tt.hasRun)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_Rejected(t *testing.T) {
	tests := []struct {
		from  domain.FlowStatus
		event Event
	}{
		{domain.FlowStatusDraft, EventDispatch},
		{domain.FlowStatusPaused, EventDispatch},
		{domain.FlowStatusDispatched, EventDispatch},
		{domain.FlowStatusDispatched, EventDeactivate},
		{domain.FlowStatusDispatched, EventActivate},
		{domain.FlowStatusActive, EventComplete},
		{domain.FlowStatusCompleted, EventFail},
		{domain.FlowStatusActive, EventExpire},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := Next(tt.from, tt.event, true)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestIsActiveStatus(t *testing.T) {
	assert.True(t, IsActiveStatus(domain.FlowStatusActive))
	assert.True(t, IsActiveStatus(domain.FlowStatusCompleted))
	assert.True(t, IsActiveStatus(domain.FlowStatusFailed))
	assert.True(t, IsActiveStatus(domain.FlowStatusDispatched))
	assert.False(t, IsActiveStatus(domain.FlowStatusDraft))
	assert.False(t, IsActiveStatus(domain.FlowStatusPaused))
}
