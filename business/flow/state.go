package flow

import (
	"errors"
	"fmt"

	"studyCafeCRM/domain"
)

var ErrInvalidTransition = errors.New("invalid flow state transition")

type Event string

const (
	EventActivate   Event = "activate"
	EventDeactivate Event = "deactivate"
	EventDispatch   Event = "dispatch"
	EventComplete   Event = "complete"
	EventFail       Event = "fail"
	EventExpire     Event = "expire"
)

type transition struct {
	from  domain.FlowStatus
	event Event
}

// transitions lists every legal move. Deactivate is resolved separately
// because its target depends on whether the flow has ever run.
var transitions = map[transition]domain.FlowStatus{
	{domain.FlowStatusDraft, EventActivate}:     domain.FlowStatusActive,
	{domain.FlowStatusPaused, EventActivate}:    domain.FlowStatusActive,
	{domain.FlowStatusActive, EventActivate}:    domain.FlowStatusActive,
	{domain.FlowStatusCompleted, EventActivate}: domain.FlowStatusCompleted,
	{domain.FlowStatusFailed, EventActivate}:    domain.FlowStatusFailed,

	{domain.FlowStatusActive, EventDispatch}:    domain.FlowStatusDispatched,
	{domain.FlowStatusCompleted, EventDispatch}: domain.FlowStatusDispatched,
	{domain.FlowStatusFailed, EventDispatch}:    domain.FlowStatusDispatched,

	{domain.FlowStatusDispatched, EventComplete}: domain.FlowStatusCompleted,
	{domain.FlowStatusDispatched, EventFail}:     domain.FlowStatusFailed,
	{domain.FlowStatusDispatched, EventExpire}:   domain.FlowStatusActive,
}

// Next returns the state reached from `from` on ev. hasRun only matters for
// deactivate: a flow that never ran goes back to DRAFT, otherwise PAUSED.
func Next(from domain.FlowStatus, ev Event, hasRun bool) (domain.FlowStatus, error) {
	if ev == EventDeactivate {
		if from == domain.FlowStatusDispatched {
			return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
		}
		if hasRun {
			return domain.FlowStatusPaused, nil
		}
		return domain.FlowStatusDraft, nil
	}

	to, ok := transitions[transition{from, ev}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}

// IsActiveStatus reports whether the scheduler should consider a flow in s.
// COMPLETED and FAILED flows recur.
func IsActiveStatus(s domain.FlowStatus) bool {
	switch s {
	case domain.FlowStatusActive,
		domain.FlowStatusDispatched,
		domain.FlowStatusCompleted,
		domain.FlowStatusFailed:
		return true
	}
	return false
}
