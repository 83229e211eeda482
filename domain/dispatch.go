package domain

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type DispatchStatus string

const (
	DispatchStatusPending   DispatchStatus = "pending"
	DispatchStatusCompleted DispatchStatus = "completed"
	DispatchStatusFailed    DispatchStatus = "failed"
	DispatchStatusExpired   DispatchStatus = "expired"
)

// Dispatch is the hand-off record of one execution; its ID is the
// correlation id the worker echoes back in the callback.
type Dispatch struct {
	ID            string                             `gorm:"column:id;primaryKey" json:"id"`
	FlowID        uint                               `gorm:"column:flow_id;index;not null" json:"flowId"`
	BranchID      uint                               `gorm:"column:branch_id;index;not null" json:"branchId"`
	Action        JobAction                          `gorm:"column:action;not null" json:"action"`
	TargetPhones  pq.StringArray                     `gorm:"column:target_phones;type:text[]" json:"targetPhones"`
	SkippedPhones pq.StringArray                     `gorm:"column:skipped_phones;type:text[]" json:"skippedPhones"`
	Status        DispatchStatus                     `gorm:"column:status;not null" json:"status"`
	DispatchedAt  time.Time                          `gorm:"column:dispatched_at;not null" json:"dispatchedAt"`
	CompletedAt   *time.Time                         `gorm:"column:completed_at" json:"completedAt"`
	Result        datatypes.JSONType[*ExecuteResult] `gorm:"column:result;type:jsonb" json:"result"`
}

func (Dispatch) TableName() string {
	return "automation_dispatches"
}

func (d Dispatch) Finalized() bool {
	return d.Status == DispatchStatusCompleted || d.Status == DispatchStatusFailed
}

type ActionOutcome string

const (
	ActionOutcomeDispatched ActionOutcome = "dispatched"
	ActionOutcomeSucceeded  ActionOutcome = "succeeded"
	ActionOutcomeFailed     ActionOutcome = "failed"
)

// ActionLogEntry is one customer acted upon by one flow execution.
type ActionLogEntry struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	FlowID     uint          `gorm:"column:flow_id;index:idx_action_log_flow_acted;not null" json:"flowId"`
	DispatchID string        `gorm:"column:dispatch_id;index;not null" json:"dispatchId"`
	FlowType   FlowType      `gorm:"column:flow_type;not null" json:"flowType"`
	CustomerID uint          `gorm:"column:customer_id;index" json:"customerId"`
	Phone      string        `gorm:"column:phone;not null" json:"phone"`
	ActedAt    time.Time     `gorm:"column:acted_at;index:idx_action_log_flow_acted;not null" json:"actedAt"`
	Outcome    ActionOutcome `gorm:"column:outcome;not null" json:"outcome"`
}

func (ActionLogEntry) TableName() string {
	return "automation_action_logs"
}

type JobAction string

const (
	JobActionMessage    JobAction = "message"
	JobActionPointGrant JobAction = "point-grant"
)

// Job is what the external execution worker receives.
type Job struct {
	FlowID       uint       `json:"flowId"`
	DispatchID   string     `json:"dispatchId"`
	BranchID     uint       `json:"branchId"`
	TargetPhones []string   `json:"targetPhones"`
	Action       JobAction  `json:"action"`
	Payload      JobPayload `json:"payload"`
}

type JobPayload struct {
	Message *MessageConfig `json:"message,omitempty"`
	Point   *PointConfig   `json:"point,omitempty"`
}

// Callback is the worker's report for one dispatch.
type Callback struct {
	DispatchID   string
	Success      bool
	SuccessCount int
	FailCount    int
	TotalCount   int
	ErrorMessage *string
	ExecutedAt   time.Time
	FailedPhones []string
}

func (c Callback) Result() ExecuteResult {
	return ExecuteResult{
		DispatchID:   c.DispatchID,
		Success:      c.Success,
		SuccessCount: c.SuccessCount,
		FailCount:    c.FailCount,
		TotalCount:   c.TotalCount,
		ErrorMessage: c.ErrorMessage,
		ExecutedAt:   c.ExecutedAt,
	}
}
