package domain

import (
	"time"

	"gorm.io/datatypes"
)

type FlowType string

const (
	FlowTypeMessage FlowType = "message"
	FlowTypePoint   FlowType = "point"
)

type FlowStatus string

const (
	FlowStatusDraft      FlowStatus = "DRAFT"
	FlowStatusActive     FlowStatus = "ACTIVE"
	FlowStatusDispatched FlowStatus = "DISPATCHED"
	FlowStatusCompleted  FlowStatus = "COMPLETED"
	FlowStatusFailed     FlowStatus = "FAILED"
	FlowStatusPaused     FlowStatus = "PAUSED"
)

type PointAction string

const (
	PointActionGrant  PointAction = "grant"
	PointActionDeduct PointAction = "deduct"
)

// AutomationFlow is a recurring, branch-scoped targeting + action definition.
type AutomationFlow struct {
	ID                uint                               `gorm:"primaryKey" json:"id"`
	BranchID          uint                               `gorm:"column:branch_id;index;not null" json:"branchId"`
	Name              string                             `gorm:"column:name;not null" json:"name"`
	FlowType          FlowType                           `gorm:"column:flow_type;not null" json:"flowType"`
	IsActive          bool                               `gorm:"column:is_active;default:false" json:"isActive"`
	Status            FlowStatus                         `gorm:"column:status;not null;default:DRAFT" json:"status"`
	TriggerConfig     datatypes.JSONType[TriggerConfig]  `gorm:"column:trigger_config;type:jsonb" json:"triggerConfig"`
	FilterConfig      datatypes.JSONType[FilterConfig]   `gorm:"column:filter_config;type:jsonb" json:"filterConfig"`
	PointConfig       datatypes.JSONType[*PointConfig]   `gorm:"column:point_config;type:jsonb" json:"pointConfig"`
	MessageConfig     datatypes.JSONType[*MessageConfig] `gorm:"column:message_config;type:jsonb" json:"messageConfig"`
	CurrentDispatchID *string                            `gorm:"column:current_dispatch_id" json:"currentDispatchId"`
	LastDispatchedAt  *time.Time                         `gorm:"column:last_dispatched_at" json:"lastDispatchedAt"`
	Version           int                                `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt         time.Time                          `json:"createdAt"`
	UpdatedAt         time.Time                          `json:"updatedAt"`
}

func (AutomationFlow) TableName() string {
	return "automation_flows"
}

func (f AutomationFlow) Trigger() TriggerConfig {
	return f.TriggerConfig.Data()
}

func (f AutomationFlow) Filter() FilterConfig {
	return f.FilterConfig.Data()
}

func (f AutomationFlow) Point() *PointConfig {
	return f.PointConfig.Data()
}

func (f AutomationFlow) Message() *MessageConfig {
	return f.MessageConfig.Data()
}

// DeduplicateDays returns the dedup window of whichever action config the
// flow type carries; nil means no dedup.
func (f AutomationFlow) DeduplicateDays() *int {
	switch f.FlowType {
	case FlowTypePoint:
		if p := f.Point(); p != nil {
			return p.DeduplicateDays
		}
	case FlowTypeMessage:
		if m := f.Message(); m != nil {
			return m.DeduplicateDays
		}
	}
	return nil
}

// HasRun reports whether the flow was ever dispatched or had a callback
// applied.
func (f AutomationFlow) HasRun() bool {
	return f.Trigger().LastExecutedAt != nil || f.LastDispatchedAt != nil
}

type TriggerConfig struct {
	Schedule          string         `json:"schedule" validate:"required"`
	LastExecutedAt    *time.Time     `json:"lastExecutedAt,omitempty"`
	LastExecuteResult *ExecuteResult `json:"lastExecuteResult,omitempty"`
}

type FilterConfig struct {
	VisitSegments  []VisitSegment  `json:"visitSegments,omitempty" validate:"omitempty,dive,oneof=churned at_risk_7 new_0_7 visit_over20 visit_10_20 visit_under10"`
	TicketSegments []TicketSegment `json:"ticketSegments,omitempty" validate:"omitempty,dive,oneof=fixed_ticket term_ticket time_ticket day_ticket"`
	ManualPhones   []string        `json:"manualPhones,omitempty" validate:"omitempty,dive,required"`
	RangeStart     *time.Time      `json:"rangeStart,omitempty"`
	FirstVisitFrom *time.Time      `json:"firstVisitFrom,omitempty"`
	FirstVisitTo   *time.Time      `json:"firstVisitTo,omitempty"`
	MinTotalSpent  *float64        `json:"minTotalSpent,omitempty" validate:"omitempty,min=0"`
}

type PointConfig struct {
	Action          PointAction `json:"action" validate:"required,oneof=grant deduct"`
	Amount          int         `json:"amount" validate:"required,gt=0"`
	Reason          string      `json:"reason" validate:"required"`
	ExpiryDays      *int        `json:"expiryDays,omitempty" validate:"omitempty,gt=0"`
	DeduplicateDays *int        `json:"deduplicateDays,omitempty" validate:"omitempty,gt=0"`
}

type MessageConfig struct {
	Template        string `json:"template" validate:"required"`
	DeduplicateDays *int   `json:"deduplicateDays,omitempty" validate:"omitempty,gt=0"`
}

// ExecuteResult is one execution outcome as reported by the worker.
type ExecuteResult struct {
	DispatchID   string    `json:"dispatchId,omitempty"`
	Success      bool      `json:"success"`
	SuccessCount int       `json:"successCount"`
	FailCount    int       `json:"failCount"`
	TotalCount   int       `json:"totalCount"`
	ErrorMessage *string   `json:"errorMessage"`
	ExecutedAt   time.Time `json:"executedAt"`
}
