package domain

import "time"

type VisitSegment string

const (
	VisitSegmentChurned      VisitSegment = "churned"
	VisitSegmentAtRisk7      VisitSegment = "at_risk_7"
	VisitSegmentNew0to7      VisitSegment = "new_0_7"
	VisitSegmentVisitOver20  VisitSegment = "visit_over20"
	VisitSegmentVisit10to20  VisitSegment = "visit_10_20"
	VisitSegmentVisitUnder10 VisitSegment = "visit_under10"
)

// VisitSegments lists every visit segment in classification priority order.
var VisitSegments = []VisitSegment{
	VisitSegmentChurned,
	VisitSegmentAtRisk7,
	VisitSegmentNew0to7,
	VisitSegmentVisitOver20,
	VisitSegmentVisit10to20,
	VisitSegmentVisitUnder10,
}

func (s VisitSegment) Valid() bool {
	for _, v := range VisitSegments {
		if v == s {
			return true
		}
	}
	return false
}

type TicketSegment string

const (
	TicketSegmentFixed TicketSegment = "fixed_ticket"
	TicketSegmentTerm  TicketSegment = "term_ticket"
	TicketSegmentTime  TicketSegment = "time_ticket"
	TicketSegmentDay   TicketSegment = "day_ticket"
)

var TicketSegments = []TicketSegment{
	TicketSegmentFixed,
	TicketSegmentTerm,
	TicketSegmentTime,
	TicketSegmentDay,
}

func (s TicketSegment) Valid() bool {
	for _, v := range TicketSegments {
		if v == s {
			return true
		}
	}
	return false
}

// TicketType is the subtype inferred from an operator-entered ticket name.
type TicketType string

const (
	TicketTypeDay   TicketType = "day"
	TicketTypeTime  TicketType = "time"
	TicketTypeTerm  TicketType = "term"
	TicketTypeFixed TicketType = "fixed"
)

// CustomerStats are the derived numbers shown on the customer card. Nil
// pointers mean "not enough history", which is normal for new customers.
type CustomerStats struct {
	TotalVisits        int         `json:"totalVisits"`
	TotalSpent         float64     `json:"totalSpent"`
	TotalPointsUsed    int         `json:"totalPointsUsed"`
	FirstVisitAt       *time.Time  `json:"firstVisitAt"`
	LastVisitAt        *time.Time  `json:"lastVisitAt"`
	AvgDurationMinutes *float64    `json:"avgDuration"`
	PeakHour           *int        `json:"peakHour"`
	VisitCycleDays     *float64    `json:"visitCycleDays"`
	PurchaseCycleDays  *float64    `json:"purchaseCycleDays"`
	MonthlyAvgSpent    *float64    `json:"monthlyAvgSpent"`
	FavoriteTicket     *string     `json:"favoriteTicket"`
	FavoriteTicketType *TicketType `json:"favoriteTicketType"`
	FavoriteSeat       *string     `json:"favoriteSeat"`
}

type CustomerProfile struct {
	Customer      Customer      `json:"customer"`
	Stats         CustomerStats `json:"stats"`
	VisitSegment  VisitSegment  `json:"visitSegment"`
	TicketSegment TicketSegment `json:"ticketSegment"`
}

type SegmentSummary struct {
	BranchID      uint                  `json:"branchId"`
	ReferenceDate time.Time             `json:"referenceDate"`
	Total         int                   `json:"total"`
	Visit         map[VisitSegment]int  `json:"visit"`
	Ticket        map[TicketSegment]int `json:"ticket"`
}

// SegmentSnapshot records the labels a customer had on a given business day.
type SegmentSnapshot struct {
	CustomerID    uint          `gorm:"column:customer_id;primaryKey" json:"customerId"`
	SnapshotDate  time.Time     `gorm:"column:snapshot_date;type:date;primaryKey" json:"snapshotDate"`
	BranchID      uint          `gorm:"column:branch_id;index;not null" json:"branchId"`
	VisitSegment  VisitSegment  `gorm:"column:visit_segment;not null" json:"visitSegment"`
	TicketSegment TicketSegment `gorm:"column:ticket_segment;not null" json:"ticketSegment"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (SegmentSnapshot) TableName() string {
	return "customer_segment_snapshots"
}

// SegmentedCustomer is a customer with its labels for one reference date.
type SegmentedCustomer struct {
	Customer      Customer      `json:"customer"`
	VisitSegment  VisitSegment  `json:"visitSegment"`
	TicketSegment TicketSegment `json:"ticketSegment"`
}
