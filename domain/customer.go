package domain

import "time"

// Customer is keyed by phone number and owned by the branch that recorded
// the first visit. Rows are created on first observed visit and never
// deleted by this service.
type Customer struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	Phone                   string     `gorm:"column:phone;uniqueIndex;not null" json:"phone"`
	Name                    string     `gorm:"column:name" json:"name"`
	MainBranchID            uint       `gorm:"column:main_branch_id;index;not null" json:"mainBranchId"`
	FirstVisitAt            *time.Time `gorm:"column:first_visit_at" json:"firstVisitAt"`
	LastVisitAt             *time.Time `gorm:"column:last_visit_at" json:"lastVisitAt"`
	HasRemainingTermTicket  bool       `gorm:"column:has_remaining_term_ticket;default:false" json:"hasRemainingTermTicket"`
	HasRemainingTimePackage bool       `gorm:"column:has_remaining_time_package;default:false" json:"hasRemainingTimePackage"`
	HasRemainingFixedSeat   bool       `gorm:"column:has_remaining_fixed_seat;default:false" json:"hasRemainingFixedSeat"`
	TotalSpent              float64    `gorm:"column:total_spent;type:numeric;default:0" json:"totalSpent"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`

	// RecentVisitCount is scoped to the trailing classification window and
	// filled in by the segment service, never persisted.
	RecentVisitCount int `gorm:"-" json:"recentVisitCount"`
}

func (Customer) TableName() string {
	return "customers"
}

type Visit struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CustomerID      uint      `gorm:"column:customer_id;index;not null" json:"customerId"`
	BranchID        uint      `gorm:"column:branch_id;index;not null" json:"branchId"`
	VisitedAt       time.Time `gorm:"column:visited_at;index;not null" json:"visitedAt"`
	DurationMinutes *int      `gorm:"column:duration_minutes" json:"durationMinutes"`
	SeatID          *string   `gorm:"column:seat_id" json:"seatId"`
}

func (Visit) TableName() string {
	return "visits"
}

type Purchase struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CustomerID  uint      `gorm:"column:customer_id;index;not null" json:"customerId"`
	BranchID    uint      `gorm:"column:branch_id;index;not null" json:"branchId"`
	PurchasedAt time.Time `gorm:"column:purchased_at;index;not null" json:"purchasedAt"`
	TicketName  string    `gorm:"column:ticket_name" json:"ticketName"`
	Amount      float64   `gorm:"column:amount;type:numeric" json:"amount"`
	PointsUsed  int       `gorm:"column:points_used;default:0" json:"pointsUsed"`
}

func (Purchase) TableName() string {
	return "purchases"
}
