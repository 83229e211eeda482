package segment

import (
	"time"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/timeutil"
)

// VisitFacts is everything the visit segment depends on. RecentVisitCount
// must already be scoped to the recent window by the caller.
type VisitFacts struct {
	LastVisitAt      *time.Time
	FirstVisitAt     *time.Time
	RecentVisitCount int
	ReferenceDate    time.Time
	RangeStart       *time.Time
}

// visitRule is one row of the visit classification table. Rules are
// evaluated in slice order and the first match wins.
type visitRule struct {
	priority int
	name     string
	match    func(f VisitFacts, t Thresholds) bool
	segment  domain.VisitSegment
}

var visitRules = []visitRule{
	{
		priority: 1,
		name:     "churned",
		match: func(f VisitFacts, t Thresholds) bool {
			return f.LastVisitAt != nil &&
				timeutil.ElapsedDays(*f.LastVisitAt, f.ReferenceDate) >= t.ChurnDays
		},
		segment: domain.VisitSegmentChurned,
	},
	{
		priority: 2,
		name:     "at_risk",
		match: func(f VisitFacts, t Thresholds) bool {
			return f.LastVisitAt != nil &&
				timeutil.ElapsedDays(*f.LastVisitAt, f.ReferenceDate) >= t.AtRiskDays
		},
		segment: domain.VisitSegmentAtRisk7,
	},
	{
		priority: 3,
		name:     "new_customer",
		match:    isNewCustomer,
		segment:  domain.VisitSegmentNew0to7,
	},
	{
		priority: 4,
		name:     "frequent",
		match: func(f VisitFacts, t Thresholds) bool {
			return f.RecentVisitCount >= t.FrequentVisits
		},
		segment: domain.VisitSegmentVisitOver20,
	},
	{
		priority: 5,
		name:     "regular",
		match: func(f VisitFacts, t Thresholds) bool {
			return f.RecentVisitCount >= t.RegularVisits
		},
		segment: domain.VisitSegmentVisit10to20,
	},
	{
		priority: 6,
		name:     "occasional",
		match:    func(VisitFacts, Thresholds) bool { return true },
		segment:  domain.VisitSegmentVisitUnder10,
	},
}

// isNewCustomer uses the explicit range when the caller has one (dashboard
// date pickers), otherwise a trailing window of NewCustomerDays.
func isNewCustomer(f VisitFacts, t Thresholds) bool {
	if f.FirstVisitAt == nil {
		return false
	}
	if f.RangeStart != nil {
		return !f.FirstVisitAt.Before(*f.RangeStart) && !f.FirstVisitAt.After(f.ReferenceDate)
	}
	return timeutil.ElapsedDays(*f.FirstVisitAt, f.ReferenceDate) <= t.NewCustomerDays
}

// ClassifyVisitSegment always returns exactly one segment.
func ClassifyVisitSegment(f VisitFacts, t Thresholds) domain.VisitSegment {
	for _, r := range visitRules {
		if r.match(f, t) {
			return r.segment
		}
	}
	return domain.VisitSegmentVisitUnder10
}

type ticketRule struct {
	name    string
	match   func(hasFixed, hasTerm, hasTimePackage bool) bool
	segment domain.TicketSegment
}

var ticketRules = []ticketRule{
	{"fixed_seat", func(fixed, _, _ bool) bool { return fixed }, domain.TicketSegmentFixed},
	{"term_ticket", func(_, term, _ bool) bool { return term }, domain.TicketSegmentTerm},
	{"time_package", func(_, _, timePkg bool) bool { return timePkg }, domain.TicketSegmentTime},
}

// ClassifyTicketSegment picks by entitlement priority fixed > term > time,
// falling back to day tickets.
func ClassifyTicketSegment(hasFixed, hasTerm, hasTimePackage bool) domain.TicketSegment {
	for _, r := range ticketRules {
		if r.match(hasFixed, hasTerm, hasTimePackage) {
			return r.segment
		}
	}
	return domain.TicketSegmentDay
}

// ClassifyCustomer labels a customer whose RecentVisitCount is already set.
func ClassifyCustomer(c domain.Customer, ref time.Time, rangeStart *time.Time, t Thresholds) domain.SegmentedCustomer {
	return domain.SegmentedCustomer{
		Customer: c,
		VisitSegment: ClassifyVisitSegment(VisitFacts{
			LastVisitAt:      c.LastVisitAt,
			FirstVisitAt:     c.FirstVisitAt,
			RecentVisitCount: c.RecentVisitCount,
			ReferenceDate:    ref,
			RangeStart:       rangeStart,
		}, t),
		TicketSegment: ClassifyTicketSegment(
			c.HasRemainingFixedSeat,
			c.HasRemainingTermTicket,
			c.HasRemainingTimePackage,
		),
	}
}
